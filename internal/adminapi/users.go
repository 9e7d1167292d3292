package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

func registerUserRoutes() {
	webserver.ApiGET("/accounts/users", listUsers)
	webserver.ApiGET("/accounts/users/:id", getUser)
	webserver.ApiPUT("/accounts/users/:id", updateUser)
	webserver.ApiDELETE("/accounts/users/:id", deleteUser)
	webserver.ApiPOST("/accounts/users/:id/wallet-adjust", adjustUserWallet)
	webserver.ApiGET("/accounts/users/:id/wallet-transactions", listUserWalletTransactions)
}

func listUsers(c echo.Context) error {
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.User{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		db = db.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query users", err.Error())
	}
	var rows []domain.User
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query users", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func getUser(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	var user domain.User
	if err := GetDB(c).Where("id = ?", id).First(&user).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
	}
	return ok(c, user)
}

type userUpdatePayload struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Status   string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Remark   string `json:"remark" validate:"omitempty,max=500"`
}

func updateUser(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	var user domain.User
	if err := GetDB(c).Where("id = ?", id).First(&user).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
	}

	var payload userUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse user", err.Error())
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if payload.Name != "" {
		updates["name"] = strings.TrimSpace(payload.Name)
	}
	if payload.Status != "" {
		updates["status"] = payload.Status
		if payload.Status == "disabled" {
			// kill live sessions when an account is disabled
			GetDB(c).Where("user_id = ?", id).Delete(&domain.UserSession{})
		}
	}
	if payload.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "HASH_ERROR", "Failed to hash password", nil)
		}
		updates["password"] = string(hashed)
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}

	if err := GetDB(c).Model(&user).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user", err.Error())
	}
	GetDB(c).Where("id = ?", id).First(&user)
	auditLog(c, oprName(c), "user_update", user.Email)
	return ok(c, user)
}

func deleteUser(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	var orderCount int64
	GetDB(c).Model(&domain.Order{}).Where("user_id = ?", id).Count(&orderCount)
	if orderCount > 0 {
		return fail(c, http.StatusConflict, "USER_HAS_ORDERS", "Disable instead of deleting a user with orders", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.User{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete user", err.Error())
	}
	GetDB(c).Where("user_id = ?", id).Delete(&domain.UserSession{})
	auditLog(c, oprName(c), "user_delete", c.Param("id"))
	return ok(c, map[string]interface{}{"id": id})
}

type walletAdjustPayload struct {
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Remark      string `json:"remark" validate:"required,max=500"`
}

// adjustUserWallet credits or debits a wallet manually, with a ledger line
// recording the operator action.
func adjustUserWallet(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	var payload walletAdjustPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse adjustment", err.Error())
	}
	if payload.AmountCents == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Amount must be non-zero", nil)
	}
	if strings.TrimSpace(payload.Remark) == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Remark is required for manual adjustments", nil)
	}

	direction := domain.PayDirCredit
	if payload.AmountCents < 0 {
		direction = domain.PayDirDebit
	}

	var user domain.User
	txErr := GetDB(c).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&domain.User{}).
			Where("id = ? AND wallet_balance + ? >= 0", id, payload.AmountCents).
			Updates(map[string]interface{}{
				"wallet_balance": gorm.Expr("wallet_balance + ?", payload.AmountCents),
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}
		amount := payload.AmountCents
		if amount < 0 {
			amount = -amount
		}
		return tx.Create(&domain.WalletTransaction{
			ID:           common.UUIDint64(),
			UserID:       id,
			AmountCents:  amount,
			Direction:    direction,
			BalanceAfter: user.WalletBalance,
			Reference:    "admin:" + oprName(c),
			Remark:       payload.Remark,
			CreatedAt:    now,
		}).Error
	})
	if txErr != nil {
		return fail(c, http.StatusConflict, "ADJUST_FAILED", "Adjustment failed or would overdraw the wallet", txErr.Error())
	}
	auditLog(c, oprName(c), "wallet_adjust", payload.Remark)
	return ok(c, user)
}

func listUserWalletTransactions(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.WalletTransaction{}).Where("user_id = ?", id)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}
	var rows []domain.WalletTransaction
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}
