package storeapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

func registerWalletRoutes() {
	webserver.StoreGET("/wallet", walletInfo)
	webserver.StoreGET("/wallet/transactions", walletTransactions)
	webserver.StorePOST("/wallet/intents", createFundingIntent)
	webserver.StorePOST("/wallet/intents/:key/confirm", confirmFundingIntent)
	webserver.StoreGET("/payments", listMyPayments)
}

func walletInfo(c echo.Context) error {
	user := webserver.CurrentUser(c)

	// re-read; the session copy can be stale after a purchase
	var fresh domain.User
	if err := GetDB(c).Where("id = ?", user.ID).First(&fresh).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load wallet", err.Error())
	}
	return ok(c, map[string]interface{}{
		"balance_cents":   fresh.WalletBalance,
		"balance_display": common.FenToDollar(fresh.WalletBalance),
	})
}

func walletTransactions(c echo.Context) error {
	user := webserver.CurrentUser(c)
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.WalletTransaction{}).Where("user_id = ?", user.ID)
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

type fundingPayload struct {
	AmountCents int64  `json:"amount_cents"`
	Gateway     string `json:"gateway"` // card/crypto
}

func createFundingIntent(c echo.Context) error {
	var payload fundingPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse funding request", err.Error())
	}
	if payload.AmountCents <= 0 {
		return fail(c, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive", nil)
	}
	user := webserver.CurrentUser(c)

	intent, redirectURL, err := checkoutSvc.CreateFundingIntent(c.Request().Context(), user.ID, payload.AmountCents, payload.Gateway)
	if err != nil {
		return checkoutError(c, err)
	}
	return ok(c, map[string]interface{}{
		"intent_id":       intent.ID,
		"idempotency_key": intent.IdempotencyKey,
		"expires_at":      intent.ExpiresAt,
		"redirect_url":    redirectURL,
	})
}

func confirmFundingIntent(c echo.Context) error {
	key := c.Param("key")
	user := webserver.CurrentUser(c)

	// ownership check before touching the gateway
	var intent domain.PaymentIntent
	err := GetDB(c).Where("idempotency_key = ?", key).First(&intent).Error
	if err != nil || intent.UserID != user.ID {
		return fail(c, http.StatusNotFound, "INTENT_NOT_FOUND", "Payment intent not found", nil)
	}

	result, err := checkoutSvc.ConfirmIntent(c.Request().Context(), key)
	if err != nil {
		return checkoutError(c, err)
	}
	return ok(c, result)
}

func listMyPayments(c echo.Context) error {
	user := webserver.CurrentUser(c)
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.Payment{}).Where("user_id = ?", user.ID)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payments", err.Error())
	}
	var rows []domain.Payment
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payments", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}
