package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

type couponPayload struct {
	Code            string `json:"code" validate:"omitempty,len=15"`
	DiscountPercent int    `json:"discount_percent" validate:"required,min=1,max=100"`
	ValidFrom       string `json:"valid_from"`
	ValidUntil      string `json:"valid_until"`
	Count           int    `json:"count" validate:"omitempty,min=1,max=500"`
	Remark          string `json:"remark" validate:"omitempty,max=500"`
}

func registerCouponRoutes() {
	webserver.ApiGET("/commerce/coupons", listCoupons)
	webserver.ApiGET("/commerce/coupons/:id", getCoupon)
	webserver.ApiPOST("/commerce/coupons", createCoupons)
	webserver.ApiPUT("/commerce/coupons/:id", updateCoupon)
	webserver.ApiDELETE("/commerce/coupons/:id", deleteCoupon)
}

func listCoupons(c echo.Context) error {
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.Coupon{})
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if code := strings.TrimSpace(c.QueryParam("code")); code != "" {
		db = db.Where("code = ?", code)
	}
	// permissive date filters, e.g. "2026-01-02" or "Jan 2 2026"
	if from := c.QueryParam("created_from"); from != "" {
		if t, err := dateparse.ParseAny(from); err == nil {
			db = db.Where("created_at >= ?", t)
		}
	}
	if to := c.QueryParam("created_to"); to != "" {
		if t, err := dateparse.ParseAny(to); err == nil {
			db = db.Where("created_at <= ?", t)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query coupons", err.Error())
	}
	var rows []domain.Coupon
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query coupons", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func getCoupon(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid coupon ID", nil)
	}
	var coupon domain.Coupon
	if err := GetDB(c).Where("id = ?", id).First(&coupon).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Coupon not found", nil)
	}
	return ok(c, coupon)
}

// createCoupons creates one coupon with a given code, or a batch of
// generated 15-character codes when count > 1.
func createCoupons(c echo.Context) error {
	var payload couponPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse coupon", err.Error())
	}
	if payload.DiscountPercent < 1 || payload.DiscountPercent > 100 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Discount must be 1-100 percent", nil)
	}

	validFrom, validUntil := time.Now(), time.Now().Add(30*24*time.Hour)
	if payload.ValidFrom != "" {
		t, err := dateparse.ParseAny(payload.ValidFrom)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unparseable valid_from", nil)
		}
		validFrom = t
	}
	if payload.ValidUntil != "" {
		t, err := dateparse.ParseAny(payload.ValidUntil)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unparseable valid_until", nil)
		}
		validUntil = t
	}
	if !validUntil.After(validFrom) {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "valid_until must be after valid_from", nil)
	}

	count := payload.Count
	if count < 1 {
		count = 1
	}
	if count > 1 && payload.Code != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Explicit code only allowed for a single coupon", nil)
	}

	now := time.Now()
	created := make([]domain.Coupon, 0, count)
	for i := 0; i < count; i++ {
		code := payload.Code
		if code == "" {
			code = common.RandomCouponCode()
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if len(code) != domain.CouponCodeLen {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Coupon code must be exactly 15 characters", nil)
		}
		coupon := domain.Coupon{
			ID:              common.UUIDint64(),
			Code:            code,
			DiscountPercent: payload.DiscountPercent,
			Status:          domain.CouponActive,
			ValidFrom:       validFrom,
			ValidUntil:      validUntil,
			Remark:          payload.Remark,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := GetDB(c).Create(&coupon).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create coupon", err.Error())
		}
		created = append(created, coupon)
	}
	auditLog(c, oprName(c), "coupon_create", created[0].Code)
	return ok(c, created)
}

func updateCoupon(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid coupon ID", nil)
	}
	var coupon domain.Coupon
	if err := GetDB(c).Where("id = ?", id).First(&coupon).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Coupon not found", nil)
	}
	if coupon.Status == domain.CouponUsed {
		return fail(c, http.StatusConflict, "COUPON_USED", "Used coupons cannot be edited", nil)
	}

	var payload struct {
		Status     string `json:"status" validate:"omitempty,oneof=active disabled"`
		ValidUntil string `json:"valid_until"`
		Remark     string `json:"remark"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse coupon", err.Error())
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if payload.Status != "" {
		if payload.Status != domain.CouponActive && payload.Status != domain.CouponDisabled {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Status must be active or disabled", nil)
		}
		updates["status"] = payload.Status
	}
	if payload.ValidUntil != "" {
		t, err := dateparse.ParseAny(payload.ValidUntil)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unparseable valid_until", nil)
		}
		updates["valid_until"] = t
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}

	if err := GetDB(c).Model(&coupon).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update coupon", err.Error())
	}
	GetDB(c).Where("id = ?", id).First(&coupon)
	return ok(c, coupon)
}

func deleteCoupon(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid coupon ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Coupon{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete coupon", err.Error())
	}
	auditLog(c, oprName(c), "coupon_delete", c.Param("id"))
	return ok(c, map[string]interface{}{"id": id})
}
