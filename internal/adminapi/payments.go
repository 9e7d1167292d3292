package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
)

func registerPaymentRoutes() {
	webserver.ApiGET("/commerce/payments", listPayments)
	webserver.ApiGET("/commerce/payments-export", exportPayments)
	webserver.ApiGET("/commerce/payment-intents", listPaymentIntents)
}

func paymentListQuery(c echo.Context) *gorm.DB {
	db := GetDB(c).Model(&domain.Payment{})
	switch status := c.QueryParam("status"); status {
	case domain.PayPending, domain.PaySucceeded, domain.PayFailed:
		db = db.Where("status = ?", status)
	}
	if dir := c.QueryParam("direction"); dir != "" {
		db = db.Where("direction = ?", dir)
	}
	if method := c.QueryParam("method"); method != "" {
		db = db.Where("method = ?", method)
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if ref := strings.TrimSpace(c.QueryParam("reference")); ref != "" {
		db = db.Where("reference = ?", ref)
	}
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
	return db
}

func listPayments(c echo.Context) error {
	page, perPage := parsePagination(c)

	order := webserver.SortOrder(c, map[string]string{
		"id":           "id",
		"amount_cents": "amount_cents",
		"created_at":   "created_at",
	})

	db := paymentListQuery(c)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payments", err.Error())
	}
	var rows []domain.Payment
	if err := db.Order(order).Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payments", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

type paymentExportRow struct {
	ID          int64  `csv:"id"`
	UserID      int64  `csv:"user_id"`
	OrderID     int64  `csv:"order_id"`
	AmountCents int64  `csv:"amount_cents"`
	Direction   string `csv:"direction"`
	Method      string `csv:"method"`
	Status      string `csv:"status"`
	Reference   string `csv:"reference"`
	CreatedAt   string `csv:"created_at"`
}

func exportPayments(c echo.Context) error {
	var payments []domain.Payment
	if err := paymentListQuery(c).Order("id DESC").Limit(10000).Find(&payments).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payments", err.Error())
	}

	rows := make([]paymentExportRow, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, paymentExportRow{
			ID:          p.ID,
			UserID:      p.UserID,
			OrderID:     p.OrderID,
			AmountCents: p.AmountCents,
			Direction:   p.Direction,
			Method:      p.Method,
			Status:      p.Status,
			Reference:   p.Reference,
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		})
	}

	data, err := gocsv.MarshalString(&rows)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to render CSV", err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="payments.csv"`)
	return c.Blob(http.StatusOK, "text/csv", []byte(data))
}

func listPaymentIntents(c echo.Context) error {
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.PaymentIntent{})
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if purpose := c.QueryParam("purpose"); purpose != "" {
		db = db.Where("purpose = ?", purpose)
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if key := strings.TrimSpace(c.QueryParam("idempotency_key")); key != "" {
		db = db.Where("idempotency_key = ?", key)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payment intents", err.Error())
	}
	var rows []domain.PaymentIntent
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payment intents", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}
