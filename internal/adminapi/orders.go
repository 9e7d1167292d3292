package adminapi

import (
	"context"
	"fmt"
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

func registerOrderRoutes() {
	webserver.ApiGET("/commerce/orders", listOrders)
	webserver.ApiGET("/commerce/orders/:id", getOrder)
	webserver.ApiPOST("/commerce/orders/:id/refund", refundOrder)
	webserver.ApiGET("/commerce/orders-export", exportOrders)
}

func orderListQuery(c echo.Context) *gorm.DB {
	db := GetDB(c).Model(&domain.Order{})
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(product_name) LIKE ?", "%"+strings.ToLower(q)+"%")
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

func listOrders(c echo.Context) error {
	page, perPage := parsePagination(c)

	order := webserver.SortOrder(c, map[string]string{
		"id":           "id",
		"amount_cents": "amount_cents",
		"created_at":   "created_at",
		"status":       "status",
	})

	db := orderListQuery(c)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}
	var rows []domain.Order
	if err := db.Order(order).Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func getOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var order domain.Order
	if err := GetDB(c).Where("id = ?", id).First(&order).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Order not found", nil)
	}

	var items []domain.ProductItem
	GetDB(c).Where("order_id = ?", id).Find(&items)
	var payments []domain.Payment
	GetDB(c).Where("order_id = ?", id).Find(&payments)

	return ok(c, map[string]interface{}{
		"order":    order,
		"items":    items,
		"payments": payments,
	})
}

type refundPayload struct {
	Remark string `json:"remark" validate:"required,max=500"`
}

func refundOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload refundPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse refund request", err.Error())
	}
	if strings.TrimSpace(payload.Remark) == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Remark is required for refunds", nil)
	}

	if err := checkoutSvc.Refund(context.Background(), id, payload.Remark); err != nil {
		return fail(c, http.StatusConflict, "REFUND_FAILED", "Refund failed", err.Error())
	}

	auditLog(c, oprName(c), "order_refund", fmt.Sprintf("order %d: %s", id, payload.Remark))

	var order domain.Order
	GetDB(c).Where("id = ?", id).First(&order)
	return ok(c, order)
}

// orderExportRow flattens an order for CSV export
type orderExportRow struct {
	ID          int64  `csv:"id"`
	UserID      int64  `csv:"user_id"`
	ProductName string `csv:"product_name"`
	Quantity    int    `csv:"quantity"`
	AmountCents int64  `csv:"amount_cents"`
	CouponCode  string `csv:"coupon_code"`
	Status      string `csv:"status"`
	CreatedAt   string `csv:"created_at"`
}

func exportOrders(c echo.Context) error {
	var orders []domain.Order
	if err := orderListQuery(c).Order("id DESC").Limit(10000).Find(&orders).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}

	rows := make([]orderExportRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderExportRow{
			ID:          o.ID,
			UserID:      o.UserID,
			ProductName: o.ProductName,
			Quantity:    o.Quantity,
			AmountCents: o.AmountCents,
			CouponCode:  o.CouponCode,
			Status:      o.Status,
			CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		})
	}

	data, err := gocsv.MarshalString(&rows)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to render CSV", err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="orders.csv"`)
	return c.Blob(http.StatusOK, "text/csv", []byte(data))
}
