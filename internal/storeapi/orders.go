package storeapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
)

func registerOrderRoutes() {
	webserver.StoreGET("/orders", listMyOrders)
	webserver.StoreGET("/orders/:id", getMyOrder)
	webserver.StoreGET("/orders/:id/download", downloadOrder)
}

func listMyOrders(c echo.Context) error {
	user := webserver.CurrentUser(c)
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.Order{}).Where("user_id = ?", user.ID)
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}
	var rows []domain.Order
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func ownOrder(c echo.Context) (*domain.Order, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	user := webserver.CurrentUser(c)

	var order domain.Order
	err = GetDB(c).Where("id = ? AND user_id = ?", id, user.ID).First(&order).Error
	if err != nil {
		return nil, fail(c, http.StatusNotFound, "NOT_FOUND", "Order not found", nil)
	}
	return &order, nil
}

func getMyOrder(c echo.Context) error {
	order, errResp := ownOrder(c)
	if order == nil {
		return errResp
	}
	return ok(c, order)
}

// downloadOrder returns the purchased credential lines as a text file.
// Refunded orders lose download access.
func downloadOrder(c echo.Context) error {
	order, errResp := ownOrder(c)
	if order == nil {
		return errResp
	}
	if order.Status == domain.OrderRefunded {
		return fail(c, http.StatusGone, "ORDER_REFUNDED", "Refunded orders cannot be downloaded", nil)
	}

	var items []domain.ProductItem
	err := GetDB(c).Where("order_id = ? AND status = ?", order.ID, domain.ItemSold).
		Order("id ASC").Find(&items).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order items", err.Error())
	}
	if len(items) == 0 {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "No deliverable items on this order", nil)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Payload)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="order-%d.txt"`, order.ID))
	return c.Blob(http.StatusOK, "text/plain", []byte(strings.Join(lines, "\n")))
}
