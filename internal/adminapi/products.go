package adminapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

type productPayload struct {
	PlatformName    string `json:"platform_name" validate:"required,min=1,max=200"`
	Category        string `json:"category" validate:"required,max=100"`
	PriceCents      int64  `json:"price_cents"`
	Description     string `json:"description" validate:"omitempty,max=4000"`
	ImportantNotice string `json:"important_notice" validate:"omitempty,max=2000"`
	DataFormat      string `json:"data_format" validate:"omitempty,max=512"`
	Featured        bool   `json:"featured"`
	Status          string `json:"status" validate:"omitempty,oneof=enabled disabled"`
}

// registerProductRoutes registers product CRUD plus item stock endpoints
func registerProductRoutes() {
	webserver.ApiGET("/catalog/products", listProducts)
	webserver.ApiGET("/catalog/products/:id", getProduct)
	webserver.ApiPOST("/catalog/products", createProduct)
	webserver.ApiPUT("/catalog/products/:id", updateProduct)
	webserver.ApiDELETE("/catalog/products/:id", deleteProduct)
	webserver.ApiGET("/catalog/products/:id/items", listProductItems)
	webserver.ApiPOST("/catalog/products/:id/items", importProductItems)
}

func listProducts(c echo.Context) error {
	page, perPage := parsePagination(c)

	// whitelist allowed sort columns to avoid SQL injection
	order := webserver.SortOrder(c, map[string]string{
		"id":            "id",
		"platform_name": "platform_name",
		"category":      "category",
		"price_cents":   "price_cents",
		"stock_qty":     "stock_qty",
		"created_at":    "created_at",
	})

	db := GetDB(c).Model(&domain.Product{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		if GetDB(c).Dialector.Name() == "postgres" {
			db = db.Where("platform_name ILIKE ?", "%"+q+"%")
		} else {
			db = db.Where("LOWER(platform_name) LIKE ?", "%"+strings.ToLower(q)+"%")
		}
	}
	if category := strings.TrimSpace(c.QueryParam("category")); category != "" {
		db = db.Where("category = ?", category)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	var rows []domain.Product
	if err := db.Order(order).Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}
	return ok(c, p)
}

func createProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	payload.PlatformName = strings.TrimSpace(payload.PlatformName)
	if payload.PlatformName == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Platform name is required", nil)
	}
	if payload.PriceCents < 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Price must be >= 0", nil)
	}
	if payload.Status == "" {
		payload.Status = common.ENABLED
	}

	now := time.Now()
	p := domain.Product{
		ID:              common.UUIDint64(),
		PlatformName:    payload.PlatformName,
		Category:        strings.TrimSpace(payload.Category),
		PriceCents:      payload.PriceCents,
		Description:     payload.Description,
		ImportantNotice: payload.ImportantNotice,
		DataFormat:      payload.DataFormat,
		Featured:        payload.Featured,
		Status:          payload.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := GetDB(c).Create(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create product", err.Error())
	}
	auditLog(c, oprName(c), "product_create", p.PlatformName)
	return ok(c, p)
}

func updateProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}

	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	payload.PlatformName = strings.TrimSpace(payload.PlatformName)
	if payload.PlatformName == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Platform name is required", nil)
	}
	if payload.PriceCents < 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Price must be >= 0", nil)
	}

	p.PlatformName = payload.PlatformName
	p.Category = strings.TrimSpace(payload.Category)
	p.PriceCents = payload.PriceCents
	p.Description = payload.Description
	p.ImportantNotice = payload.ImportantNotice
	p.DataFormat = payload.DataFormat
	p.Featured = payload.Featured
	if payload.Status != "" {
		p.Status = payload.Status
	}
	p.UpdatedAt = time.Now()

	if err := GetDB(c).Save(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product", err.Error())
	}
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	// refuse to delete a product with sold items; history references it
	var soldCount int64
	GetDB(c).Model(&domain.ProductItem{}).
		Where("product_id = ? AND status = ?", id, domain.ItemSold).Count(&soldCount)
	if soldCount > 0 {
		return fail(c, http.StatusConflict, "PRODUCT_HAS_SALES", "Disable instead of deleting a product with sales", nil)
	}
	if err := GetDB(c).Where("product_id = ?", id).Delete(&domain.ProductItem{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product items", err.Error())
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Product{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product", err.Error())
	}
	auditLog(c, oprName(c), "product_delete", c.Param("id"))
	return ok(c, map[string]interface{}{"id": id})
}

func listProductItems(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.ProductItem{}).Where("product_id = ?", id)
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query items", err.Error())
	}
	var rows []domain.ProductItem
	if err := db.Order("id DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query items", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

type importItemsPayload struct {
	Lines []string `json:"lines" validate:"required,min=1"`
}

// importProductItems bulk-adds sellable credential lines and bumps stock
func importProductItems(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}

	var payload importItemsPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse items", err.Error())
	}

	now := time.Now()
	added := 0
	for _, line := range payload.Lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		item := domain.ProductItem{
			ID:        common.UUIDint64(),
			ProductID: p.ID,
			Payload:   line,
			Status:    domain.ItemAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := GetDB(c).Create(&item).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to import items", err.Error())
		}
		added++
	}
	if added > 0 {
		GetDB(c).Model(&domain.Product{}).Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"stock_qty":  gorm.Expr("stock_qty + ?", added),
				"updated_at": now,
			})
	}
	auditLog(c, oprName(c), "items_import", fmt.Sprintf("%s: %d items", p.PlatformName, added))
	return ok(c, map[string]interface{}{"added": added})
}

func oprName(c echo.Context) string {
	if claims := webserver.CurrentOpr(c); claims != nil {
		return claims.Username
	}
	return "unknown"
}
