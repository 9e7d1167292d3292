package storeapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

func registerCatalogRoutes() {
	webserver.PubGET("/products", listProducts)
	webserver.PubGET("/products/featured", listFeaturedProducts)
	webserver.PubGET("/products/:id", getProduct)
	webserver.PubGET("/categories", listCategories)
}

// productView is the public shape of a product; item payloads never leak.
type productView struct {
	domain.Product
	PriceDisplay string `json:"price_display"`
	Available    bool   `json:"available"`
}

func toProductView(p domain.Product) productView {
	return productView{
		Product:      p,
		PriceDisplay: common.FenToDollar(p.PriceCents),
		Available:    p.StockQty > 0,
	}
}

func listProducts(c echo.Context) error {
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.Product{}).Where("status = ?", common.ENABLED)
	if category := c.QueryParam("category"); category != "" {
		db = db.Where("category = ?", category)
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(platform_name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	if c.QueryParam("in_stock") == "true" {
		db = db.Where("stock_qty > 0")
	}

	order := webserver.SortOrder(c, map[string]string{
		"id":          "id",
		"price_cents": "price_cents",
		"created_at":  "created_at",
	})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	var rows []domain.Product
	if err := db.Order(order).Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	views := make([]productView, 0, len(rows))
	for _, p := range rows {
		views = append(views, toProductView(p))
	}
	return paged(c, views, total, page, perPage)
}

func listFeaturedProducts(c echo.Context) error {
	limit := int(GetAppContext(c).GetSettingsInt64Value("store", "FeaturedLimit"))
	if limit <= 0 {
		limit = 8
	}

	var rows []domain.Product
	err := GetDB(c).
		Where("status = ? AND featured = ?", common.ENABLED, true).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	views := make([]productView, 0, len(rows))
	for _, p := range rows {
		views = append(views, toProductView(p))
	}
	return ok(c, views)
}

func getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var product domain.Product
	err = GetDB(c).Where("id = ? AND status = ?", id, common.ENABLED).First(&product).Error
	if err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}
	return ok(c, toProductView(product))
}

func listCategories(c echo.Context) error {
	var categories []string
	err := GetDB(c).Model(&domain.Product{}).
		Where("status = ?", common.ENABLED).
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query categories", err.Error())
	}
	return ok(c, categories)
}
