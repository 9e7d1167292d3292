package webserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/app"
)

// Response is the common success envelope.
type Response struct {
	Code string      `json:"code"`
	Data interface{} `json:"data"`
}

// ErrorResponse is the common failure envelope with a stable machine code.
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// ListResponse wraps paged collection results.
type ListResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PerPage  int         `json:"per_page"`
	LastPage int64       `json:"last_page"`
}

// Ok writes a success envelope.
func Ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Code: "OK", Data: data})
}

// Fail writes a failure envelope with a machine-readable code.
func Fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, ErrorResponse{Code: code, Message: message, Detail: detail})
}

// Paged writes a paged list envelope.
func Paged(c echo.Context, items interface{}, total int64, page, perPage int) error {
	last := total / int64(perPage)
	if total%int64(perPage) != 0 {
		last++
	}
	return c.JSON(http.StatusOK, Response{Code: "OK", Data: ListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
		LastPage: last,
	}})
}

// GetAppContext returns the application context injected by middleware.
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(ContextAppKey).(app.AppContext)
}

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB()
}

// ParsePagination reads page/perPage query params with sane bounds.
func ParsePagination(c echo.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	perPage, _ = strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 20
	}
	return page, perPage
}

// ParseIDParam parses an int64 path parameter.
func ParseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// SortOrder returns a whitelisted "column DIR" order clause. Unknown sort
// fields fall back to id.
func SortOrder(c echo.Context, allowed map[string]string) string {
	col, ok := allowed[c.QueryParam("sort")]
	if !ok || col == "" {
		col = "id"
	}
	order := c.QueryParam("order")
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return col + " " + order
}
