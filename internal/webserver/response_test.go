package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newContext(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestParsePaginationBounds(t *testing.T) {
	page, perPage := ParsePagination(newContext(""))
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, perPage)

	page, perPage = ParsePagination(newContext("page=3&perPage=50"))
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, perPage)

	page, perPage = ParsePagination(newContext("page=-1&perPage=9999"))
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, perPage)
}

func TestSortOrderWhitelist(t *testing.T) {
	allowed := map[string]string{"price": "price_cents", "created": "created_at"}

	assert.Equal(t, "price_cents ASC", SortOrder(newContext("sort=price&order=ASC"), allowed))
	assert.Equal(t, "created_at DESC", SortOrder(newContext("sort=created"), allowed))
	// unknown sort columns and directions cannot reach the SQL
	assert.Equal(t, "id DESC", SortOrder(newContext("sort=password;drop"), allowed))
	assert.Equal(t, "price_cents DESC", SortOrder(newContext("sort=price&order=evil"), allowed))
}
