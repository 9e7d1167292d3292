package storeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/accstore/accstore/config"
	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/checkout"
	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/support"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

var (
	testOnce sync.Once
	testApp  *app.Application
	testEcho *echo.Echo
)

func setupServer(t *testing.T) {
	t.Helper()
	testOnce.Do(func() {
		db, err := gorm.Open(sqlite.Open("file:storeapi?mode=memory&cache=shared"), &gorm.Config{})
		if err != nil {
			panic(err)
		}
		testApp = app.NewApplication(config.LoadConfig(""))
		testApp.OverrideDB(db)
		if err := testApp.MigrateDB(false); err != nil {
			panic(err)
		}

		ws := webserver.Init(testApp)
		checkoutSvc, err := checkout.NewService(testApp, nil, nil)
		if err != nil {
			panic(err)
		}
		Init(checkoutSvc, support.NewService(testApp), nil)
		testEcho = ws.Echo()
	})
}

// doJSON performs a request; cookies carries the session across calls.
func doJSON(method, path string, cookies []*http.Cookie, body interface{}) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	testEcho.ServeHTTP(rec, req)
	return rec
}

func signupUser(t *testing.T, balanceCents int64) []*http.Cookie {
	t.Helper()
	email := fmt.Sprintf("shopper-%s@test.local", common.RandomHex(4))
	rec := doJSON(http.MethodPost, "/api/store/v1/signup", nil, map[string]string{
		"name":     "Shopper",
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	if balanceCents > 0 {
		require.NoError(t, testApp.DB().Model(&domain.User{}).
			Where("email = ?", email).
			Update("wallet_balance", balanceCents).Error)
	}
	return cookies
}

func seedProduct(t *testing.T, priceCents int64, stock int) *domain.Product {
	t.Helper()
	product := &domain.Product{
		ID:           common.UUIDint64(),
		PlatformName: "Instagram Aged " + common.RandomHex(3),
		Category:     "instagram",
		PriceCents:   priceCents,
		StockQty:     stock,
		Status:       common.ENABLED,
	}
	require.NoError(t, testApp.DB().Create(product).Error)
	for i := 0; i < stock; i++ {
		require.NoError(t, testApp.DB().Create(&domain.ProductItem{
			ID:        common.UUIDint64(),
			ProductID: product.ID,
			Payload:   fmt.Sprintf("acct%d:pw%d", i, i),
			Status:    domain.ItemAvailable,
		}).Error)
	}
	return product
}

func TestSessionRequired(t *testing.T) {
	setupServer(t)
	rec := doJSON(http.MethodGet, "/api/store/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_EXPIRED")
}

func TestSignupDuplicateEmail(t *testing.T) {
	setupServer(t)
	email := fmt.Sprintf("dup-%s@test.local", common.RandomHex(4))
	payload := map[string]string{"email": email, "password": "password123"}

	rec := doJSON(http.MethodPost, "/api/store/v1/signup", nil, payload)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(http.MethodPost, "/api/store/v1/signup", nil, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMAIL_TAKEN")
}

func TestLoginAndSession(t *testing.T) {
	setupServer(t)
	email := fmt.Sprintf("login-%s@test.local", common.RandomHex(4))
	rec := doJSON(http.MethodPost, "/api/store/v1/signup", nil,
		map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(http.MethodPost, "/api/store/v1/login", nil,
		map[string]string{"email": email, "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(http.MethodPost, "/api/store/v1/login", nil,
		map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	rec = doJSON(http.MethodGet, "/api/store/v1/session", cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), email)

	rec = doJSON(http.MethodPost, "/api/store/v1/logout", cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// the server-side session row is gone even if the cookie is replayed
	rec = doJSON(http.MethodGet, "/api/store/v1/session", cookies, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCatalogIsPublic(t *testing.T) {
	setupServer(t)
	product := seedProduct(t, 2000, 3)

	rec := doJSON(http.MethodGet, "/api/store/v1/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), product.PlatformName)

	rec = doJSON(http.MethodGet, fmt.Sprintf("/api/store/v1/products/%d", product.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":true`)
	assert.Contains(t, rec.Body.String(), `"price_display":"$20"`)
	// credential payloads never appear in catalog responses
	assert.NotContains(t, rec.Body.String(), "acct0:pw0")
}

func TestCheckoutFlow(t *testing.T) {
	setupServer(t)
	product := seedProduct(t, 1000, 5)
	cookies := signupUser(t, 5000)

	rec := doJSON(http.MethodPost, "/api/store/v1/checkout/preview", cookies, map[string]interface{}{
		"product_id": fmt.Sprint(product.ID),
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total_cents":2000`)

	rec = doJSON(http.MethodPost, "/api/store/v1/checkout", cookies, map[string]interface{}{
		"product_id": fmt.Sprint(product.ID),
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Order domain.Order `json:"order"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.Data.Order.ID)

	rec = doJSON(http.MethodGet,
		fmt.Sprintf("/api/store/v1/orders/%d/download", resp.Data.Order.ID), cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acct0:pw0")

	rec = doJSON(http.MethodGet, "/api/store/v1/wallet", cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance_cents":3000`)
}

func TestCheckoutInsufficientFunds(t *testing.T) {
	setupServer(t)
	product := seedProduct(t, 9000, 2)
	cookies := signupUser(t, 100)

	rec := doJSON(http.MethodPost, "/api/store/v1/checkout", cookies, map[string]interface{}{
		"product_id": fmt.Sprint(product.ID),
		"quantity":   1,
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_FUNDS")
}

func TestOrdersAreOwnerScoped(t *testing.T) {
	setupServer(t)
	product := seedProduct(t, 1000, 5)
	buyer := signupUser(t, 5000)
	other := signupUser(t, 0)

	rec := doJSON(http.MethodPost, "/api/store/v1/checkout", buyer, map[string]interface{}{
		"product_id": fmt.Sprint(product.ID),
		"quantity":   1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Order domain.Order `json:"order"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doJSON(http.MethodGet,
		fmt.Sprintf("/api/store/v1/orders/%d", resp.Data.Order.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketLifecycle(t *testing.T) {
	setupServer(t)
	cookies := signupUser(t, 0)

	rec := doJSON(http.MethodPost, "/api/store/v1/tickets", cookies, map[string]interface{}{
		"subject":  "account not delivered",
		"category": "orders",
		"content":  "order missing from downloads",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data domain.Ticket `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(http.MethodPost,
		fmt.Sprintf("/api/store/v1/tickets/%d/messages", created.Data.ID), cookies,
		map[string]interface{}{"content": "any update?"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(http.MethodGet,
		fmt.Sprintf("/api/store/v1/tickets/%d", created.Data.ID), cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "any update?")

	// empty ticket body is rejected before any row exists
	rec = doJSON(http.MethodPost, "/api/store/v1/tickets", cookies, map[string]interface{}{
		"subject": "", "content": "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMPTY_CONTENT")
}
