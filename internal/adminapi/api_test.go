package adminapi

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

// setupServer wires the full route tree once per test binary; tests share
// the in-memory database.
func setupServer(t *testing.T) {
	t.Helper()
	testOnce.Do(func() {
		db, err := gorm.Open(sqlite.Open("file:adminapi?mode=memory&cache=shared"), &gorm.Config{})
		if err != nil {
			panic(err)
		}
		testApp = app.NewApplication(config.LoadConfig(""))
		testApp.OverrideDB(db)
		if err := testApp.MigrateDB(false); err != nil {
			panic(err)
		}

		db.Create(&domain.SysOpr{
			ID:       common.UUIDint64(),
			Username: "admin",
			Password: common.Sha256HashWithSalt("accstore", common.GetSecretSalt()),
			Realname: "Administrator",
			Level:    "super",
			Status:   common.ENABLED,
		})

		ws := webserver.Init(testApp)
		checkoutSvc, err := checkout.NewService(testApp, nil, nil)
		if err != nil {
			panic(err)
		}
		Init(checkoutSvc, support.NewService(testApp))
		testEcho = ws.Echo()
	})
}

func doJSON(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	testEcho.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T) string {
	t.Helper()
	rec := doJSON(http.MethodPost, "/api/admin/v1/login", "",
		map[string]string{"username": "admin", "password": "accstore"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func TestAdminLoginRejectsBadPassword(t *testing.T) {
	setupServer(t)
	rec := doJSON(http.MethodPost, "/api/admin/v1/login", "",
		map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	setupServer(t)
	rec := doJSON(http.MethodGet, "/api/admin/v1/catalog/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestProductCRUD(t *testing.T) {
	setupServer(t)
	token := adminToken(t)

	rec := doJSON(http.MethodPost, "/api/admin/v1/catalog/products", token, map[string]interface{}{
		"platform_name": "Telegram Aged",
		"category":      "telegram",
		"price_cents":   1500,
		"status":        common.ENABLED,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data domain.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.Data.ID)

	rec = doJSON(http.MethodGet, "/api/admin/v1/catalog/products?q=telegram", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Telegram Aged")

	rec = doJSON(http.MethodPut,
		fmt.Sprintf("/api/admin/v1/catalog/products/%d", created.Data.ID), token,
		map[string]interface{}{
			"platform_name": "Telegram Aged 2019",
			"category":      "telegram",
			"price_cents":   1800,
			"status":        common.ENABLED,
		})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(http.MethodDelete,
		fmt.Sprintf("/api/admin/v1/catalog/products/%d", created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(http.MethodGet,
		fmt.Sprintf("/api/admin/v1/catalog/products/%d", created.Data.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportProductItems(t *testing.T) {
	setupServer(t)
	token := adminToken(t)

	rec := doJSON(http.MethodPost, "/api/admin/v1/catalog/products", token, map[string]interface{}{
		"platform_name": "Twitter Fresh",
		"category":      "twitter",
		"price_cents":   500,
		"status":        common.ENABLED,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		Data domain.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(http.MethodPost,
		fmt.Sprintf("/api/admin/v1/catalog/products/%d/items", created.Data.ID), token,
		map[string]interface{}{"lines": []string{"a:1", "b:2", "c:3"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fresh domain.Product
	require.NoError(t, testApp.DB().First(&fresh, created.Data.ID).Error)
	assert.Equal(t, 3, fresh.StockQty)
}

func TestCouponBatchCreate(t *testing.T) {
	setupServer(t)
	token := adminToken(t)

	rec := doJSON(http.MethodPost, "/api/admin/v1/commerce/coupons", token, map[string]interface{}{
		"count":            5,
		"discount_percent": 15,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var count int64
	testApp.DB().Model(&domain.Coupon{}).Where("discount_percent = ?", 15).Count(&count)
	assert.Equal(t, int64(5), count)

	var coupons []domain.Coupon
	testApp.DB().Where("discount_percent = ?", 15).Find(&coupons)
	for _, cp := range coupons {
		assert.Len(t, cp.Code, domain.CouponCodeLen)
		assert.Equal(t, domain.CouponActive, cp.Status)
	}
}

func TestWalletAdjustRequiresRemark(t *testing.T) {
	setupServer(t)
	token := adminToken(t)

	user := &domain.User{
		ID:     common.UUIDint64(),
		Email:  fmt.Sprintf("adjust-%s@test.local", common.RandomHex(4)),
		Status: common.ENABLED,
	}
	require.NoError(t, testApp.DB().Create(user).Error)

	rec := doJSON(http.MethodPost,
		fmt.Sprintf("/api/admin/v1/accounts/users/%d/wallet-adjust", user.ID), token,
		map[string]interface{}{"amount_cents": 1000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(http.MethodPost,
		fmt.Sprintf("/api/admin/v1/accounts/users/%d/wallet-adjust", user.ID), token,
		map[string]interface{}{"amount_cents": 1000, "remark": "manual top up"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fresh domain.User
	require.NoError(t, testApp.DB().First(&fresh, user.ID).Error)
	assert.Equal(t, int64(1000), fresh.WalletBalance)

	// a negative adjustment below zero is refused
	rec = doJSON(http.MethodPost,
		fmt.Sprintf("/api/admin/v1/accounts/users/%d/wallet-adjust", user.ID), token,
		map[string]interface{}{"amount_cents": -5000, "remark": "claw back"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
