package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/accstore/accstore/config"
	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/pkg/common"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", common.RandomHex(8))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	application := app.NewApplication(config.LoadConfig(""))
	application.OverrideDB(db)
	require.NoError(t, application.MigrateDB(false))
	return application
}

type fakeGateway struct {
	status  string
	created int
}

func (g *fakeGateway) CreateSession(ctx context.Context, gateway string, amountCents int64, ref string) (*GatewaySession, error) {
	g.created++
	return &GatewaySession{Ref: "gw-" + ref, RedirectURL: "https://pay.test/" + ref}, nil
}

func (g *fakeGateway) VerifySession(ctx context.Context, gateway, ref string) (*GatewayResult, error) {
	status := g.status
	if status == "" {
		status = "paid"
	}
	return &GatewayResult{Ref: ref, Status: status}, nil
}

func newTestService(t *testing.T, a *app.Application, gw GatewayClient) *Service {
	t.Helper()
	if gw == nil {
		gw = &fakeGateway{}
	}
	svc, err := NewService(a, gw, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Release)
	return svc
}

func seedProduct(t *testing.T, a *app.Application, priceCents int64, stock int) *domain.Product {
	t.Helper()
	product := &domain.Product{
		ID:           common.UUIDint64(),
		PlatformName: "Instagram Aged",
		Category:     "instagram",
		PriceCents:   priceCents,
		StockQty:     stock,
		Status:       common.ENABLED,
	}
	require.NoError(t, a.DB().Create(product).Error)
	for i := 0; i < stock; i++ {
		require.NoError(t, a.DB().Create(&domain.ProductItem{
			ID:        common.UUIDint64(),
			ProductID: product.ID,
			Payload:   fmt.Sprintf("user%d:pass%d", i, i),
			Status:    domain.ItemAvailable,
		}).Error)
	}
	return product
}

func seedUser(t *testing.T, a *app.Application, balanceCents int64) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:            common.UUIDint64(),
		Name:          "Buyer",
		Email:         fmt.Sprintf("buyer-%s@test.local", common.RandomHex(4)),
		Status:        common.ENABLED,
		WalletBalance: balanceCents,
	}
	require.NoError(t, a.DB().Create(user).Error)
	return user
}

func TestPreviewAppliesPercentCoupon(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 10000)

	code := common.RandomCouponCode()
	require.NoError(t, a.DB().Create(&domain.Coupon{
		ID:              common.UUIDint64(),
		Code:            code,
		DiscountPercent: 20,
		Status:          domain.CouponActive,
	}).Error)

	quote, err := svc.Preview(context.Background(), user.ID, product.ID, 3, code)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), quote.SubtotalCents)
	assert.Equal(t, int64(600), quote.DiscountCents)
	assert.Equal(t, int64(2400), quote.TotalCents)
	assert.Equal(t, "$24", quote.TotalDisplay)
	assert.True(t, quote.CouponApplied)
}

func TestPreviewIgnoresWrongLengthCoupon(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 10000)

	for _, code := range []string{"SHORT", "WAYTOOLONGFORACOUPON"} {
		quote, err := svc.Preview(context.Background(), user.ID, product.ID, 1, code)
		require.NoError(t, err)
		assert.False(t, quote.CouponApplied)
		assert.Equal(t, int64(1000), quote.TotalCents)
	}

	// right length but unknown must fail, not silently bypass
	_, err := svc.Preview(context.Background(), user.ID, product.ID, 1, "AAAAABBBBBCCCCC")
	assert.ErrorIs(t, err, ErrCouponInvalid)
}

func TestPurchaseDeliversAndDebitsWallet(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 5000)

	result, err := svc.Purchase(context.Background(), user.ID, product.ID, 2, "", "")
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	require.NotNil(t, result.Payment)
	assert.Equal(t, domain.OrderDelivered, result.Order.Status)
	assert.Equal(t, int64(2000), result.Order.AmountCents)

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, user.ID).Error)
	assert.Equal(t, int64(3000), fresh.WalletBalance)

	var sold int64
	a.DB().Model(&domain.ProductItem{}).
		Where("order_id = ? AND status = ?", result.Order.ID, domain.ItemSold).
		Count(&sold)
	assert.Equal(t, int64(2), sold)

	var freshProduct domain.Product
	require.NoError(t, a.DB().First(&freshProduct, product.ID).Error)
	assert.Equal(t, 3, freshProduct.StockQty)

	var ledger domain.WalletTransaction
	require.NoError(t, a.DB().Where("user_id = ?", user.ID).First(&ledger).Error)
	assert.Equal(t, int64(3000), ledger.BalanceAfter)
}

func TestPurchaseOutOfStockWritesNothing(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 1)
	user := seedUser(t, a, 10000)

	_, err := svc.Purchase(context.Background(), user.ID, product.ID, 3, "", "")
	assert.ErrorIs(t, err, ErrOutOfStock)

	var orders, payments int64
	a.DB().Model(&domain.Order{}).Count(&orders)
	a.DB().Model(&domain.Payment{}).Count(&payments)
	assert.Zero(t, orders)
	assert.Zero(t, payments)

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, user.ID).Error)
	assert.Equal(t, int64(10000), fresh.WalletBalance)
}

func TestPurchaseInsufficientFundsRollsBack(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 500)

	_, err := svc.Purchase(context.Background(), user.ID, product.ID, 1, "", "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	var available int64
	a.DB().Model(&domain.ProductItem{}).
		Where("product_id = ? AND status = ?", product.ID, domain.ItemAvailable).
		Count(&available)
	assert.Equal(t, int64(5), available)

	var orders int64
	a.DB().Model(&domain.Order{}).Count(&orders)
	assert.Zero(t, orders)
}

func TestPurchaseCouponIsSingleUse(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 10000)

	code := common.RandomCouponCode()
	require.NoError(t, a.DB().Create(&domain.Coupon{
		ID:              common.UUIDint64(),
		Code:            code,
		DiscountPercent: 10,
		Status:          domain.CouponActive,
	}).Error)

	_, err := svc.Purchase(context.Background(), user.ID, product.ID, 1, code, "")
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), user.ID, product.ID, 1, code, "")
	assert.ErrorIs(t, err, ErrCouponInvalid)
}

func TestPurchaseIdempotencyKeyReplays(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 10000)

	key := common.RandomHex(16)
	first, err := svc.Purchase(context.Background(), user.ID, product.ID, 1, "", key)
	require.NoError(t, err)

	second, err := svc.Purchase(context.Background(), user.ID, product.ID, 1, "", key)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var orders int64
	a.DB().Model(&domain.Order{}).Count(&orders)
	assert.Equal(t, int64(1), orders)

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, user.ID).Error)
	assert.Equal(t, int64(9000), fresh.WalletBalance)

	var intent domain.PaymentIntent
	require.NoError(t, a.DB().Where("idempotency_key = ?", key).First(&intent).Error)
	assert.Equal(t, domain.IntentSucceeded, intent.Status)
	assert.NotEmpty(t, intent.Payload)
}

func TestPurchaseIdempotencyKeyScopedToOwner(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	owner := seedUser(t, a, 10000)
	other := seedUser(t, a, 10000)

	key := common.RandomHex(16)
	first, err := svc.Purchase(context.Background(), owner.ID, product.ID, 1, "", key)
	require.NoError(t, err)

	// another user presenting the same key must not see the owner's order
	_, err = svc.Purchase(context.Background(), other.ID, product.ID, 1, "", key)
	assert.ErrorIs(t, err, ErrKeyConflict)

	var orders int64
	a.DB().Model(&domain.Order{}).Count(&orders)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, owner.ID, first.Order.UserID)

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, other.ID).Error)
	assert.Equal(t, int64(10000), fresh.WalletBalance)
}

func TestFundingIntentConfirmCreditsOnce(t *testing.T) {
	a := newTestApp(t)
	gw := &fakeGateway{status: "paid"}
	svc := newTestService(t, a, gw)
	user := seedUser(t, a, 0)

	intent, redirect, err := svc.CreateFundingIntent(context.Background(), user.ID, 5000, domain.PayMethodCard)
	require.NoError(t, err)
	assert.NotEmpty(t, redirect)
	assert.Equal(t, domain.IntentPending, intent.Status)

	first, err := svc.ConfirmIntent(context.Background(), intent.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), first.AmountCents)
	assert.Equal(t, int64(5000), first.BalanceAfter)

	// a repeat confirm replays the stored result without a second credit
	second, err := svc.ConfirmIntent(context.Background(), intent.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, user.ID).Error)
	assert.Equal(t, int64(5000), fresh.WalletBalance)

	var ledgerCount int64
	a.DB().Model(&domain.WalletTransaction{}).Where("user_id = ?", user.ID).Count(&ledgerCount)
	assert.Equal(t, int64(1), ledgerCount)

	// succeeded is only ever written together with the credit and payload
	var settled domain.PaymentIntent
	require.NoError(t, a.DB().Where("id = ?", intent.ID).First(&settled).Error)
	assert.Equal(t, domain.IntentSucceeded, settled.Status)
	assert.NotEmpty(t, settled.Payload)
}

func TestConfirmExpiredIntent(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, &fakeGateway{status: "paid"})
	user := seedUser(t, a, 0)

	intent, _, err := svc.CreateFundingIntent(context.Background(), user.ID, 2500, domain.PayMethodCrypto)
	require.NoError(t, err)

	require.NoError(t, a.DB().Model(&domain.PaymentIntent{}).
		Where("id = ?", intent.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = svc.ConfirmIntent(context.Background(), intent.IdempotencyKey)
	assert.ErrorIs(t, err, ErrIntentExpired)

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, user.ID).Error)
	assert.Zero(t, fresh.WalletBalance)
}

func TestRefundCreditsWallet(t *testing.T) {
	a := newTestApp(t)
	svc := newTestService(t, a, nil)
	product := seedProduct(t, a, 1000, 5)
	user := seedUser(t, a, 5000)

	result, err := svc.Purchase(context.Background(), user.ID, product.ID, 2, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Refund(context.Background(), result.Order.ID, "customer complaint"))

	var fresh domain.User
	require.NoError(t, a.DB().First(&fresh, user.ID).Error)
	assert.Equal(t, int64(5000), fresh.WalletBalance)

	var order domain.Order
	require.NoError(t, a.DB().First(&order, result.Order.ID).Error)
	assert.Equal(t, domain.OrderRefunded, order.Status)

	// refunding twice fails on the conditional status flip
	assert.Error(t, svc.Refund(context.Background(), result.Order.ID, "again"))
}
