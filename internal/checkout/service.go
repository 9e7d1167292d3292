package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/pkg/common"
	"github.com/accstore/accstore/pkg/mailer"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

// Typed checkout failures. The API layer maps these to stable error codes
// instead of sentinel message strings.
var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrQuantityInvalid    = errors.New("quantity invalid")
	ErrOutOfStock         = errors.New("out of stock")
	ErrInsufficientFunds  = errors.New("insufficient wallet funds")
	ErrCouponInvalid      = errors.New("coupon invalid")
	ErrIntentNotFound     = errors.New("payment intent not found")
	ErrIntentExpired      = errors.New("payment intent expired")
	ErrKeyConflict        = errors.New("idempotency key belongs to another request")
	ErrGateway            = errors.New("gateway error")
)

// Quote is a priced checkout preview.
type Quote struct {
	ProductID     int64  `json:"product_id,string"`
	ProductName   string `json:"product_name"`
	Quantity      int    `json:"quantity"`
	UnitCents     int64  `json:"unit_cents"`
	SubtotalCents int64  `json:"subtotal_cents"`
	DiscountCents int64  `json:"discount_cents"`
	TotalCents    int64  `json:"total_cents"`
	TotalDisplay  string `json:"total_display"`
	CouponCode    string `json:"coupon_code,omitempty"`
	CouponApplied bool   `json:"coupon_applied"`
}

// PurchaseResult is the committed outcome of a wallet checkout. Order comes
// first: it is the record the buyer cares about.
type PurchaseResult struct {
	Order   *domain.Order   `json:"order"`
	Payment *domain.Payment `json:"payment"`
}

// IntentResult is the committed outcome of a funding-intent confirmation.
type IntentResult struct {
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	AmountCents    int64  `json:"amount_cents"`
	BalanceAfter   int64  `json:"balance_after"`
	PaymentID      int64  `json:"payment_id,string"`
}

// Service implements pricing, the transactional wallet checkout, and the
// two-phase gateway funding flow.
type Service struct {
	app     app.AppContext
	gateway GatewayClient
	intents IntentRepository
	mailer  *mailer.Mailer
	pool    *ants.Pool
}

func NewService(a app.AppContext, gateway GatewayClient, m *mailer.Mailer) (*Service, error) {
	workers := int(a.GetSettingsInt64Value("scheduler", "MaxWorkers"))
	if workers <= 0 {
		workers = 20
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Service{
		app:     a,
		gateway: gateway,
		intents: NewGormIntentRepository(a.DB()),
		mailer:  m,
		pool:    pool,
	}, nil
}

// Release stops the delivery worker pool.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Preview prices a checkout without committing anything. Coupon codes that
// are not exactly 15 characters are ignored without a lookup; codes of the
// right length must resolve to a currently valid coupon or the preview
// fails with ErrCouponInvalid.
func (s *Service) Preview(ctx context.Context, userID, productID int64, quantity int, couponCode string) (*Quote, error) {
	var product domain.Product
	err := s.app.DB().WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if err != nil {
		return nil, ErrProductUnavailable
	}
	if !strings.EqualFold(product.Status, common.ENABLED) {
		return nil, ErrProductUnavailable
	}

	maxQty := int(s.app.GetSettingsInt64Value("checkout", "MaxQuantityPerOrder"))
	if maxQty <= 0 {
		maxQty = 100
	}
	if quantity < 1 || quantity > maxQty {
		return nil, ErrQuantityInvalid
	}

	quote := &Quote{
		ProductID:     product.ID,
		ProductName:   product.PlatformName,
		Quantity:      quantity,
		UnitCents:     product.PriceCents,
		SubtotalCents: product.PriceCents * int64(quantity),
	}

	couponCode = strings.TrimSpace(couponCode)
	if len(couponCode) == domain.CouponCodeLen {
		coupon, err := s.lookupValidCoupon(ctx, couponCode)
		if err != nil {
			return nil, err
		}
		quote.CouponCode = coupon.Code
		quote.CouponApplied = true
		quote.DiscountCents = quote.SubtotalCents * int64(coupon.DiscountPercent) / 100
	}

	quote.TotalCents = quote.SubtotalCents - quote.DiscountCents
	quote.TotalDisplay = common.FenToDollar(quote.TotalCents)
	return quote, nil
}

func (s *Service) lookupValidCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := s.app.DB().WithContext(ctx).Where("code = ?", code).First(&coupon).Error
	if err != nil {
		return nil, ErrCouponInvalid
	}
	now := time.Now()
	if coupon.Status != domain.CouponActive ||
		(!coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom)) ||
		(!coupon.ValidUntil.IsZero() && now.After(coupon.ValidUntil)) {
		return nil, ErrCouponInvalid
	}
	return &coupon, nil
}

// Purchase performs a wallet checkout in one database transaction: coupon
// claim, stock claim, wallet debit, order, payment, ledger. Either all of it
// commits or none of it does. When idemKey is non-empty a repeat call with
// the same key returns the original result without re-executing.
func (s *Service) Purchase(ctx context.Context, userID, productID int64, quantity int, couponCode, idemKey string) (*PurchaseResult, error) {
	if idemKey != "" {
		if prior, err := s.intents.GetByKey(ctx, idemKey); err == nil {
			return s.replayPurchase(prior, userID)
		}
	}

	quote, err := s.Preview(ctx, userID, productID, quantity, couponCode)
	if err != nil {
		return nil, err
	}

	var intent *domain.PaymentIntent
	if idemKey != "" {
		intent = &domain.PaymentIntent{
			ID:             common.UUIDint64(),
			UserID:         userID,
			IdempotencyKey: idemKey,
			Purpose:        domain.IntentPurchase,
			AmountCents:    quote.TotalCents,
			Gateway:        domain.PayMethodWallet,
			Status:         domain.IntentPending,
			ExpiresAt:      time.Now().Add(time.Hour),
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := s.intents.Create(ctx, intent); err != nil {
			// Unique key collision: a concurrent call with the same key got
			// there first; replay its outcome.
			if prior, lerr := s.intents.GetByKey(ctx, idemKey); lerr == nil {
				return s.replayPurchase(prior, userID)
			}
			return nil, err
		}
	}

	result := &PurchaseResult{}
	txErr := s.app.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if quote.CouponApplied {
			res := tx.Model(&domain.Coupon{}).
				Where("code = ? AND status = ?", quote.CouponCode, domain.CouponActive).
				Updates(map[string]interface{}{
					"status":     domain.CouponUsed,
					"used_by":    userID,
					"used_at":    now,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCouponInvalid
			}
		}

		// Claim stock items under lock; exactly one of two concurrent
		// buyers of the last item can succeed. SQLite serializes writers
		// on its own and rejects FOR UPDATE.
		itemQuery := tx
		if tx.Dialector.Name() == "postgres" {
			itemQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var items []domain.ProductItem
		err := itemQuery.
			Where("product_id = ? AND status = ?", productID, domain.ItemAvailable).
			Order("id ASC").
			Limit(quantity).
			Find(&items).Error
		if err != nil {
			return err
		}
		if len(items) < quantity {
			return ErrOutOfStock
		}

		// Conditional debit keeps the balance non-negative without a
		// read-modify-write race.
		res := tx.Model(&domain.User{}).
			Where("id = ? AND wallet_balance >= ?", userID, quote.TotalCents).
			Updates(map[string]interface{}{
				"wallet_balance": gorm.Expr("wallet_balance - ?", quote.TotalCents),
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		var user domain.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			return err
		}

		order := &domain.Order{
			ID:          common.UUIDint64(),
			UserID:      userID,
			ProductID:   productID,
			ProductName: quote.ProductName,
			Quantity:    quantity,
			UnitCents:   quote.UnitCents,
			AmountCents: quote.TotalCents,
			CouponCode:  quote.CouponCode,
			Status:      domain.OrderDelivered,
			DeliveredAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		itemIDs := make([]int64, 0, len(items))
		for _, it := range items {
			itemIDs = append(itemIDs, it.ID)
		}
		if err := tx.Model(&domain.ProductItem{}).
			Where("id IN ?", itemIDs).
			Updates(map[string]interface{}{
				"status":     domain.ItemSold,
				"order_id":   order.ID,
				"sold_at":    now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Product{}).
			Where("id = ?", productID).
			Updates(map[string]interface{}{
				"stock_qty":  gorm.Expr("stock_qty - ?", quantity),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		payment := &domain.Payment{
			ID:          common.UUIDint64(),
			UserID:      userID,
			OrderID:     order.ID,
			AmountCents: quote.TotalCents,
			Direction:   domain.PayDirDebit,
			Method:      domain.PayMethodWallet,
			Gateway:     domain.PayMethodWallet,
			Status:      domain.PaySucceeded,
			Reference:   fmt.Sprintf("order:%d", order.ID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		if err := tx.Create(&domain.WalletTransaction{
			ID:           common.UUIDint64(),
			UserID:       userID,
			AmountCents:  quote.TotalCents,
			Direction:    domain.PayDirDebit,
			BalanceAfter: user.WalletBalance,
			Reference:    payment.Reference,
			Remark:       "purchase " + quote.ProductName,
			CreatedAt:    now,
		}).Error; err != nil {
			return err
		}

		result.Order = order
		result.Payment = payment

		// the intent flip and replay payload commit with the order
		if intent != nil {
			payload, err := jsonx.MarshalToString(result)
			if err != nil {
				return err
			}
			res := tx.Model(&domain.PaymentIntent{}).
				Where("id = ? AND status = ?", intent.ID, domain.IntentPending).
				Updates(map[string]interface{}{
					"status":     domain.IntentSucceeded,
					"payload":    payload,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrIntentExpired
			}
		}
		return nil
	})

	if txErr != nil {
		if intent != nil {
			_, _ = s.intents.ClaimPending(ctx, intent.ID, domain.IntentFailed)
		}
		return nil, txErr
	}

	s.deliverAsync(userID, result.Order)
	return result, nil
}

// replayPurchase returns the committed outcome tied to an idempotency key.
// The key is scoped to the user who created it; anyone else presenting it
// gets a conflict, never the owner's order.
func (s *Service) replayPurchase(intent *domain.PaymentIntent, userID int64) (*PurchaseResult, error) {
	if intent.UserID != userID || intent.Purpose != domain.IntentPurchase {
		return nil, ErrKeyConflict
	}
	switch intent.Status {
	case domain.IntentSucceeded:
		var result PurchaseResult
		if err := jsonx.UnmarshalFromString(intent.Payload, &result); err != nil {
			return nil, err
		}
		return &result, nil
	case domain.IntentPending:
		return nil, errors.Wrap(ErrGateway, "purchase still in flight")
	default:
		return nil, ErrIntentExpired
	}
}

// deliverAsync queues the delivery email so the checkout response never
// waits on SMTP.
func (s *Service) deliverAsync(userID int64, order *domain.Order) {
	if s.mailer == nil || !s.app.GetSettingsBoolValue("mail", "Enabled") {
		return
	}
	err := s.pool.Submit(func() {
		var user domain.User
		if err := s.app.DB().Where("id = ?", userID).First(&user).Error; err != nil {
			return
		}
		if common.IsEmptyOrNA(user.Email) {
			return
		}
		body := fmt.Sprintf("<p>Your order %d (%s x%d) is ready. Download it from your orders page.</p>",
			order.ID, order.ProductName, order.Quantity)
		_ = s.mailer.Send(user.Email, "Your order is ready", body)
	})
	if err != nil {
		zap.L().Warn("delivery mail task rejected", zap.Error(err))
	}
}

// CreateFundingIntent stages a gateway add-funds flow: a pending intent row
// with a server-issued idempotency key plus a hosted session at the
// provider. The client is redirected and comes back to ConfirmIntent.
func (s *Service) CreateFundingIntent(ctx context.Context, userID, amountCents int64, gateway string) (*domain.PaymentIntent, string, error) {
	if amountCents <= 0 {
		return nil, "", ErrQuantityInvalid
	}
	if gateway != domain.PayMethodCard && gateway != domain.PayMethodCrypto {
		return nil, "", errors.Errorf("unsupported gateway %q", gateway)
	}

	ttl := s.app.GetSettingsInt64Value("checkout", "IntentTTLMinutes")
	if ttl <= 0 {
		ttl = 30
	}

	intent := &domain.PaymentIntent{
		ID:             common.UUIDint64(),
		UserID:         userID,
		IdempotencyKey: common.RandomHex(16),
		Purpose:        domain.IntentAddFunds,
		AmountCents:    amountCents,
		Gateway:        gateway,
		Status:         domain.IntentPending,
		ExpiresAt:      time.Now().Add(time.Duration(ttl) * time.Minute),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	session, err := s.gateway.CreateSession(ctx, gateway, amountCents, intent.IdempotencyKey)
	if err != nil {
		return nil, "", errors.Wrap(ErrGateway, err.Error())
	}
	intent.GatewayRef = session.Ref

	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, "", err
	}
	return intent, session.RedirectURL, nil
}

// ConfirmIntent is the single reconciliation entrypoint for returning
// clients and the background reconciler. It is idempotent: confirming a
// succeeded intent replays the stored result.
func (s *Service) ConfirmIntent(ctx context.Context, key string) (*IntentResult, error) {
	intent, err := s.intents.GetByKey(ctx, key)
	if err != nil {
		return nil, ErrIntentNotFound
	}

	switch intent.Status {
	case domain.IntentSucceeded:
		var result IntentResult
		if err := jsonx.UnmarshalFromString(intent.Payload, &result); err != nil {
			return nil, err
		}
		return &result, nil
	case domain.IntentExpired, domain.IntentFailed:
		return nil, ErrIntentExpired
	}

	if time.Now().After(intent.ExpiresAt) {
		_, _ = s.intents.ClaimPending(ctx, intent.ID, domain.IntentExpired)
		return nil, ErrIntentExpired
	}

	verdict, err := s.gateway.VerifySession(ctx, intent.Gateway, intent.GatewayRef)
	if err != nil {
		// Leave the intent pending; the reconciler retries later.
		return nil, errors.Wrap(ErrGateway, err.Error())
	}
	if !verdict.Paid() {
		return nil, errors.Wrap(ErrGateway, "session not settled")
	}

	return s.settleIntent(ctx, intent)
}

// settleIntent credits the wallet for a verified intent. The pending ->
// succeeded flip is a conditional update inside the same transaction as the
// credit, payment, ledger, and replay payload: concurrent confirms settle
// once, and a failed credit leaves the intent pending for the reconciler.
func (s *Service) settleIntent(ctx context.Context, intent *domain.PaymentIntent) (*IntentResult, error) {
	result := &IntentResult{
		IdempotencyKey: intent.IdempotencyKey,
		Status:         domain.IntentSucceeded,
		AmountCents:    intent.AmountCents,
	}
	lost := false
	txErr := s.app.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		claim := tx.Model(&domain.PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, domain.IntentPending).
			Updates(map[string]interface{}{
				"status":     domain.IntentSucceeded,
				"updated_at": now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			lost = true
			return nil
		}

		if err := tx.Model(&domain.User{}).
			Where("id = ?", intent.UserID).
			Updates(map[string]interface{}{
				"wallet_balance": gorm.Expr("wallet_balance + ?", intent.AmountCents),
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}

		var user domain.User
		if err := tx.Where("id = ?", intent.UserID).First(&user).Error; err != nil {
			return err
		}

		payment := &domain.Payment{
			ID:          common.UUIDint64(),
			UserID:      intent.UserID,
			AmountCents: intent.AmountCents,
			Direction:   domain.PayDirCredit,
			Method:      intent.Gateway,
			Gateway:     intent.Gateway,
			Status:      domain.PaySucceeded,
			Reference:   "intent:" + intent.IdempotencyKey,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		if err := tx.Create(&domain.WalletTransaction{
			ID:           common.UUIDint64(),
			UserID:       intent.UserID,
			AmountCents:  intent.AmountCents,
			Direction:    domain.PayDirCredit,
			BalanceAfter: user.WalletBalance,
			Reference:    payment.Reference,
			Remark:       "add funds via " + intent.Gateway,
			CreatedAt:    now,
		}).Error; err != nil {
			return err
		}

		result.BalanceAfter = user.WalletBalance
		result.PaymentID = payment.ID

		payload, err := jsonx.MarshalToString(result)
		if err != nil {
			return err
		}
		return tx.Model(&domain.PaymentIntent{}).
			Where("id = ?", intent.ID).
			Update("payload", payload).Error
	})
	if txErr != nil {
		return nil, txErr
	}

	if lost {
		// Another confirm won and committed its payload; return that.
		fresh, err := s.intents.GetByKey(ctx, intent.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		var prior IntentResult
		if err := jsonx.UnmarshalFromString(fresh.Payload, &prior); err != nil {
			return nil, err
		}
		return &prior, nil
	}
	return result, nil
}

// ReconcileTask is the intent_reconcile scheduler implementation: re-verify
// stale pending intents against the gateway and expire the ones past TTL.
func (s *Service) ReconcileTask(sched *domain.MktScheduler) (string, error) {
	ctx := context.Background()
	now := time.Now()

	expired, err := s.intents.ExpireOlderThan(ctx, now)
	if err != nil {
		return "", err
	}

	stale, err := s.intents.GetStalePending(ctx, now.Add(-2*time.Minute), 50)
	if err != nil {
		return "", err
	}

	settled := 0
	for _, intent := range stale {
		if intent.Purpose != domain.IntentAddFunds || intent.GatewayRef == "" {
			continue
		}
		verdict, err := s.gateway.VerifySession(ctx, intent.Gateway, intent.GatewayRef)
		if err != nil {
			zap.L().Debug("reconcile verify failed",
				zap.String("key", intent.IdempotencyKey), zap.Error(err))
			continue
		}
		if !verdict.Paid() {
			continue
		}
		if _, err := s.settleIntent(ctx, intent); err != nil {
			zap.L().Error("reconcile settle failed",
				zap.String("key", intent.IdempotencyKey), zap.Error(err))
			continue
		}
		settled++
	}

	return fmt.Sprintf("expired %d, settled %d", expired, settled), nil
}

// Refund reverses a paid order: wallet credit, refund payment record, and
// optionally restocked items, in one transaction.
func (s *Service) Refund(ctx context.Context, orderID int64, remark string) error {
	restock := s.app.GetSettingsBoolValue("checkout", "RestockOnRefund")

	return s.app.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var order domain.Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status IN ?", orderID, []string{domain.OrderPaid, domain.OrderDelivered}).
			Updates(map[string]interface{}{"status": domain.OrderRefunded, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.Errorf("order %d is not refundable", orderID)
		}

		if err := tx.Model(&domain.User{}).
			Where("id = ?", order.UserID).
			Updates(map[string]interface{}{
				"wallet_balance": gorm.Expr("wallet_balance + ?", order.AmountCents),
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}

		var user domain.User
		if err := tx.Where("id = ?", order.UserID).First(&user).Error; err != nil {
			return err
		}

		payment := &domain.Payment{
			ID:          common.UUIDint64(),
			UserID:      order.UserID,
			OrderID:     order.ID,
			AmountCents: order.AmountCents,
			Direction:   domain.PayDirCredit,
			Method:      domain.PayMethodWallet,
			Gateway:     domain.PayMethodWallet,
			Status:      domain.PaySucceeded,
			Reference:   fmt.Sprintf("refund:%d", order.ID),
			Remark:      remark,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.WalletTransaction{
			ID:           common.UUIDint64(),
			UserID:       order.UserID,
			AmountCents:  order.AmountCents,
			Direction:    domain.PayDirCredit,
			BalanceAfter: user.WalletBalance,
			Reference:    payment.Reference,
			Remark:       "refund order",
			CreatedAt:    now,
		}).Error; err != nil {
			return err
		}

		if restock {
			res := tx.Model(&domain.ProductItem{}).
				Where("order_id = ?", order.ID).
				Updates(map[string]interface{}{
					"status":     domain.ItemAvailable,
					"order_id":   0,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				if err := tx.Model(&domain.Product{}).
					Where("id = ?", order.ProductID).
					Updates(map[string]interface{}{
						"stock_qty":  gorm.Expr("stock_qty + ?", res.RowsAffected),
						"updated_at": now,
					}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
