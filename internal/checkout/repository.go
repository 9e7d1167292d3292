package checkout

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/domain"
)

// IntentRepository handles database operations for payment intents
type IntentRepository interface {
	// Create inserts a new intent
	Create(ctx context.Context, intent *domain.PaymentIntent) error

	// GetByKey retrieves an intent by its idempotency key
	GetByKey(ctx context.Context, key string) (*domain.PaymentIntent, error)

	// GetStalePending retrieves pending intents older than the given age
	GetStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.PaymentIntent, error)

	// ClaimPending conditionally flips an intent from pending to the given
	// status; returns false if another writer won.
	ClaimPending(ctx context.Context, id int64, status string) (bool, error)

	// ExpireOlderThan flips pending intents past their expiry to expired
	ExpireOlderThan(ctx context.Context, now time.Time) (int64, error)
}

// GormIntentRepository is the GORM implementation of IntentRepository
type GormIntentRepository struct {
	db *gorm.DB
}

// NewGormIntentRepository creates a new GORM-based repository
func NewGormIntentRepository(db *gorm.DB) *GormIntentRepository {
	return &GormIntentRepository{db: db}
}

func (r *GormIntentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *GormIntentRepository) GetByKey(ctx context.Context, key string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *GormIntentRepository) GetStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.PaymentIntent, error) {
	var intents []*domain.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.IntentPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *GormIntentRepository) ClaimPending(ctx context.Context, id int64, status string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.PaymentIntent{}).
		Where("id = ? AND status = ?", id, domain.IntentPending).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *GormIntentRepository) ExpireOlderThan(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.PaymentIntent{}).
		Where("status = ? AND expires_at < ?", domain.IntentPending, now).
		Updates(map[string]interface{}{
			"status":     domain.IntentExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
