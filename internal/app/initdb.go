package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/pkg/common"
)

func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "accstore"

	hashedPassword := common.Sha256HashWithSalt(defaultPassword, common.GetSecretSalt())

	var operator domain.SysOpr
	err := a.gormDB.Where("username = ?", superUsername).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.SysOpr{
			ID:        common.UUIDint64(),
			Realname:  "administrator",
			Mobile:    "0000",
			Email:     "N/A",
			Username:  superUsername,
			Password:  hashedPassword,
			Level:     "super",
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(operator.Password) == ""
	resetLevel := !strings.EqualFold(operator.Level, "super")
	resetStatus := !strings.EqualFold(operator.Status, common.ENABLED)

	if !resetPassword && !resetLevel && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = hashedPassword
	}
	if resetLevel {
		updates["level"] = "super"
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}

	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("levelReset", resetLevel),
		zap.Bool("statusEnabled", resetStatus))
}

func (a *Application) checkSettings() {
	// Load configuration definitions from the embedded JSON file
	var schemasData ConfigSchemasJSON
	if err := json.Unmarshal(configSchemasData, &schemasData); err != nil {
		zap.L().Error("failed to load config schemas from JSON", zap.Error(err))
		return
	}

	// Iterate over all configuration definitions, checking and initializing missing entries
	for sortid, schema := range schemasData.Schemas {
		// Parse key: "category.name" -> category, name
		parts := strings.SplitN(schema.Key, ".", 2)
		if len(parts) != 2 {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}

		category := parts[0]
		name := parts[1]

		// Check whether the configuration already exists
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		// e.g., if the configuration does not exist, create the default configuration
		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:     0,
				Sort:   sortid,
				Type:   category,
				Name:   name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}

// checkSchedulers initializes default scheduled tasks
func (a *Application) checkSchedulers() {
	defaultSchedulers := []domain.MktScheduler{
		{
			Name:     "Payment Intent Reconcile",
			TaskType: "intent_reconcile",
			Interval: 300, // 5 minutes
			Status:   common.ENABLED,
			Remark:   "Re-verifies pending payment intents against the gateway and expires stale ones",
		},
		{
			Name:     "Coupon Expiry",
			TaskType: "coupon_expire",
			Interval: 3600, // 1 hour
			Status:   common.ENABLED,
			Remark:   "Flips active coupons past their validity window to expired",
		},
		{
			Name:     "Ticket Auto-close",
			TaskType: "ticket_autoclose",
			Interval: 3600, // 1 hour
			Status:   common.ENABLED,
			Remark:   "Closes support tickets idle beyond the configured number of days",
		},
	}

	for _, sched := range defaultSchedulers {
		var count int64
		a.gormDB.Model(&domain.MktScheduler{}).
			Where("task_type = ?", sched.TaskType).
			Count(&count)

		if count == 0 {
			sched.NextRunAt = time.Now().Add(time.Duration(sched.Interval) * time.Second)
			if err := a.gormDB.Create(&sched).Error; err != nil {
				zap.L().Error("failed to create default scheduler",
					zap.String("name", sched.Name),
					zap.Error(err))
			} else {
				zap.L().Info("initialized default scheduler",
					zap.String("name", sched.Name),
					zap.String("task_type", sched.TaskType))
			}
		}
	}
}

// checkProducts initializes a demo catalog so a fresh install has data
func (a *Application) checkProducts() {
	defaultProducts := []domain.Product{
		{
			PlatformName:    "demo-instagram-aged",
			Category:        "instagram",
			PriceCents:      1000,
			Description:     "Aged demo accounts, email included",
			ImportantNotice: "Demo data, not real accounts",
			DataFormat:      "login:password:email:email_password",
			Featured:        true,
			Status:          common.ENABLED,
		},
		{
			PlatformName:    "demo-twitter-fresh",
			Category:        "twitter",
			PriceCents:      450,
			Description:     "Fresh demo accounts",
			ImportantNotice: "Demo data, not real accounts",
			DataFormat:      "login:password",
			Status:          common.ENABLED,
		},
	}

	for _, p := range defaultProducts {
		var count int64
		a.gormDB.Model(&domain.Product{}).Where("platform_name = ?", p.PlatformName).Count(&count)
		if count != 0 {
			continue
		}
		p.ID = common.UUIDint64()
		p.CreatedAt = time.Now()
		p.UpdatedAt = time.Now()
		if err := a.gormDB.Create(&p).Error; err != nil {
			zap.L().Error("failed to create default product", zap.String("name", p.PlatformName), zap.Error(err))
			continue
		}
		// seed a handful of sellable items per demo product
		for i := 0; i < 5; i++ {
			a.gormDB.Create(&domain.ProductItem{
				ID:        common.UUIDint64(),
				ProductID: p.ID,
				Payload:   fmt.Sprintf("demo_user_%d:demo_pass_%d", i, i),
				Status:    domain.ItemAvailable,
			})
		}
		a.gormDB.Model(&domain.Product{}).Where("id = ?", p.ID).Update("stock_qty", 5)
		zap.L().Info("initialized default product", zap.String("name", p.PlatformName))
	}
}
