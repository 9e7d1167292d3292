package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/accstore/accstore/internal/domain"
)

// SchedulerTaskFunc runs one scheduler execution and returns a result message.
type SchedulerTaskFunc func(sched *domain.MktScheduler) (string, error)

var (
	schedulerTasks   = map[string]SchedulerTaskFunc{}
	schedulerTasksMu sync.RWMutex
)

// RegisterSchedulerTask binds a task type to its implementation. Services
// register their own task types (e.g. intent_reconcile) during wiring.
func (a *Application) RegisterSchedulerTask(taskType string, fn SchedulerTaskFunc) {
	schedulerTasksMu.Lock()
	defer schedulerTasksMu.Unlock()
	schedulerTasks[taskType] = fn
}

// StartSchedulerService runs enabled schedulers periodically
func (a *Application) StartSchedulerService(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.runSchedulers()
			}
		}
	}()
}

// runSchedulers executes enabled schedulers whose next_run_at has passed
func (a *Application) runSchedulers() {
	var schedulers []domain.MktScheduler
	a.gormDB.Where("status = ?", "enabled").Find(&schedulers)
	now := time.Now()
	for _, sched := range schedulers {
		if sched.NextRunAt.IsZero() || now.After(sched.NextRunAt) || now.Equal(sched.NextRunAt) {
			a.executeScheduler(&sched)
			a.gormDB.Model(&domain.MktScheduler{}).Where("id = ?", sched.ID).
				Update("next_run_at", now.Add(time.Duration(sched.Interval)*time.Second))
		}
	}
}

func (a *Application) executeScheduler(sched *domain.MktScheduler) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	var (
		msg string
		err error
	)
	switch sched.TaskType {
	case "coupon_expire":
		msg, err = a.runCouponExpireScheduler(sched)
	case "ticket_autoclose":
		msg, err = a.runTicketAutocloseScheduler(sched)
	default:
		schedulerTasksMu.RLock()
		fn, ok := schedulerTasks[sched.TaskType]
		schedulerTasksMu.RUnlock()
		if !ok {
			return
		}
		msg, err = fn(sched)
	}

	result := "success"
	if err != nil {
		result = "failed"
		msg = err.Error()
		zap.L().Error("scheduler run failed",
			zap.String("task_type", sched.TaskType), zap.Error(err))
	}

	a.gormDB.Model(&domain.MktScheduler{}).Where("id = ?", sched.ID).Updates(map[string]interface{}{
		"last_run_at":  time.Now(),
		"last_result":  result,
		"last_message": msg,
	})
}

// RunSchedulerNow triggers a scheduler execution immediately by ID
func (a *Application) RunSchedulerNow(id int64) error {
	var sched domain.MktScheduler
	if err := a.gormDB.First(&sched, id).Error; err != nil {
		return err
	}

	a.executeScheduler(&sched)

	now := time.Now()
	a.gormDB.Model(&domain.MktScheduler{}).Where("id = ?", sched.ID).Updates(map[string]interface{}{
		"next_run_at": now.Add(time.Duration(sched.Interval) * time.Second),
	})
	return nil
}

// runCouponExpireScheduler flips active coupons past their validity window
func (a *Application) runCouponExpireScheduler(sched *domain.MktScheduler) (string, error) {
	res := a.gormDB.Model(&domain.Coupon{}).
		Where("status = ? AND valid_until < ?", domain.CouponActive, time.Now()).
		Updates(map[string]interface{}{"status": domain.CouponExpired, "updated_at": time.Now()})
	if res.Error != nil {
		return "", res.Error
	}
	return fmt.Sprintf("expired %d coupons", res.RowsAffected), nil
}

// runTicketAutocloseScheduler closes tickets idle beyond the configured days
func (a *Application) runTicketAutocloseScheduler(sched *domain.MktScheduler) (string, error) {
	days := a.ConfigMgr().GetInt64("support", "TicketAutocloseDays")
	if days <= 0 {
		return "autoclose disabled", nil
	}
	cutoff := time.Now().Add(-time.Hour * 24 * time.Duration(days))
	res := a.gormDB.Model(&domain.Ticket{}).
		Where("status = ? AND updated_at < ?", domain.TicketOpen, cutoff).
		Updates(map[string]interface{}{
			"status":     domain.TicketClosed,
			"closed_at":  time.Now(),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return "", res.Error
	}
	return fmt.Sprintf("closed %d idle tickets", res.RowsAffected), nil
}
