package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	// Collect CPU usage
	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // Store as percentage * 100
	}

	// Collect memory usage
	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024))
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("accstore_cpuuse", int64(cpuuse*100))
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("accstore_memuse", int64(meminfo.RSS/1024/1024))
	}
}

// SchedClearExpireData cleans aged rows and orphaned upload files
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	// Operator audit log retention: one year
	a.gormDB.
		Where("opt_time < ? ", time.Now().
			Add(-time.Hour*24*365)).Delete(domain.SysOprLog{})

	// Expired storefront sessions
	sweepDays := a.ConfigMgr().GetInt64("store", "SessionSweepDays")
	if sweepDays == 0 {
		sweepDays = 7
	}
	a.gormDB.
		Where("expires_at < ?", time.Now().Add(-time.Hour*24*time.Duration(sweepDays))).
		Delete(&domain.UserSession{})

	// Spent or expired password reset codes
	a.gormDB.
		Where("used = ? OR expires_at < ?", true, time.Now().Add(-time.Hour*24)).
		Delete(&domain.PasswordReset{})

	a.sweepOrphanAttachments()
}

// sweepOrphanAttachments removes uploads that were never linked to a message
// within the grace window, files included.
func (a *Application) sweepOrphanAttachments() {
	grace := a.ConfigMgr().GetInt64("support", "AttachmentGraceHours")
	if grace == 0 {
		grace = 24
	}

	var orphans []domain.Attachment
	err := a.gormDB.
		Where("message_id = 0 AND created_at < ?", time.Now().Add(-time.Hour*time.Duration(grace))).
		Find(&orphans).Error
	if err != nil {
		zap.L().Error("failed to query orphan attachments", zap.Error(err))
		return
	}

	uploadDir := a.appConfig.AbsUploadDir()
	for _, att := range orphans {
		if att.StoredName != "" {
			if err := os.Remove(filepath.Join(uploadDir, att.StoredName)); err != nil && !os.IsNotExist(err) {
				zap.L().Warn("failed to remove orphan upload file",
					zap.String("file", att.StoredName), zap.Error(err))
			}
		}
		if err := a.gormDB.Delete(&domain.Attachment{}, att.ID).Error; err != nil {
			zap.L().Error("failed to delete orphan attachment row",
				zap.Int64("id", att.ID), zap.Error(err))
		}
	}
	if len(orphans) > 0 {
		zap.L().Info("swept orphan attachments", zap.Int("count", len(orphans)))
	}
}
