package adminapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

func registerSchedulerRoutes() {
	webserver.ApiGET("/system/schedulers", listSchedulers)
	webserver.ApiPOST("/system/schedulers", createScheduler)
	webserver.ApiPUT("/system/schedulers/:id", updateScheduler)
	webserver.ApiDELETE("/system/schedulers/:id", deleteScheduler)
	webserver.ApiPOST("/system/schedulers/:id/run", runScheduler)
}

func listSchedulers(c echo.Context) error {
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.MktScheduler{})
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if taskType := c.QueryParam("task_type"); taskType != "" {
		db = db.Where("task_type = ?", taskType)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query schedulers", err.Error())
	}
	var rows []domain.MktScheduler
	if err := db.Order("id ASC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query schedulers", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

type schedulerPayload struct {
	Name     string `json:"name" validate:"required"`
	TaskType string `json:"task_type" validate:"required"`
	Interval int    `json:"interval" validate:"required,min=10"`
	Status   string `json:"status"`
	Config   string `json:"config"`
	Remark   string `json:"remark"`
}

func createScheduler(c echo.Context) error {
	var payload schedulerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse scheduler", err.Error())
	}
	if strings.TrimSpace(payload.Name) == "" || strings.TrimSpace(payload.TaskType) == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Name and task type are required", nil)
	}
	if payload.Interval < 10 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Interval must be at least 10 seconds", nil)
	}
	status := payload.Status
	if status == "" {
		status = common.ENABLED
	}

	now := time.Now()
	sched := domain.MktScheduler{
		ID:        common.UUIDint64(),
		Name:      payload.Name,
		TaskType:  payload.TaskType,
		Interval:  payload.Interval,
		Status:    status,
		NextRunAt: now.Add(time.Duration(payload.Interval) * time.Second),
		Config:    payload.Config,
		Remark:    payload.Remark,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := GetDB(c).Create(&sched).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create scheduler", err.Error())
	}
	auditLog(c, oprName(c), "scheduler_create", fmt.Sprintf("scheduler %s (%s)", sched.Name, sched.TaskType))
	return ok(c, sched)
}

func updateScheduler(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	var sched domain.MktScheduler
	if err := GetDB(c).Where("id = ?", id).First(&sched).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Scheduler not found", nil)
	}

	var payload schedulerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse scheduler", err.Error())
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if payload.Name != "" {
		updates["name"] = payload.Name
	}
	if payload.Interval >= 10 {
		updates["interval"] = payload.Interval
		updates["next_run_at"] = time.Now().Add(time.Duration(payload.Interval) * time.Second)
	}
	if payload.Status == common.ENABLED || payload.Status == common.DISABLED {
		updates["status"] = payload.Status
	}
	if payload.Config != "" {
		updates["config"] = payload.Config
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}

	if err := GetDB(c).Model(&domain.MktScheduler{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update scheduler", err.Error())
	}
	GetDB(c).Where("id = ?", id).First(&sched)
	return ok(c, sched)
}

func deleteScheduler(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.MktScheduler{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete scheduler", err.Error())
	}
	auditLog(c, oprName(c), "scheduler_delete", fmt.Sprintf("scheduler %d deleted", id))
	return ok(c, nil)
}

func runScheduler(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	if err := GetAppContext(c).RunSchedulerNow(id); err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Scheduler not found", err.Error())
	}
	auditLog(c, oprName(c), "scheduler_run", fmt.Sprintf("scheduler %d triggered", id))
	var sched domain.MktScheduler
	GetDB(c).Where("id = ?", id).First(&sched)
	return ok(c, sched)
}
