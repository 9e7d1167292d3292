package domain

import "time"

// MktScheduler scheduler task data model for managing periodic maintenance
// jobs (intent reconciliation, coupon expiry, ticket auto-close).
type MktScheduler struct {
	ID          int64     `json:"id,string" form:"id"`
	Name        string    `json:"name" form:"name"`
	TaskType    string    `json:"task_type" form:"task_type"` // intent_reconcile, coupon_expire, ticket_autoclose
	Interval    int       `json:"interval" form:"interval"`   // Interval in seconds
	Status      string    `json:"status" form:"status"`       // Status (enabled/disabled)
	LastRunAt   time.Time `json:"last_run_at"`
	NextRunAt   time.Time `json:"next_run_at"`
	LastResult  string    `json:"last_result" form:"last_result"`
	LastMessage string    `json:"last_message" form:"last_message"`
	Config      string    `json:"config" form:"config"` // JSON config for task-specific settings
	Remark      string    `json:"remark" form:"remark"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (MktScheduler) TableName() string {
	return "mkt_scheduler"
}
