package models

import (
	"time"
)

const (
	EODStatusProcessing = "processing"
	EODStatusCompleted  = "completed"
	EODStatusCancelled  = "cancelled"
)

const (
	StepStatusPending    = "pending"
	StepStatusProcessing = "processing"
	StepStatusCompleted  = "completed"
	StepStatusFailed     = "failed"
	StepStatusCancelled  = "cancelled"
)

// EODStatus tracks the nine-step workflow. At most one row per branch may be
// in status=processing.
type EODStatus struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	BranchId          int        `gorm:"column:branch_id;not null;index" json:"branch_id"`
	EodDate           time.Time  `gorm:"column:eod_date;type:date;not null" json:"eod_date"`
	Status            string     `gorm:"column:status;size:20;not null;default:processing;index" json:"status"`
	Step              int        `gorm:"column:step;not null;default:1" json:"step"`
	StepStatus        string     `gorm:"column:step_status;size:20;not null;default:pending" json:"step_status"`
	StartedAt         time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	StartedBy         string     `gorm:"column:started_by;size:255" json:"started_by"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CompletedBy       string     `gorm:"column:completed_by;size:255" json:"completed_by"`
	IsLocked          bool       `gorm:"column:is_locked;default:false" json:"is_locked"`
	BusinessStartTime time.Time  `gorm:"column:business_start_time" json:"business_start_time"`
	BusinessEndTime   time.Time  `gorm:"column:business_end_time" json:"business_end_time"`
	CancelReason      string     `gorm:"column:cancel_reason;size:500" json:"cancel_reason"`
	PrintCount        int        `gorm:"column:print_count;default:0" json:"print_count"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EODStatus) TableName() string {
	return "eod_statuses"
}
