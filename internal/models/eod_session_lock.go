package models

import (
	"time"
)

// EODSessionLock binds an EOD run to one terminal session. At most one
// active lock per branch.
type EODSessionLock struct {
	ID           int       `gorm:"primaryKey;autoIncrement" json:"id"`
	BranchId     int       `gorm:"column:branch_id;not null;index" json:"branch_id"`
	SessionID    string    `gorm:"column:session_id;size:64;not null" json:"session_id"`
	Operator     string    `gorm:"column:operator;size:255" json:"operator"`
	EodID        int       `gorm:"column:eod_id" json:"eod_id"`
	IP           string    `gorm:"column:ip;size:64" json:"ip"`
	UserAgent    string    `gorm:"column:user_agent;size:500" json:"user_agent"`
	IsActive     bool      `gorm:"column:is_active;default:true;index" json:"is_active"`
	LastActivity time.Time `gorm:"column:last_activity" json:"last_activity"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (EODSessionLock) TableName() string {
	return "eod_session_locks"
}
