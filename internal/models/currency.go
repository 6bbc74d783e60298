package models

import (
	"time"
)

// Currency is global, not branch-scoped.
type Currency struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"column:code;size:10;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"column:name;size:100;not null" json:"name"`
	Icon      string    `gorm:"column:icon;size:255" json:"icon"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Currency) TableName() string {
	return "currencies"
}
