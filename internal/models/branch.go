package models

import (
	"time"
)

type Branch struct {
	ID           int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;size:255;not null" json:"name"`
	Code         string    `gorm:"column:code;size:50;not null;uniqueIndex" json:"code"`
	BaseCurrency string    `gorm:"column:base_currency;size:10;not null" json:"base_currency"`
	Address      string    `gorm:"column:address;size:500" json:"address"`
	Status       int       `gorm:"column:status;default:1" json:"status"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Branch) TableName() string {
	return "branches"
}
