package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockReport struct {
	ID             int             `gorm:"primaryKey;autoIncrement" json:"id"`
	EodID          int             `gorm:"column:eod_id;not null;index" json:"eod_id"`
	Currency       string          `gorm:"column:currency;size:10;not null" json:"currency"`
	OpeningBalance decimal.Decimal `gorm:"column:opening_balance;type:decimal(20,2);default:0.00" json:"opening_balance"`
	TotalBuy       decimal.Decimal `gorm:"column:total_buy;type:decimal(20,2);default:0.00" json:"total_buy"`
	TotalSell      decimal.Decimal `gorm:"column:total_sell;type:decimal(20,2);default:0.00" json:"total_sell"`
	ChangeAmount   decimal.Decimal `gorm:"column:change_amount;type:decimal(20,2);default:0.00" json:"change_amount"`
	CurrentBalance decimal.Decimal `gorm:"column:current_balance;type:decimal(20,2);default:0.00" json:"current_balance"`
	StockBalance   decimal.Decimal `gorm:"column:stock_balance;type:decimal(20,2);default:0.00" json:"stock_balance"`
	IsFinal        bool            `gorm:"column:is_final;default:false" json:"is_final"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (StockReport) TableName() string {
	return "eod_stock_reports"
}
