package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IncomeReport is a per (eod, foreign currency) gain snapshot. Rows carry
// IsFinal=false until step 9.
type IncomeReport struct {
	ID           int             `gorm:"primaryKey;autoIncrement" json:"id"`
	EodID        int             `gorm:"column:eod_id;not null;index" json:"eod_id"`
	Currency     string          `gorm:"column:currency;size:10;not null" json:"currency"`
	TotalBuy     decimal.Decimal `gorm:"column:total_buy;type:decimal(20,2);default:0.00" json:"total_buy"`
	TotalSell    decimal.Decimal `gorm:"column:total_sell;type:decimal(20,2);default:0.00" json:"total_sell"`
	AvgBuyRate   decimal.Decimal `gorm:"column:avg_buy_rate;type:decimal(20,4);default:0.0000" json:"avg_buy_rate"`
	AvgSellRate  decimal.Decimal `gorm:"column:avg_sell_rate;type:decimal(20,4);default:0.0000" json:"avg_sell_rate"`
	Income       decimal.Decimal `gorm:"column:income;type:decimal(20,2);default:0.00" json:"income"`
	SpreadIncome decimal.Decimal `gorm:"column:spread_income;type:decimal(20,2);default:0.00" json:"spread_income"`
	IsFinal      bool            `gorm:"column:is_final;default:false" json:"is_final"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (IncomeReport) TableName() string {
	return "eod_income_reports"
}
