package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EODCashOut struct {
	ID               int             `gorm:"primaryKey;autoIncrement" json:"id"`
	EodID            int             `gorm:"column:eod_id;not null;index" json:"eod_id"`
	Currency         string          `gorm:"column:currency;size:10;not null" json:"currency"`
	CashOutAmount    decimal.Decimal `gorm:"column:cash_out_amount;type:decimal(20,2);not null" json:"cash_out_amount"`
	RemainingBalance decimal.Decimal `gorm:"column:remaining_balance;type:decimal(20,2);default:0.00" json:"remaining_balance"`
	TransactionID    int             `gorm:"column:transaction_id" json:"transaction_id"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (EODCashOut) TableName() string {
	return "eod_cash_outs"
}
