package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyBalance holds one row per (branch, currency), created lazily on
// first write. Shared with the trading engine; the EOD engine is the sole
// mutator while the branch is locked.
type CurrencyBalance struct {
	ID        int             `gorm:"primaryKey;autoIncrement" json:"id"`
	BranchId  int             `gorm:"column:branch_id;not null;uniqueIndex:idx_balance_branch_currency" json:"branch_id"`
	Currency  string          `gorm:"column:currency;size:10;not null;uniqueIndex:idx_balance_branch_currency" json:"currency"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);default:0.00" json:"balance"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CurrencyBalance) TableName() string {
	return "currency_balances"
}
