package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. EodDiff adjustments are excluded from daily-change and
// income/stock aggregation.
const (
	TrxTypeBuy            = "buy"
	TrxTypeSell           = "sell"
	TrxTypeReversal       = "reversal"
	TrxTypeAdjustBalance  = "adjust_balance"
	TrxTypeInitialBalance = "initial_balance"
	TrxTypeCashOut        = "cash_out"
	TrxTypeEodDiff        = "Eod_diff"
)

const (
	TrxStatusPending   = "pending"
	TrxStatusCompleted = "completed"
	TrxStatusReversed  = "reversed"
)

// Transaction is immutable once status is completed or reversed. For
// foreign-currency buy/sell both Amount (foreign side) and LocalAmount (base
// side) are non-zero; for direct base-currency moves exactly one of the pair
// carries the signed delta.
type Transaction struct {
	ID            int             `gorm:"primaryKey;autoIncrement" json:"id"`
	BranchId      int             `gorm:"column:branch_id;not null;index:idx_trx_branch_currency" json:"branch_id"`
	Currency      string          `gorm:"column:currency;size:10;not null;index:idx_trx_branch_currency" json:"currency"`
	TrxType       string          `gorm:"column:trx_type;size:50;not null;index" json:"trx_type"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Rate          decimal.Decimal `gorm:"column:rate;type:decimal(20,4);default:0.0000" json:"rate"`
	LocalAmount   decimal.Decimal `gorm:"column:local_amount;type:decimal(20,2);not null" json:"local_amount"`
	Status        string          `gorm:"column:status;size:20;not null;default:completed;index" json:"status"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(20,2);default:0.00" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2);default:0.00" json:"balance_after"`
	ReferenceNo   string          `gorm:"column:reference_no;size:50;index" json:"reference_no"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	CreatedBy     string          `gorm:"column:created_by;size:255" json:"created_by"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "fx_transactions"
}
