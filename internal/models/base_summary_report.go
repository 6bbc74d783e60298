package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseSummaryReport is the single base-currency row per EOD. Reversal is a
// distinct flow, never folded into income or expense.
type BaseSummaryReport struct {
	ID               int             `gorm:"primaryKey;autoIncrement" json:"id"`
	EodID            int             `gorm:"column:eod_id;not null;uniqueIndex" json:"eod_id"`
	Currency         string          `gorm:"column:currency;size:10;not null" json:"currency"`
	OpeningBalance   decimal.Decimal `gorm:"column:opening_balance;type:decimal(20,2);default:0.00" json:"opening_balance"`
	IncomeAmount     decimal.Decimal `gorm:"column:income_amount;type:decimal(20,2);default:0.00" json:"income_amount"`
	ExpenseAmount    decimal.Decimal `gorm:"column:expense_amount;type:decimal(20,2);default:0.00" json:"expense_amount"`
	AdjustmentAmount decimal.Decimal `gorm:"column:adjustment_amount;type:decimal(20,2);default:0.00" json:"adjustment_amount"`
	ReversalAmount   decimal.Decimal `gorm:"column:reversal_amount;type:decimal(20,2);default:0.00" json:"reversal_amount"`
	CashOutAmount    decimal.Decimal `gorm:"column:cash_out_amount;type:decimal(20,2);default:0.00" json:"cash_out_amount"`
	CurrentBalance   decimal.Decimal `gorm:"column:current_balance;type:decimal(20,2);default:0.00" json:"current_balance"`
	IsFinal          bool            `gorm:"column:is_final;default:false" json:"is_final"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (BaseSummaryReport) TableName() string {
	return "eod_base_summaries"
}
