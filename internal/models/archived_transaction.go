package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ArchivedTransaction struct {
	ID            int             `gorm:"primaryKey;autoIncrement" json:"id"`
	BranchId      int             `gorm:"column:branch_id;not null;index" json:"branch_id"`
	Currency      string          `gorm:"column:currency;size:10;not null" json:"currency"`
	TrxType       string          `gorm:"column:trx_type;size:50;not null" json:"trx_type"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Rate          decimal.Decimal `gorm:"column:rate;type:decimal(20,4);default:0.0000" json:"rate"`
	LocalAmount   decimal.Decimal `gorm:"column:local_amount;type:decimal(20,2);not null" json:"local_amount"`
	Status        string          `gorm:"column:status;size:20;not null" json:"status"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(20,2);default:0.00" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2);default:0.00" json:"balance_after"`
	ReferenceNo   string          `gorm:"column:reference_no;size:50" json:"reference_no"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	CreatedBy     string          `gorm:"column:created_by;size:255" json:"created_by"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (ArchivedTransaction) TableName() string {
	return "archived_fx_transactions"
}
