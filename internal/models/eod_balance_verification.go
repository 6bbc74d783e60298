package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EODBalanceVerification is the carry-forward anchor: the next EOD reads the
// previous completed EOD's row as its opening balance. Step 6 rewrites
// ActualBalance to the post-cash-out remainder.
type EODBalanceVerification struct {
	ID                 int             `gorm:"primaryKey;autoIncrement" json:"id"`
	EodID              int             `gorm:"column:eod_id;not null;uniqueIndex:idx_verification_eod_currency" json:"eod_id"`
	Currency           string          `gorm:"column:currency;size:10;not null;uniqueIndex:idx_verification_eod_currency" json:"currency"`
	OpeningBalance     decimal.Decimal `gorm:"column:opening_balance;type:decimal(20,2);default:0.00" json:"opening_balance"`
	TheoreticalBalance decimal.Decimal `gorm:"column:theoretical_balance;type:decimal(20,2);default:0.00" json:"theoretical_balance"`
	ActualBalance      decimal.Decimal `gorm:"column:actual_balance;type:decimal(20,2);default:0.00" json:"actual_balance"`
	Difference         decimal.Decimal `gorm:"column:difference;type:decimal(20,2);default:0.00" json:"difference"`
	IsMatch            bool            `gorm:"column:is_match;default:false" json:"is_match"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EODBalanceVerification) TableName() string {
	return "eod_balance_verifications"
}
