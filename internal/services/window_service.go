package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fx-eod-service/internal/models"
)

// WindowService computes per-currency business windows for opening-balance
// carry-forward. Different currencies can have different ChangeStart values
// within the same EOD run.
type WindowService struct {
	DB *gorm.DB
}

func NewWindowService(db *gorm.DB) *WindowService {
	return &WindowService{DB: db}
}

// CurrencyWindow is the half-open interval [ChangeStart, ChangeEnd) over
// which current-EOD deltas accumulate, plus the opening balance in force at
// ChangeStart. ExcludeTrxID is set when the opening balance was seeded from
// the first transaction, which must then not be counted again as a delta.
type CurrencyWindow struct {
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ChangeStart    time.Time       `json:"change_start"`
	ChangeEnd      time.Time       `json:"change_end"`
	ExcludeTrxID   int             `json:"-"`
}

var openingTrxTypes = []string{
	models.TrxTypeBuy,
	models.TrxTypeSell,
	models.TrxTypeReversal,
	models.TrxTypeAdjustBalance,
	models.TrxTypeInitialBalance,
	models.TrxTypeCashOut,
}

// ResolveWindow derives the opening balance and change window for one
// currency. Priority: previous completed EOD's verification row (the
// carry-forward anchor), else the first transaction ever for this pair,
// else zero from start of the EOD date.
func (s *WindowService) ResolveWindow(tx *gorm.DB, branch models.Branch, currency string, eod models.EODStatus) (CurrencyWindow, error) {
	w := CurrencyWindow{
		Currency:       currency,
		OpeningBalance: decimal.Zero,
		ChangeEnd:      eod.StartedAt,
	}

	var prior struct {
		ActualBalance decimal.Decimal
		CompletedAt   *time.Time
	}
	res := tx.Table("eod_balance_verifications v").
		Select("v.actual_balance, s.completed_at").
		Joins("JOIN eod_statuses s ON s.id = v.eod_id").
		Where("s.branch_id = ? AND s.status = ? AND v.currency = ?", branch.ID, models.EODStatusCompleted, currency).
		Order("s.completed_at DESC").
		Limit(1).
		Scan(&prior)
	if res.Error != nil {
		return w, res.Error
	}
	if res.RowsAffected > 0 && prior.CompletedAt != nil {
		// +1s so a transaction stamped exactly at completed_at is not
		// counted by two consecutive windows.
		w.OpeningBalance = prior.ActualBalance
		w.ChangeStart = prior.CompletedAt.Add(time.Second)
		return w, nil
	}

	var first models.Transaction
	res = tx.Where("branch_id = ? AND currency = ? AND trx_type IN ?", branch.ID, currency, openingTrxTypes).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&first)
	if res.Error != nil {
		return w, res.Error
	}
	if res.RowsAffected > 0 {
		w.OpeningBalance = LedgerDelta(first, branch.BaseCurrency)
		w.ChangeStart = first.CreatedAt
		w.ExcludeTrxID = first.ID
		return w, nil
	}

	y, m, d := eod.EodDate.Date()
	w.ChangeStart = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return w, nil
}

// ReconciliationSet is the union of currencies with a balance row for the
// branch, currencies touched by transactions inside the business window, and
// the branch's base currency. The base currency is listed first.
func (s *WindowService) ReconciliationSet(tx *gorm.DB, branch models.Branch, start, end time.Time) ([]string, error) {
	seen := map[string]bool{branch.BaseCurrency: true}
	set := []string{branch.BaseCurrency}

	var fromBalances []string
	if err := tx.Model(&models.CurrencyBalance{}).
		Where("branch_id = ?", branch.ID).
		Distinct().
		Order("currency ASC").
		Pluck("currency", &fromBalances).Error; err != nil {
		return nil, err
	}

	var fromTransactions []string
	if err := tx.Model(&models.Transaction{}).
		Where("branch_id = ? AND created_at >= ? AND created_at < ?", branch.ID, start, end).
		Distinct().
		Order("currency ASC").
		Pluck("currency", &fromTransactions).Error; err != nil {
		return nil, err
	}

	for _, c := range append(fromBalances, fromTransactions...) {
		if !seen[c] {
			seen[c] = true
			set = append(set, c)
		}
	}
	return set, nil
}
