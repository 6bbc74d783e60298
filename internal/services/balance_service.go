package services

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fx-eod-service/internal/models"
)

// matchTolerance is the absolute tolerance under which a theoretical/actual
// pair counts as reconciled.
var matchTolerance = decimal.RequireFromString("0.01")

var changeStatuses = []string{models.TrxStatusCompleted, models.TrxStatusReversed}

// BalanceService derives theoretical balances over a business window and
// compares them against the live CurrencyBalance rows.
type BalanceService struct {
	DB     *gorm.DB
	Window *WindowService
}

func NewBalanceService(db *gorm.DB, window *WindowService) *BalanceService {
	return &BalanceService{DB: db, Window: window}
}

// BalanceCalculation is the per-currency outcome of step 3, persisted as an
// EODBalanceVerification row at step 4.
type BalanceCalculation struct {
	Currency           string          `json:"currency"`
	IsBase             bool            `json:"is_base"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	DailyChange        decimal.Decimal `json:"daily_change"`
	AdjustmentTotal    decimal.Decimal `json:"adjustment_total"`
	TheoreticalBalance decimal.Decimal `json:"theoretical_balance"`
	ActualBalance      decimal.Decimal `json:"actual_balance"`
	Difference         decimal.Decimal `json:"difference"`
	IsMatch            bool            `json:"is_match"`
}

// LedgerDelta returns the signed amount a transaction moves on the ledger of
// the currency it touches: the foreign-side amount for foreign currencies,
// the base-side local_amount for the base currency, falling back to the
// non-zero field when a direct move carried the delta on the other side.
func LedgerDelta(trx models.Transaction, baseCurrency string) decimal.Decimal {
	if trx.Currency == baseCurrency {
		if !trx.LocalAmount.IsZero() {
			return trx.LocalAmount
		}
		return trx.Amount
	}
	if !trx.Amount.IsZero() {
		return trx.Amount
	}
	return trx.LocalAmount
}

// DailyChange sums ledger deltas over [w.ChangeStart, w.ChangeEnd) with
// status in {completed, reversed}, excluding Eod_diff rows. For the base
// currency it adds the base side of every foreign exchange to the direct
// base moves.
func (s *BalanceService) DailyChange(tx *gorm.DB, branchID int, currency string, isBase bool, w CurrencyWindow) (decimal.Decimal, error) {
	windowQuery := func() *gorm.DB {
		q := tx.Model(&models.Transaction{}).
			Where("branch_id = ?", branchID).
			Where("status IN ?", changeStatuses).
			Where("trx_type <> ?", models.TrxTypeEodDiff).
			Where("created_at >= ? AND created_at < ?", w.ChangeStart, w.ChangeEnd)
		if w.ExcludeTrxID != 0 {
			q = q.Where("id <> ?", w.ExcludeTrxID)
		}
		return q
	}

	if !isBase {
		var sum decimal.NullDecimal
		err := windowQuery().Where("currency = ?", currency).
			Select("SUM(amount)").
			Scan(&sum).Error
		if err != nil {
			return decimal.Zero, err
		}
		return sum.Decimal, nil
	}

	// Base currency: direct moves where the delta may sit on either field,
	// plus the local side of all foreign transactions.
	var direct []models.Transaction
	if err := windowQuery().Where("currency = ?", currency).Find(&direct).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range direct {
		total = total.Add(LedgerDelta(t, currency))
	}

	var foreignSide decimal.NullDecimal
	err := windowQuery().Where("currency <> ?", currency).
		Select("SUM(local_amount)").
		Scan(&foreignSide).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Add(foreignSide.Decimal), nil
}

// EodDiffTotal sums the ledger deltas of Eod_diff adjustments recorded in
// the window. Kept out of DailyChange so conservation checks and reports
// never see them; the verification adds them as a separate term.
func (s *BalanceService) EodDiffTotal(tx *gorm.DB, branchID int, currency string, isBase bool, w CurrencyWindow) (decimal.Decimal, error) {
	q := tx.Model(&models.Transaction{}).
		Where("branch_id = ? AND currency = ?", branchID, currency).
		Where("status IN ?", changeStatuses).
		Where("trx_type = ?", models.TrxTypeEodDiff).
		Where("created_at >= ?", w.ChangeStart)

	column := "SUM(amount)"
	if isBase {
		column = "SUM(local_amount)"
	}
	var sum decimal.NullDecimal
	if err := q.Select(column).Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum.Decimal, nil
}

// Calculate runs the resolver and the balance engine for every currency in
// the reconciliation set.
func (s *BalanceService) Calculate(tx *gorm.DB, branch models.Branch, eod models.EODStatus) ([]BalanceCalculation, error) {
	currencies, err := s.Window.ReconciliationSet(tx, branch, eod.BusinessStartTime, eod.BusinessEndTime)
	if err != nil {
		return nil, err
	}

	calcs := make([]BalanceCalculation, 0, len(currencies))
	for _, currency := range currencies {
		calc, err := s.CalculateCurrency(tx, branch, eod, currency)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	return calcs, nil
}

// CalculateCurrency computes one currency's theoretical/actual pair.
func (s *BalanceService) CalculateCurrency(tx *gorm.DB, branch models.Branch, eod models.EODStatus, currency string) (BalanceCalculation, error) {
	isBase := currency == branch.BaseCurrency

	w, err := s.Window.ResolveWindow(tx, branch, currency, eod)
	if err != nil {
		return BalanceCalculation{}, err
	}

	change, err := s.DailyChange(tx, branch.ID, currency, isBase, w)
	if err != nil {
		return BalanceCalculation{}, err
	}

	adjustment, err := s.EodDiffTotal(tx, branch.ID, currency, isBase, w)
	if err != nil {
		return BalanceCalculation{}, err
	}

	var row models.CurrencyBalance
	actual := decimal.Zero
	res := tx.Where("branch_id = ? AND currency = ?", branch.ID, currency).Limit(1).Find(&row)
	if res.Error != nil {
		return BalanceCalculation{}, res.Error
	}
	if res.RowsAffected > 0 {
		actual = row.Balance
	}

	theoretical := w.OpeningBalance.Add(change).Add(adjustment)
	difference := theoretical.Sub(actual)

	return BalanceCalculation{
		Currency:           currency,
		IsBase:             isBase,
		OpeningBalance:     w.OpeningBalance,
		DailyChange:        change,
		AdjustmentTotal:    adjustment,
		TheoreticalBalance: theoretical,
		ActualBalance:      actual,
		Difference:         difference,
		IsMatch:            difference.Abs().LessThan(matchTolerance),
	}, nil
}
