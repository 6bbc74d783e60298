package services

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
)

var two = decimal.NewFromInt(2)

// ReportService aggregates income and stock snapshots per foreign currency
// plus the single base-currency summary row. Rows stay is_final=false until
// step 9 flips them.
type ReportService struct {
	DB  *gorm.DB
	Log *logrus.Logger
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{DB: db, Log: database.Log}
}

type tradeTotals struct {
	Amount decimal.Decimal
	Local  decimal.Decimal
	Count  int64
}

func (s *ReportService) tradeTotals(tx *gorm.DB, branchID int, currency, trxType string, eod models.EODStatus) (tradeTotals, error) {
	var row struct {
		Amount decimal.NullDecimal
		Local  decimal.NullDecimal
		Count  int64
	}
	err := tx.Model(&models.Transaction{}).
		Where("branch_id = ? AND currency = ? AND trx_type = ?", branchID, currency, trxType).
		Where("status IN ?", changeStatuses).
		Where("created_at >= ? AND created_at < ?", eod.BusinessStartTime, eod.BusinessEndTime).
		Select("SUM(amount) AS amount, SUM(local_amount) AS local, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return tradeTotals{}, err
	}
	return tradeTotals{Amount: row.Amount.Decimal, Local: row.Local.Decimal, Count: row.Count}, nil
}

// GenerateReports runs the step-5b aggregation. A replay deletes the prior
// non-final rows for the same eod_id before inserting.
func (s *ReportService) GenerateReports(tx *gorm.DB, branch models.Branch, eod models.EODStatus) error {
	if err := s.deleteNonFinal(tx, eod.ID); err != nil {
		return err
	}

	var verifications []models.EODBalanceVerification
	if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&verifications).Error; err != nil {
		return err
	}

	for _, v := range verifications {
		if v.Currency == branch.BaseCurrency {
			continue
		}
		if err := s.generateCurrencyReports(tx, branch, eod, v); err != nil {
			return err
		}
	}

	return s.generateBaseSummary(tx, branch, eod)
}

func (s *ReportService) generateCurrencyReports(tx *gorm.DB, branch models.Branch, eod models.EODStatus, v models.EODBalanceVerification) error {
	buys, err := s.tradeTotals(tx, branch.ID, v.Currency, models.TrxTypeBuy, eod)
	if err != nil {
		return err
	}
	sells, err := s.tradeTotals(tx, branch.ID, v.Currency, models.TrxTypeSell, eod)
	if err != nil {
		return err
	}

	// Convention: buys carry positive foreign amount and negative local,
	// sells the inverse. Reported totals are magnitudes; averages are
	// amount-weighted.
	totalBuy := buys.Amount.Abs()
	totalSell := sells.Amount.Abs()

	avgBuyRate := decimal.Zero
	if !totalBuy.IsZero() {
		avgBuyRate = buys.Local.Abs().DivRound(totalBuy, 4)
	}
	avgSellRate := decimal.Zero
	if !totalSell.IsZero() {
		avgSellRate = sells.Local.Abs().DivRound(totalSell, 4)
	}

	// Realized income: the signed base-currency net of buys and sells.
	income := buys.Local.Add(sells.Local).Round(2)

	// Spread income against the rate mid-point, theoretical only.
	spread := decimal.Zero
	if !avgBuyRate.IsZero() && !avgSellRate.IsZero() {
		spread = avgSellRate.Sub(avgBuyRate).Div(two).Mul(totalBuy.Add(totalSell)).Round(2)
	}

	if err := tx.Create(&models.IncomeReport{
		EodID:        eod.ID,
		Currency:     v.Currency,
		TotalBuy:     totalBuy,
		TotalSell:    totalSell,
		AvgBuyRate:   avgBuyRate,
		AvgSellRate:  avgSellRate,
		Income:       income,
		SpreadIncome: spread,
		IsFinal:      false,
	}).Error; err != nil {
		return err
	}

	change := totalBuy.Sub(totalSell)
	return tx.Create(&models.StockReport{
		EodID:          eod.ID,
		Currency:       v.Currency,
		OpeningBalance: v.OpeningBalance,
		TotalBuy:       totalBuy,
		TotalSell:      totalSell,
		ChangeAmount:   change,
		CurrentBalance: v.ActualBalance,
		StockBalance:   v.TheoreticalBalance,
		IsFinal:        false,
	}).Error
}

// generateBaseSummary classifies every base-side flow of the window.
// Reversal and Eod_diff are distinct columns, never income or expense.
func (s *ReportService) generateBaseSummary(tx *gorm.DB, branch models.Branch, eod models.EODStatus) error {
	var transactions []models.Transaction
	err := tx.Where("branch_id = ?", branch.ID).
		Where("status IN ?", changeStatuses).
		Where("created_at >= ? AND created_at < ?", eod.BusinessStartTime, eod.BusinessEndTime).
		Order("created_at ASC, id ASC").
		Find(&transactions).Error
	if err != nil {
		return err
	}

	income := decimal.Zero
	expense := decimal.Zero
	adjustment := decimal.Zero
	reversal := decimal.Zero
	cashOut := decimal.Zero

	for _, t := range transactions {
		delta := t.LocalAmount
		if t.Currency == branch.BaseCurrency {
			delta = LedgerDelta(t, branch.BaseCurrency)
		}
		switch t.TrxType {
		case models.TrxTypeReversal:
			reversal = reversal.Add(delta)
		case models.TrxTypeEodDiff:
			if t.Currency == branch.BaseCurrency {
				adjustment = adjustment.Add(delta)
			}
		case models.TrxTypeCashOut:
			if t.Currency == branch.BaseCurrency {
				cashOut = cashOut.Add(delta)
			}
		default:
			if delta.IsPositive() {
				income = income.Add(delta)
			} else {
				expense = expense.Add(delta)
			}
		}
	}

	var v models.EODBalanceVerification
	opening := decimal.Zero
	current := decimal.Zero
	res := tx.Where("eod_id = ? AND currency = ?", eod.ID, branch.BaseCurrency).Limit(1).Find(&v)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		opening = v.OpeningBalance
		current = v.ActualBalance
	}

	return tx.Create(&models.BaseSummaryReport{
		EodID:            eod.ID,
		Currency:         branch.BaseCurrency,
		OpeningBalance:   opening,
		IncomeAmount:     income,
		ExpenseAmount:    expense,
		AdjustmentAmount: adjustment,
		ReversalAmount:   reversal,
		CashOutAmount:    cashOut,
		CurrentBalance:   current,
		IsFinal:          false,
	}).Error
}

func (s *ReportService) deleteNonFinal(tx *gorm.DB, eodID int) error {
	if err := tx.Where("eod_id = ? AND is_final = ?", eodID, false).Delete(&models.IncomeReport{}).Error; err != nil {
		return err
	}
	if err := tx.Where("eod_id = ? AND is_final = ?", eodID, false).Delete(&models.StockReport{}).Error; err != nil {
		return err
	}
	return tx.Where("eod_id = ? AND is_final = ?", eodID, false).Delete(&models.BaseSummaryReport{}).Error
}

// Finalize flips is_final on all three report families; step 9 only.
func (s *ReportService) Finalize(tx *gorm.DB, eodID int) error {
	if err := tx.Model(&models.IncomeReport{}).Where("eod_id = ?", eodID).Update("is_final", true).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.StockReport{}).Where("eod_id = ?", eodID).Update("is_final", true).Error; err != nil {
		return err
	}
	return tx.Model(&models.BaseSummaryReport{}).Where("eod_id = ?", eodID).Update("is_final", true).Error
}
