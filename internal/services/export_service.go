package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
	"fx-eod-service/internal/render"
	"fx-eod-service/pkg/common"
)

const TypeEODExport = "eod:export"

type EODExportPayload struct {
	EodID int `json:"eod_id"`
}

// NewEODExportTask builds the background task enqueued when an EOD completes.
func NewEODExportTask(eodID int) (*asynq.Task, error) {
	payload, err := json.Marshal(EODExportPayload{EodID: eodID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEODExport, payload, asynq.MaxRetry(5)), nil
}

// ExportService writes an EOD's figures into an xlsx workbook next to the
// printed reports. The worker runs it after every completion; the export
// route rebuilds it on demand.
type ExportService struct {
	DB      *gorm.DB
	BaseDir string
	Log     *logrus.Logger
}

func NewExportService(db *gorm.DB) *ExportService {
	baseDir := os.Getenv("EOD_REPORT_DIR")
	if baseDir == "" {
		baseDir = "reports"
	}
	return &ExportService{DB: db, BaseDir: baseDir, Log: database.Log}
}

// HandleExportTask is the asynq handler for TypeEODExport.
func (s *ExportService) HandleExportTask(ctx context.Context, t *asynq.Task) error {
	var payload EODExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal export payload: %w: %w", err, asynq.SkipRetry)
	}

	path, err := s.Export(ctx, payload.EodID)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"eod_id": payload.EodID}).Error("EOD export failed")
		return err
	}
	s.Log.WithFields(logrus.Fields{"eod_id": payload.EodID, "path": path}).Info("EOD workbook exported")
	return nil
}

// Export builds the workbook for one EOD and returns the file path.
func (s *ExportService) Export(ctx context.Context, eodID int) (string, error) {
	db := s.DB.WithContext(ctx)

	var eod models.EODStatus
	res := db.Where("id = ?", eodID).Limit(1).Find(&eod)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", common.NewEODError(common.KindEodNotFound, fmt.Sprintf("EOD %d not found", eodID))
	}

	var verifications []models.EODBalanceVerification
	if err := db.Where("eod_id = ?", eodID).Order("currency ASC").Find(&verifications).Error; err != nil {
		return "", err
	}
	var cashOuts []models.EODCashOut
	if err := db.Where("eod_id = ?", eodID).Order("currency ASC").Find(&cashOuts).Error; err != nil {
		return "", err
	}
	var incomes []models.IncomeReport
	if err := db.Where("eod_id = ?", eodID).Order("currency ASC").Find(&incomes).Error; err != nil {
		return "", err
	}
	var stocks []models.StockReport
	if err := db.Where("eod_id = ?", eodID).Order("currency ASC").Find(&stocks).Error; err != nil {
		return "", err
	}
	var summary models.BaseSummaryReport
	summaryRes := db.Where("eod_id = ?", eodID).Limit(1).Find(&summary)
	if summaryRes.Error != nil {
		return "", summaryRes.Error
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeVerificationSheet(f, verifications); err != nil {
		return "", err
	}
	if err := s.writeCashOutSheet(f, cashOuts); err != nil {
		return "", err
	}
	if err := s.writeIncomeSheet(f, incomes); err != nil {
		return "", err
	}
	if err := s.writeStockSheet(f, stocks); err != nil {
		return "", err
	}
	if summaryRes.RowsAffected > 0 {
		if err := s.writeSummarySheet(f, summary); err != nil {
			return "", err
		}
	}

	dir, err := render.ReportDir(s.BaseDir, eod.EodDate)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%sEOD%d.xlsx", eod.EodDate.Format("20060102"), eod.ID))
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *ExportService) writeVerificationSheet(f *excelize.File, rows []models.EODBalanceVerification) error {
	const sheet = "Verification"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{
		"Currency", "Opening", "Theoretical", "Actual", "Difference", "Match",
	}); err != nil {
		return err
	}
	for i, v := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{
			v.Currency,
			v.OpeningBalance.InexactFloat64(),
			v.TheoreticalBalance.InexactFloat64(),
			v.ActualBalance.InexactFloat64(),
			v.Difference.InexactFloat64(),
			v.IsMatch,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExportService) writeCashOutSheet(f *excelize.File, rows []models.EODCashOut) error {
	const sheet = "CashOut"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Currency", "CashOut", "Remaining"}); err != nil {
		return err
	}
	for i, c := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{
			c.Currency,
			c.CashOutAmount.InexactFloat64(),
			c.RemainingBalance.InexactFloat64(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExportService) writeIncomeSheet(f *excelize.File, rows []models.IncomeReport) error {
	const sheet = "Income"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{
		"Currency", "TotalBuy", "TotalSell", "AvgBuyRate", "AvgSellRate", "Income", "SpreadIncome",
	}); err != nil {
		return err
	}
	for i, r := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{
			r.Currency,
			r.TotalBuy.InexactFloat64(),
			r.TotalSell.InexactFloat64(),
			r.AvgBuyRate.InexactFloat64(),
			r.AvgSellRate.InexactFloat64(),
			r.Income.InexactFloat64(),
			r.SpreadIncome.InexactFloat64(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExportService) writeStockSheet(f *excelize.File, rows []models.StockReport) error {
	const sheet = "Stock"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{
		"Currency", "Opening", "TotalBuy", "TotalSell", "Change", "Current", "Stock",
	}); err != nil {
		return err
	}
	for i, r := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{
			r.Currency,
			r.OpeningBalance.InexactFloat64(),
			r.TotalBuy.InexactFloat64(),
			r.TotalSell.InexactFloat64(),
			r.ChangeAmount.InexactFloat64(),
			r.CurrentBalance.InexactFloat64(),
			r.StockBalance.InexactFloat64(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExportService) writeSummarySheet(f *excelize.File, summary models.BaseSummaryReport) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := []struct {
		label string
		value float64
	}{
		{"Income", summary.IncomeAmount.InexactFloat64()},
		{"Expense", summary.ExpenseAmount.InexactFloat64()},
		{"Adjustment", summary.AdjustmentAmount.InexactFloat64()},
		{"Reversal", summary.ReversalAmount.InexactFloat64()},
		{"CashOut", summary.CashOutAmount.InexactFloat64()},
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{row.label, row.value}); err != nil {
			return err
		}
	}
	return nil
}
