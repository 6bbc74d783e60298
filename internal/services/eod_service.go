package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
	"fx-eod-service/internal/render"
	"fx-eod-service/pkg/common"
)

const (
	orphanCleanupReason = "orphan record cleanup"
	forceReasonPrefix   = "force: "
)

var fiftyPercent = decimal.RequireFromString("0.5")

// EODService drives the nine-step reconciliation workflow. Every step runs
// in a single transaction so the step/step_status advance commits together
// with the step's side effects.
type EODService struct {
	DB       *gorm.DB
	Window   *WindowService
	Balance  *BalanceService
	Locks    *LockService
	Reports  *ReportService
	Renderer render.Renderer
	Gate     *TradingGateService
	Asynq    *asynq.Client
	Log      *logrus.Logger
}

func NewEODService(db *gorm.DB, window *WindowService, balance *BalanceService, locks *LockService, reports *ReportService, renderer render.Renderer, gate *TradingGateService, asynqClient *asynq.Client) *EODService {
	return &EODService{
		DB:       db,
		Window:   window,
		Balance:  balance,
		Locks:    locks,
		Reports:  reports,
		Renderer: renderer,
		Gate:     gate,
		Asynq:    asynqClient,
		Log:      database.Log,
	}
}

type StartEODRequest struct {
	BranchID  int    `json:"branch_id"`
	SessionID string `json:"session_id"`
	Operator  string `json:"operator"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// VerifyDecision is the step-5 action. One variant per caller choice; the
// handler maps the wire action string onto these.
type VerifyDecision interface {
	isVerifyDecision()
}

type ContinueDecision struct{}

type CancelDecision struct {
	Reason string
}

type ForceDecision struct {
	Reason string
}

type AdjustDecision struct {
	Items []AdjustmentItem
}

func (ContinueDecision) isVerifyDecision() {}
func (CancelDecision) isVerifyDecision()   {}
func (ForceDecision) isVerifyDecision()    {}
func (AdjustDecision) isVerifyDecision()   {}

type AdjustmentItem struct {
	Currency     string          `json:"currency"`
	AdjustAmount decimal.Decimal `json:"adjust_amount"`
	Reason       string          `json:"reason"`
}

type AdjustmentWarning struct {
	Currency string `json:"currency"`
	Message  string `json:"message"`
}

type CashOutItem struct {
	Currency      string          `json:"currency"`
	CashOutAmount decimal.Decimal `json:"cash_out_amount"`
}

type VerifyResult struct {
	Verifications []models.EODBalanceVerification `json:"verifications"`
	AllMatch      bool                            `json:"all_match"`
}

// --- helpers ---

func (s *EODService) loadEOD(tx *gorm.DB, eodID int) (models.EODStatus, models.Branch, error) {
	var eod models.EODStatus
	res := tx.Where("id = ?", eodID).Limit(1).Find(&eod)
	if res.Error != nil {
		return eod, models.Branch{}, res.Error
	}
	if res.RowsAffected == 0 {
		return eod, models.Branch{}, common.NewEODError(common.KindEodNotFound, fmt.Sprintf("EOD %d not found", eodID))
	}

	var branch models.Branch
	res = tx.Where("id = ?", eod.BranchId).Limit(1).Find(&branch)
	if res.Error != nil {
		return eod, branch, res.Error
	}
	if res.RowsAffected == 0 {
		return eod, branch, common.NewEODError(common.KindEodNotFound, fmt.Sprintf("branch %d not found", eod.BranchId))
	}
	return eod, branch, nil
}

func requireProcessing(eod models.EODStatus) error {
	if eod.Status != models.EODStatusProcessing {
		return common.NewEODError(common.KindWrongStatus, fmt.Sprintf("EOD %d is %s, not processing", eod.ID, eod.Status))
	}
	return nil
}

func requireStep(eod models.EODStatus, steps ...int) error {
	for _, step := range steps {
		if eod.Step == step {
			return nil
		}
	}
	return common.NewEODError(common.KindWrongStep, fmt.Sprintf("EOD %d is at step %d", eod.ID, eod.Step))
}

// validateSession checks the branch lock and additionally that the lock is
// bound to this run: a session may only drive the EOD it started.
func (s *EODService) validateSession(tx *gorm.DB, eod models.EODStatus, sessionID string) error {
	if err := s.Locks.Validate(tx, eod.BranchId, sessionID); err != nil {
		return err
	}
	lock, err := s.Locks.ActiveLock(tx, eod.BranchId)
	if err != nil {
		return err
	}
	if lock != nil && lock.EodID != eod.ID {
		return common.NewEODError(common.KindNotStartedByCaller, fmt.Sprintf("EOD %d was not started by this session", eod.ID))
	}
	return nil
}

func (s *EODService) advance(tx *gorm.DB, eodID, step int, stepStatus string) error {
	return tx.Model(&models.EODStatus{}).
		Where("id = ?", eodID).
		Updates(map[string]interface{}{"step": step, "step_status": stepStatus}).Error
}

func (s *EODService) forced(eod models.EODStatus) bool {
	return eod.Status == models.EODStatusProcessing && strings.HasPrefix(eod.CancelReason, forceReasonPrefix)
}

func (s *EODService) invalidateGate(branchID int) {
	if s.Gate != nil {
		s.Gate.Invalidate(context.Background(), branchID)
	}
}

// --- step 1 ---

// Start locks the branch and opens a new EOD run. A processing EOD with a
// valid lock rejects the start; one without a lock is an orphan and gets
// auto-cancelled first.
func (s *EODService) Start(req StartEODRequest) (models.EODStatus, error) {
	var eod models.EODStatus

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// The branch row lock serializes concurrent starts; without it two
		// transactions can both miss the other's uncommitted processing row
		// and leave the branch with two open runs.
		var branch models.Branch
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", req.BranchID).Limit(1).Find(&branch)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NewEODError(common.KindEodNotFound, fmt.Sprintf("branch %d not found", req.BranchID))
		}

		var existing models.EODStatus
		res = tx.Where("branch_id = ? AND status = ?", req.BranchID, models.EODStatusProcessing).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			lock, err := s.Locks.ActiveLock(tx, req.BranchID)
			if err != nil {
				return err
			}
			if lock != nil {
				return common.NewEODErrorWithData(
					common.KindSessionConflict,
					fmt.Sprintf("an EOD run is already in progress (operator %s)", lock.Operator),
					LockMetadata{Operator: lock.Operator, IP: lock.IP, CreatedAt: lock.CreatedAt},
				)
			}
			// Lock expired or swept: the processing row is an orphan.
			if err := s.autoCancel(tx, existing, orphanCleanupReason); err != nil {
				return err
			}
			s.Log.WithFields(logrus.Fields{
				"branch_id": req.BranchID,
				"eod_id":    existing.ID,
				"kind":      common.KindOrphanAutoCleaned,
			}).Info("orphan EOD auto-cancelled")
		}

		now := time.Now().UTC()
		start, err := s.businessStart(tx, branch, now)
		if err != nil {
			return err
		}

		eod = models.EODStatus{
			BranchId:          req.BranchID,
			EodDate:           time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
			Status:            models.EODStatusProcessing,
			Step:              2,
			StepStatus:        models.StepStatusProcessing,
			StartedAt:         now,
			StartedBy:         req.Operator,
			IsLocked:          true,
			BusinessStartTime: start,
			BusinessEndTime:   now,
		}
		if err := tx.Create(&eod).Error; err != nil {
			return err
		}

		return s.Locks.Acquire(tx, req.BranchID, eod.ID, req.SessionID, req.Operator, req.IP, req.UserAgent)
	})
	if err != nil {
		return eod, err
	}

	s.invalidateGate(req.BranchID)
	s.Log.WithFields(logrus.Fields{"branch_id": req.BranchID, "eod_id": eod.ID, "operator": req.Operator}).Info("EOD started")
	return eod, nil
}

// businessStart picks the previous completed EOD's completed_at (+1s), else
// the first transaction ever, else start of today.
func (s *EODService) businessStart(tx *gorm.DB, branch models.Branch, now time.Time) (time.Time, error) {
	var prev models.EODStatus
	res := tx.Where("branch_id = ? AND status = ? AND completed_at IS NOT NULL", branch.ID, models.EODStatusCompleted).
		Order("completed_at DESC").
		Limit(1).
		Find(&prev)
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected > 0 && prev.CompletedAt != nil {
		return prev.CompletedAt.Add(time.Second), nil
	}

	var first models.Transaction
	res = tx.Where("branch_id = ?", branch.ID).Order("created_at ASC, id ASC").Limit(1).Find(&first)
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected > 0 {
		return first.CreatedAt, nil
	}

	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (s *EODService) autoCancel(tx *gorm.DB, eod models.EODStatus, reason string) error {
	if err := tx.Model(&models.EODStatus{}).Where("id = ?", eod.ID).Updates(map[string]interface{}{
		"status":        models.EODStatusCancelled,
		"step_status":   models.StepStatusCancelled,
		"is_locked":     false,
		"cancel_reason": reason,
	}).Error; err != nil {
		return err
	}
	return s.Locks.Release(tx, eod.BranchId)
}

// --- step 2 ---

// ExtractBalances snapshots the branch's CurrencyBalance rows.
func (s *EODService) ExtractBalances(eodID int, sessionID string) ([]models.CurrencyBalance, error) {
	var balances []models.CurrencyBalance

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, _, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 2); err != nil {
			return err
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		if err := tx.Where("branch_id = ?", eod.BranchId).Order("currency ASC").Find(&balances).Error; err != nil {
			return err
		}
		return s.advance(tx, eodID, 3, models.StepStatusProcessing)
	})
	return balances, err
}

// --- step 3 ---

// Calculate runs the resolver and balance engine for every currency in the
// reconciliation set.
func (s *EODService) Calculate(eodID int, sessionID string) ([]BalanceCalculation, error) {
	var calcs []BalanceCalculation

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, branch, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 3); err != nil {
			return err
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		calcs, err = s.Balance.Calculate(tx, branch, eod)
		if err != nil {
			return err
		}
		return s.advance(tx, eodID, 4, models.StepStatusProcessing)
	})
	return calcs, err
}

// --- step 4 ---

// Verify replaces any prior verification rows for this EOD with a fresh
// per-currency snapshot and reports whether everything matched.
func (s *EODService) Verify(eodID int, sessionID string) (VerifyResult, error) {
	var result VerifyResult

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, branch, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 4); err != nil {
			return err
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		result, err = s.verifyLocked(tx, branch, eod)
		return err
	})
	return result, err
}

func (s *EODService) verifyLocked(tx *gorm.DB, branch models.Branch, eod models.EODStatus) (VerifyResult, error) {
	var result VerifyResult

	calcs, err := s.Balance.Calculate(tx, branch, eod)
	if err != nil {
		return result, err
	}

	if err := tx.Where("eod_id = ?", eod.ID).Delete(&models.EODBalanceVerification{}).Error; err != nil {
		return result, err
	}

	result.AllMatch = true
	for _, calc := range calcs {
		row := models.EODBalanceVerification{
			EodID:              eod.ID,
			Currency:           calc.Currency,
			OpeningBalance:     calc.OpeningBalance,
			TheoreticalBalance: calc.TheoreticalBalance,
			ActualBalance:      calc.ActualBalance,
			Difference:         calc.Difference,
			IsMatch:            calc.IsMatch,
		}
		if err := tx.Create(&row).Error; err != nil {
			return result, err
		}
		result.Verifications = append(result.Verifications, row)
		if !calc.IsMatch {
			result.AllMatch = false
		}
	}

	return result, s.advance(tx, eod.ID, 4, models.StepStatusCompleted)
}

// --- step 5 ---

type VerificationOutcome struct {
	Action        string                          `json:"action"`
	Verifications []models.EODBalanceVerification `json:"verifications,omitempty"`
	AllMatch      bool                            `json:"all_match"`
	Warnings      []AdjustmentWarning             `json:"warnings,omitempty"`
	Cancelled     bool                            `json:"cancelled,omitempty"`
}

// HandleVerification dispatches the caller's decision on the verification
// result: continue to cash-out, cancel the run, force past a difference, or
// adjust and re-verify.
func (s *EODService) HandleVerification(eodID int, sessionID string, decision VerifyDecision) (VerificationOutcome, error) {
	var outcome VerificationOutcome
	var branchID int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, branch, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		branchID = eod.BranchId
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 4); err != nil {
			return err
		}
		if eod.StepStatus != models.StepStatusCompleted {
			return common.NewEODError(common.KindWrongStep, "verification has not run yet")
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		switch d := decision.(type) {
		case ContinueDecision:
			outcome.Action = "continue"
			if err := s.Reports.GenerateReports(tx, branch, eod); err != nil {
				return err
			}
			return s.advance(tx, eodID, 6, models.StepStatusProcessing)

		case CancelDecision:
			outcome.Action = "cancel"
			outcome.Cancelled = true
			return s.cancelLocked(tx, eod, d.Reason)

		case ForceDecision:
			outcome.Action = "force"
			// The force annotation lives in cancel_reason; it selects the
			// difference report over the adjustment report downstream.
			if err := tx.Model(&models.EODStatus{}).Where("id = ?", eodID).
				Update("cancel_reason", forceReasonPrefix+d.Reason).Error; err != nil {
				return err
			}
			var rows []models.EODBalanceVerification
			if err := tx.Where("eod_id = ?", eodID).Order("currency ASC").Find(&rows).Error; err != nil {
				return err
			}
			outcome.Verifications = rows
			return nil

		case AdjustDecision:
			outcome.Action = "adjust"
			warnings, err := s.applyAdjustments(tx, branch, eod, d.Items)
			if err != nil {
				return err
			}
			outcome.Warnings = warnings
			result, err := s.verifyLocked(tx, branch, eod)
			if err != nil {
				return err
			}
			outcome.Verifications = result.Verifications
			outcome.AllMatch = result.AllMatch
			return nil

		default:
			return common.NewEODError(common.KindValidationFailed, "unknown verification action")
		}
	})
	if err != nil {
		return outcome, err
	}

	if outcome.Cancelled {
		s.invalidateGate(branchID)
	}
	return outcome, nil
}

// --- step 5a ---

// AdjustDifferences applies difference adjustments and re-runs the
// calculation and verification, staying on step 4.
func (s *EODService) AdjustDifferences(eodID int, sessionID string, items []AdjustmentItem) (VerificationOutcome, error) {
	return s.HandleVerification(eodID, sessionID, AdjustDecision{Items: items})
}

// applyAdjustments books one Eod_diff transaction per item. The adjustment
// corrects the ledger side: the live balance is authoritative, so the entry
// shifts the theoretical balance toward it and is excluded from all
// daily-change and income/stock aggregation.
func (s *EODService) applyAdjustments(tx *gorm.DB, branch models.Branch, eod models.EODStatus, items []AdjustmentItem) ([]AdjustmentWarning, error) {
	if len(items) == 0 {
		return nil, common.NewEODError(common.KindValidationFailed, "no adjustments supplied")
	}

	var warnings []AdjustmentWarning
	now := time.Now().UTC()

	for _, item := range items {
		if item.AdjustAmount.IsZero() {
			return nil, common.NewEODError(common.KindValidationFailed, fmt.Sprintf("%s: zero adjustment", item.Currency))
		}
		if item.AdjustAmount.Exponent() < -2 {
			return nil, common.NewEODError(common.KindValidationFailed, fmt.Sprintf("%s: adjustment precision exceeds 2 decimal places", item.Currency))
		}

		var balance models.CurrencyBalance
		current := decimal.Zero
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("branch_id = ? AND currency = ?", branch.ID, item.Currency).
			Limit(1).Find(&balance)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			current = balance.Balance
		}

		calc, err := s.Balance.CalculateCurrency(tx, branch, eod, item.Currency)
		if err != nil {
			return nil, err
		}
		if calc.TheoreticalBalance.Add(item.AdjustAmount).IsNegative() {
			return nil, common.NewEODError(common.KindValidationFailed,
				fmt.Sprintf("%s: adjustment would leave a negative balance", item.Currency))
		}
		if !current.IsZero() && item.AdjustAmount.Abs().GreaterThan(current.Abs().Mul(fiftyPercent)) {
			warnings = append(warnings, AdjustmentWarning{
				Currency: item.Currency,
				Message:  fmt.Sprintf("adjustment %s exceeds 50%% of current balance %s", item.AdjustAmount, current),
			})
		}

		trx := models.Transaction{
			BranchId:      branch.ID,
			Currency:      item.Currency,
			TrxType:       models.TrxTypeEodDiff,
			Status:        models.TrxStatusCompleted,
			BalanceBefore: current,
			BalanceAfter:  current,
			ReferenceNo:   common.GenerateReferenceNo("EOD", now),
			Description:   item.Reason,
			CreatedBy:     eod.StartedBy,
			CreatedAt:     now,
		}
		if item.Currency == branch.BaseCurrency {
			trx.LocalAmount = item.AdjustAmount
		} else {
			trx.Amount = item.AdjustAmount
		}
		if err := tx.Create(&trx).Error; err != nil {
			return nil, err
		}

		s.Log.WithFields(logrus.Fields{
			"eod_id":   eod.ID,
			"currency": item.Currency,
			"amount":   item.AdjustAmount.String(),
			"reason":   item.Reason,
		}).Info("difference adjustment booked")
	}

	return warnings, nil
}

// --- step 6 ---

// CashOut turns over cash per currency. The cash_out transaction, the
// balance decrement and the verification-row rewrite commit together; the
// rewritten actual_balance is what the next EOD reads as opening balance.
func (s *EODService) CashOut(eodID int, sessionID string, items []CashOutItem) ([]models.EODCashOut, error) {
	var records []models.EODCashOut

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, branch, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 6); err != nil {
			return err
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, item := range items {
			if !item.CashOutAmount.IsPositive() {
				return common.NewEODError(common.KindValidationFailed, fmt.Sprintf("%s: cash-out amount must be positive", item.Currency))
			}

			var balance models.CurrencyBalance
			res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("branch_id = ? AND currency = ?", branch.ID, item.Currency).
				Limit(1).Find(&balance)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return common.NewEODError(common.KindValidationFailed, fmt.Sprintf("%s: no balance row", item.Currency))
			}
			if balance.Balance.LessThan(item.CashOutAmount) {
				return common.NewEODError(common.KindValidationFailed,
					fmt.Sprintf("%s: cash-out %s exceeds balance %s", item.Currency, item.CashOutAmount, balance.Balance))
			}

			remaining := balance.Balance.Sub(item.CashOutAmount)

			trx := models.Transaction{
				BranchId:      branch.ID,
				Currency:      item.Currency,
				TrxType:       models.TrxTypeCashOut,
				Status:        models.TrxStatusCompleted,
				BalanceBefore: balance.Balance,
				BalanceAfter:  remaining,
				ReferenceNo:   common.GenerateReferenceNo("EOD", now),
				Description:   fmt.Sprintf("EOD %d cash turnover", eod.ID),
				CreatedBy:     eod.StartedBy,
				CreatedAt:     now,
			}
			if item.Currency == branch.BaseCurrency {
				trx.LocalAmount = item.CashOutAmount.Neg()
			} else {
				trx.Amount = item.CashOutAmount.Neg()
			}
			if err := tx.Create(&trx).Error; err != nil {
				return err
			}

			upd := tx.Model(&models.CurrencyBalance{}).
				Where("id = ?", balance.ID).
				Update("balance", remaining)
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return common.NewEODError(common.KindLedgerMutationFailed, fmt.Sprintf("%s: balance update did not persist", item.Currency))
			}

			// The carry-forward mutation: the next EOD opens from this value.
			upd = tx.Model(&models.EODBalanceVerification{}).
				Where("eod_id = ? AND currency = ?", eod.ID, item.Currency).
				Update("actual_balance", remaining)
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return common.NewEODError(common.KindLedgerMutationFailed, fmt.Sprintf("%s: verification row missing", item.Currency))
			}

			record := models.EODCashOut{
				EodID:            eod.ID,
				Currency:         item.Currency,
				CashOutAmount:    item.CashOutAmount,
				RemainingBalance: remaining,
				TransactionID:    trx.ID,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			records = append(records, record)
		}

		return s.advance(tx, eodID, 7, models.StepStatusPending)
	})
	return records, err
}

// --- step 7 ---

// Print renders the day-end documents and counts the printing. The step is
// complete once at least one print succeeded; steps 8 and 9 gate on that.
func (s *EODService) Print(eodID int, sessionID string, languages []string) ([]render.RenderedFile, error) {
	var files []render.RenderedFile

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, branch, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 7); err != nil {
			return err
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		if len(languages) == 0 {
			languages = []string{render.LangZh}
		}

		bundles, err := s.buildPrintBundles(tx, branch, eod)
		if err != nil {
			return err
		}

		for _, bundle := range bundles {
			rendered, rerr := s.Renderer.Render(context.Background(), bundle, languages)
			if rerr != nil {
				// A bundle that renders in no language at all fails the step.
				return common.NewEODError(common.KindLedgerMutationFailed,
					fmt.Sprintf("rendering %s report failed: %v", bundle.Kind, rerr))
			}
			if len(rendered) < len(languages) {
				s.Log.WithFields(logrus.Fields{
					"eod_id": eod.ID,
					"kind":   bundle.Kind,
				}).Warn("some report languages failed to render")
			}
			files = append(files, rendered...)
		}

		if err := tx.Model(&models.EODStatus{}).Where("id = ?", eodID).
			Update("print_count", gorm.Expr("print_count + ?", 1)).Error; err != nil {
			return err
		}
		return s.advance(tx, eodID, 7, models.StepStatusCompleted)
	})
	return files, err
}

func (s *EODService) buildPrintBundles(tx *gorm.DB, branch models.Branch, eod models.EODStatus) ([]render.Bundle, error) {
	header := render.Header{
		BranchName:    branch.Name,
		EodID:         eod.ID,
		EodDate:       eod.EodDate,
		Operator:      eod.StartedBy,
		BusinessStart: eod.BusinessStartTime,
		BusinessEnd:   eod.BusinessEndTime,
	}

	var verifications []models.EODBalanceVerification
	if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&verifications).Error; err != nil {
		return nil, err
	}
	var cashOuts []models.EODCashOut
	if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&cashOuts).Error; err != nil {
		return nil, err
	}
	var incomes []models.IncomeReport
	if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&incomes).Error; err != nil {
		return nil, err
	}
	var stocks []models.StockReport
	if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&stocks).Error; err != nil {
		return nil, err
	}

	verificationRows := make([]map[string]interface{}, 0, len(verifications))
	diffRows := make([]map[string]interface{}, 0)
	for _, v := range verifications {
		row := map[string]interface{}{
			"currency":    v.Currency,
			"opening":     v.OpeningBalance,
			"theoretical": v.TheoreticalBalance,
			"actual":      v.ActualBalance,
			"difference":  v.Difference,
			"is_match":    v.IsMatch,
		}
		verificationRows = append(verificationRows, row)
		if !v.IsMatch {
			diffRows = append(diffRows, row)
		}
	}

	cashOutRows := make([]map[string]interface{}, 0, len(cashOuts))
	for _, c := range cashOuts {
		cashOutRows = append(cashOutRows, map[string]interface{}{
			"currency":  c.Currency,
			"cash_out":  c.CashOutAmount,
			"remaining": c.RemainingBalance,
		})
	}

	incomeRows := make([]map[string]interface{}, 0, len(incomes))
	for _, r := range incomes {
		incomeRows = append(incomeRows, map[string]interface{}{
			"currency":      r.Currency,
			"total_buy":     r.TotalBuy,
			"total_sell":    r.TotalSell,
			"avg_buy_rate":  r.AvgBuyRate,
			"avg_sell_rate": r.AvgSellRate,
			"income":        r.Income,
			"spread_income": r.SpreadIncome,
		})
	}
	stockRows := make([]map[string]interface{}, 0, len(stocks))
	for _, r := range stocks {
		stockRows = append(stockRows, map[string]interface{}{
			"currency": r.Currency,
			"opening":  r.OpeningBalance,
			"buy":      r.TotalBuy,
			"sell":     r.TotalSell,
			"change":   r.ChangeAmount,
			"current":  r.CurrentBalance,
			"stock":    r.StockBalance,
		})
	}

	bundles := []render.Bundle{
		{
			Header: header,
			Kind:   render.KindCashOut,
			Sections: []render.Section{
				{Type: "verification", Title: "Balance Verification", Rows: verificationRows},
				{Type: "cashout", Title: "Cash Turnover", Rows: cashOutRows},
			},
		},
		{
			Header: header,
			Kind:   render.KindIncome,
			Sections: []render.Section{
				{Type: "income", Title: "Income by Currency", Rows: incomeRows},
				{Type: "stock", Title: "Stock by Currency", Rows: stockRows},
			},
		},
	}

	// Force-continue produces a difference report instead of relying on an
	// adjustment trail.
	if s.forced(eod) {
		bundles = append(bundles, render.Bundle{
			Header: header,
			Kind:   render.KindDiff,
			Sections: []render.Section{
				{Type: "difference", Title: "Unreconciled Differences", Rows: diffRows},
				{Type: "reason", Title: "Force Reason", Rows: []map[string]interface{}{
					{"reason": strings.TrimPrefix(eod.CancelReason, forceReasonPrefix)},
				}},
			},
		})
	}

	return bundles, nil
}

// --- step 8 ---

type ReportBundle struct {
	TransactionStats  []map[string]interface{}        `json:"transaction_stats"`
	BalanceSummary    []models.EODBalanceVerification `json:"balance_summary"`
	CashOutSummary    []models.EODCashOut             `json:"cash_out_summary"`
	AdjustmentSummary []models.Transaction            `json:"adjustment_summary"`
	DifferenceSummary []models.EODBalanceVerification `json:"difference_summary"`
	IsDifferenceRun   bool                            `json:"is_difference_run"`
}

// GenerateReport assembles the final report bundle. Rejected until the
// day-end documents have been printed at least once.
func (s *EODService) GenerateReport(eodID int, sessionID string) (ReportBundle, error) {
	var bundle ReportBundle

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, branch, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 7, 8); err != nil {
			return err
		}
		if eod.PrintCount == 0 {
			return common.NewEODError(common.KindPrintRequired, "day-end documents must be printed before reporting")
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		type statRow struct {
			TrxType string
			Count   int64
			Amount  decimal.NullDecimal
			Local   decimal.NullDecimal
		}
		var stats []statRow
		err = tx.Model(&models.Transaction{}).
			Where("branch_id = ?", branch.ID).
			Where("status IN ?", changeStatuses).
			Where("created_at >= ? AND created_at < ?", eod.BusinessStartTime, eod.BusinessEndTime).
			Select("trx_type, COUNT(*) AS count, SUM(amount) AS amount, SUM(local_amount) AS local").
			Group("trx_type").
			Scan(&stats).Error
		if err != nil {
			return err
		}
		for _, st := range stats {
			bundle.TransactionStats = append(bundle.TransactionStats, map[string]interface{}{
				"trx_type":     st.TrxType,
				"count":        st.Count,
				"amount":       st.Amount.Decimal,
				"local_amount": st.Local.Decimal,
			})
		}

		if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&bundle.BalanceSummary).Error; err != nil {
			return err
		}
		if err := tx.Where("eod_id = ?", eod.ID).Order("currency ASC").Find(&bundle.CashOutSummary).Error; err != nil {
			return err
		}
		if err := tx.Where("branch_id = ? AND trx_type = ? AND created_at >= ?", branch.ID, models.TrxTypeEodDiff, eod.StartedAt).
			Order("created_at ASC").Find(&bundle.AdjustmentSummary).Error; err != nil {
			return err
		}
		for _, v := range bundle.BalanceSummary {
			if !v.IsMatch {
				bundle.DifferenceSummary = append(bundle.DifferenceSummary, v)
			}
		}
		bundle.IsDifferenceRun = s.forced(eod)

		return s.advance(tx, eodID, 9, models.StepStatusPending)
	})
	return bundle, err
}

// --- step 9 ---

// Complete finalizes the day: report rows flip to is_final, the run is
// marked completed and the branch unlocks. The next EOD carries forward from
// the verification rows left behind.
func (s *EODService) Complete(eodID int, sessionID string) (models.EODStatus, error) {
	var eod models.EODStatus
	var branchID int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		loaded, _, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		eod = loaded
		branchID = eod.BranchId

		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := requireStep(eod, 8, 9); err != nil {
			return err
		}
		if eod.PrintCount == 0 {
			return common.NewEODError(common.KindPrintRequired, "day-end documents must be printed before completion")
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}

		lock, err := s.Locks.ActiveLock(tx, eod.BranchId)
		if err != nil {
			return err
		}
		completedBy := eod.StartedBy
		if lock != nil {
			completedBy = lock.Operator
		}

		if err := s.Reports.Finalize(tx, eodID); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.EODStatus{}).Where("id = ?", eodID).Updates(map[string]interface{}{
			"status":       models.EODStatusCompleted,
			"step":         9,
			"step_status":  models.StepStatusCompleted,
			"completed_at": now,
			"completed_by": completedBy,
			"is_locked":    false,
		}).Error; err != nil {
			return err
		}

		// Lock release is part of the same transaction; a failure rolls the
		// completion back.
		if err := s.Locks.Release(tx, eod.BranchId); err != nil {
			return err
		}

		eod.Status = models.EODStatusCompleted
		eod.Step = 9
		eod.StepStatus = models.StepStatusCompleted
		eod.CompletedAt = &now
		eod.CompletedBy = completedBy
		eod.IsLocked = false
		return nil
	})
	if err != nil {
		return eod, err
	}

	s.invalidateGate(branchID)
	s.enqueueExport(eodID)
	s.Log.WithFields(logrus.Fields{"eod_id": eodID, "branch_id": branchID}).Info("EOD completed")
	return eod, nil
}

func (s *EODService) enqueueExport(eodID int) {
	if s.Asynq == nil {
		return
	}
	task, err := NewEODExportTask(eodID)
	if err != nil {
		s.Log.WithError(err).Error("failed to build export task")
		return
	}
	if _, err := s.Asynq.Enqueue(task); err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"eod_id": eodID}).Error("failed to enqueue export task")
	}
}

// --- cancel ---

// Cancel aborts a processing run. The status change and the lock release
// commit together; if the release fails the cancel fails.
func (s *EODService) Cancel(eodID int, sessionID, reason string) error {
	var branchID int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eod, _, err := s.loadEOD(tx, eodID)
		if err != nil {
			return err
		}
		branchID = eod.BranchId
		if err := requireProcessing(eod); err != nil {
			return err
		}
		if err := s.validateSession(tx, eod, sessionID); err != nil {
			return err
		}
		return s.cancelLocked(tx, eod, reason)
	})
	if err != nil {
		return err
	}

	s.invalidateGate(branchID)
	s.Log.WithFields(logrus.Fields{"eod_id": eodID, "branch_id": branchID, "reason": reason}).Info("EOD cancelled")
	return nil
}

func (s *EODService) cancelLocked(tx *gorm.DB, eod models.EODStatus, reason string) error {
	if err := tx.Model(&models.EODStatus{}).Where("id = ?", eod.ID).Updates(map[string]interface{}{
		"status":        models.EODStatusCancelled,
		"step_status":   models.StepStatusCancelled,
		"is_locked":     false,
		"cancel_reason": reason,
	}).Error; err != nil {
		return err
	}
	return s.Locks.Release(tx, eod.BranchId)
}

// --- queries ---

// GetStatus returns the branch's most recent EOD run plus lock state.
func (s *EODService) GetStatus(branchID int) (map[string]interface{}, error) {
	var eod models.EODStatus
	res := s.DB.Where("branch_id = ?", branchID).Order("id DESC").Limit(1).Find(&eod)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return map[string]interface{}{"eod": nil, "lock": nil}, nil
	}

	lock, err := s.Locks.ActiveLock(s.DB, branchID)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{"eod": eod, "lock": nil}
	if lock != nil {
		out["lock"] = LockMetadata{Operator: lock.Operator, IP: lock.IP, CreatedAt: lock.CreatedAt}
	}
	return out, nil
}

// GetHistory lists finished runs for a branch, newest first.
func (s *EODService) GetHistory(branchID, page int) (common.PaginationResult, error) {
	limit := 50
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := s.DB.Model(&models.EODStatus{}).
		Where("branch_id = ? AND status IN ?", branchID, []string{models.EODStatusCompleted, models.EODStatusCancelled})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}

	var history []models.EODStatus
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&history).Error; err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(history, total, page, limit, "EOD history fetched"), nil
}

// GetCurrencyTransactions lists one currency's transactions inside an EOD's
// business window.
func (s *EODService) GetCurrencyTransactions(eodID int, currency string, page int) (common.PaginationResult, error) {
	eod, _, err := s.loadEOD(s.DB, eodID)
	if err != nil {
		return common.PaginationResult{}, err
	}

	limit := 100
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := s.DB.Model(&models.Transaction{}).
		Where("branch_id = ? AND currency = ?", eod.BranchId, currency).
		Where("created_at >= ? AND created_at < ?", eod.BusinessStartTime, eod.BusinessEndTime)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}

	var transactions []models.Transaction
	if err := query.Order("created_at ASC, id ASC").Limit(limit).Offset(offset).Find(&transactions).Error; err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(transactions, total, page, limit, "Transactions fetched"), nil
}
