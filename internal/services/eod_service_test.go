package services

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fx-eod-service/internal/models"
	"fx-eod-service/internal/render"
	"fx-eod-service/pkg/common"
)

// NOTE: These tests require a running MySQL instance via DATABASE_URL.
// Without it they skip, matching how CI provisions a throwaway database.

var testDB *gorm.DB

func setup() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Println("Skipping DB tests: DATABASE_URL not set")
		return
	}

	var err error
	testDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		return
	}

	testDB.AutoMigrate(
		&models.Branch{},
		&models.Currency{},
		&models.Transaction{},
		&models.ArchivedTransaction{},
		&models.CurrencyBalance{},
		&models.EODStatus{},
		&models.EODBalanceVerification{},
		&models.EODCashOut{},
		&models.EODSessionLock{},
		&models.IncomeReport{},
		&models.StockReport{},
		&models.BaseSummaryReport{},
	)
}

func cleanup() {
	if testDB == nil {
		return
	}
	for _, table := range []string{
		"fx_transactions",
		"archived_fx_transactions",
		"currency_balances",
		"eod_balance_verifications",
		"eod_cash_outs",
		"eod_session_locks",
		"eod_income_reports",
		"eod_stock_reports",
		"eod_base_summaries",
		"eod_statuses",
		"branches",
	} {
		testDB.Exec("DELETE FROM " + table)
	}
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEOD(t *testing.T) (*EODService, *render.StubRenderer) {
	t.Helper()
	window := NewWindowService(testDB)
	balance := NewBalanceService(testDB, window)
	locks := NewLockService(testDB)
	reports := NewReportService(testDB)
	stub := render.NewStubRenderer(t.TempDir(), render.LangZh)
	svc := NewEODService(testDB, window, balance, locks, reports, stub, nil, nil)
	return svc, stub
}

func seedBranch(t *testing.T, code string) models.Branch {
	t.Helper()
	branch := models.Branch{Name: "Branch " + code, Code: code, BaseCurrency: "THB", Status: 1}
	require.NoError(t, testDB.Create(&branch).Error)
	return branch
}

func seedBalance(t *testing.T, branch models.Branch, currency, amount string) {
	t.Helper()
	require.NoError(t, testDB.Create(&models.CurrencyBalance{
		BranchId: branch.ID,
		Currency: currency,
		Balance:  dec(amount),
	}).Error)
}

func seedTrx(t *testing.T, branch models.Branch, currency, trxType, amount, local string, at time.Time) models.Transaction {
	t.Helper()
	trx := models.Transaction{
		BranchId:    branch.ID,
		Currency:    currency,
		TrxType:     trxType,
		Amount:      dec(amount),
		LocalAmount: dec(local),
		Status:      models.TrxStatusCompleted,
		ReferenceNo: common.GenerateReferenceNo("TRX", at),
		CreatedAt:   at,
	}
	require.NoError(t, testDB.Create(&trx).Error)
	return trx
}

// seedTradingDay sets up a branch that bought 200 USD at 30 during the day:
// USD ledger 1000 (initial) + 200, THB ledger 30000 (initial) - 6000.
func seedTradingDay(t *testing.T, code string) models.Branch {
	t.Helper()
	branch := seedBranch(t, code)
	now := time.Now().UTC()
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "1000", "0", now.Add(-3*time.Hour))
	seedTrx(t, branch, "THB", models.TrxTypeInitialBalance, "0", "30000", now.Add(-3*time.Hour))
	seedTrx(t, branch, "USD", models.TrxTypeBuy, "200", "-6000", now.Add(-time.Hour))
	seedBalance(t, branch, "USD", "1200")
	seedBalance(t, branch, "THB", "24000")
	return branch
}

func startEOD(t *testing.T, svc *EODService, branch models.Branch, session string) models.EODStatus {
	t.Helper()
	eod, err := svc.Start(StartEODRequest{
		BranchID:  branch.ID,
		SessionID: session,
		Operator:  "alice",
		IP:        "10.0.0.1",
		UserAgent: "terminal-1",
	})
	require.NoError(t, err)
	return eod
}

func advanceToVerified(t *testing.T, svc *EODService, eod models.EODStatus, session string) VerifyResult {
	t.Helper()
	_, err := svc.ExtractBalances(eod.ID, session)
	require.NoError(t, err)
	_, err = svc.Calculate(eod.ID, session)
	require.NoError(t, err)
	result, err := svc.Verify(eod.ID, session)
	require.NoError(t, err)
	return result
}

func findCalc(t *testing.T, calcs []BalanceCalculation, currency string) BalanceCalculation {
	t.Helper()
	for _, c := range calcs {
		if c.Currency == currency {
			return c
		}
	}
	t.Fatalf("currency %s missing from calculation set", currency)
	return BalanceCalculation{}
}

func eodErrorKind(t *testing.T, err error) string {
	t.Helper()
	var eodErr *common.EODError
	require.True(t, errors.As(err, &eodErr), "expected EODError, got %v", err)
	return eodErr.Kind
}

func TestFullDayReconciliation(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, stub := newTestEOD(t)
	branch := seedTradingDay(t, "S1")
	session := "sess-s1"

	eod := startEOD(t, svc, branch, session)
	assert.Equal(t, 2, eod.Step)
	assert.True(t, eod.IsLocked)

	balances, err := svc.ExtractBalances(eod.ID, session)
	require.NoError(t, err)
	assert.Len(t, balances, 2)

	calcs, err := svc.Calculate(eod.ID, session)
	require.NoError(t, err)

	usd := findCalc(t, calcs, "USD")
	assert.True(t, usd.OpeningBalance.Equal(dec("1000")), "USD opening %s", usd.OpeningBalance)
	assert.True(t, usd.DailyChange.Equal(dec("200")), "USD change %s", usd.DailyChange)
	assert.True(t, usd.TheoreticalBalance.Equal(dec("1200")))
	assert.True(t, usd.IsMatch)

	thb := findCalc(t, calcs, "THB")
	assert.True(t, thb.OpeningBalance.Equal(dec("30000")), "THB opening %s", thb.OpeningBalance)
	assert.True(t, thb.DailyChange.Equal(dec("-6000")), "THB change %s", thb.DailyChange)
	assert.True(t, thb.IsMatch)

	result, err := svc.Verify(eod.ID, session)
	require.NoError(t, err)
	assert.True(t, result.AllMatch)

	outcome, err := svc.HandleVerification(eod.ID, session, ContinueDecision{})
	require.NoError(t, err)
	assert.Equal(t, "continue", outcome.Action)

	var income models.IncomeReport
	require.NoError(t, testDB.Where("eod_id = ? AND currency = ?", eod.ID, "USD").First(&income).Error)
	assert.True(t, income.TotalBuy.Equal(dec("200")), "total buy %s", income.TotalBuy)
	assert.True(t, income.AvgBuyRate.Equal(dec("30")), "avg buy rate %s", income.AvgBuyRate)
	assert.False(t, income.IsFinal)

	cashOuts, err := svc.CashOut(eod.ID, session, []CashOutItem{{Currency: "USD", CashOutAmount: dec("1000")}})
	require.NoError(t, err)
	require.Len(t, cashOuts, 1)
	assert.True(t, cashOuts[0].RemainingBalance.Equal(dec("200")))

	var verification models.EODBalanceVerification
	require.NoError(t, testDB.Where("eod_id = ? AND currency = ?", eod.ID, "USD").First(&verification).Error)
	assert.True(t, verification.ActualBalance.Equal(dec("200")), "carry-forward actual %s", verification.ActualBalance)

	files, err := svc.Print(eod.ID, session, []string{"zh", "en"})
	require.NoError(t, err)
	assert.NotEmpty(t, files)
	assert.Len(t, stub.Rendered, 2) // cashout + income, no difference report

	bundle, err := svc.GenerateReport(eod.ID, session)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.BalanceSummary)
	assert.Empty(t, bundle.DifferenceSummary)

	completed, err := svc.Complete(eod.ID, session)
	require.NoError(t, err)
	assert.Equal(t, models.EODStatusCompleted, completed.Status)
	assert.False(t, completed.IsLocked)

	var lockCount int64
	testDB.Model(&models.EODSessionLock{}).Where("branch_id = ?", branch.ID).Count(&lockCount)
	assert.Zero(t, lockCount)

	require.NoError(t, testDB.Where("eod_id = ? AND currency = ?", eod.ID, "USD").First(&income).Error)
	assert.True(t, income.IsFinal)

	// The next run opens from the post-cash-out remainder.
	next := startEOD(t, svc, branch, "sess-s1b")
	calcs, err = svc.Calculate(mustExtract(t, svc, next, "sess-s1b"), "sess-s1b")
	require.NoError(t, err)
	usd = findCalc(t, calcs, "USD")
	assert.True(t, usd.OpeningBalance.Equal(dec("200")), "next-day USD opening %s", usd.OpeningBalance)
}

func mustExtract(t *testing.T, svc *EODService, eod models.EODStatus, session string) int {
	t.Helper()
	_, err := svc.ExtractBalances(eod.ID, session)
	require.NoError(t, err)
	return eod.ID
}

func TestAdjustmentReconcilesDifference(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedBranch(t, "S2")
	now := time.Now().UTC()
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "1000", "0", now.Add(-3*time.Hour))
	seedTrx(t, branch, "USD", models.TrxTypeBuy, "200", "-6000", now.Add(-time.Hour))
	// Drawer count came up 50 short of the ledger.
	seedBalance(t, branch, "USD", "1150")

	session := "sess-s2"
	eod := startEOD(t, svc, branch, session)
	result := advanceToVerified(t, svc, eod, session)
	assert.False(t, result.AllMatch)

	var usdRow models.EODBalanceVerification
	for _, v := range result.Verifications {
		if v.Currency == "USD" {
			usdRow = v
		}
	}
	assert.True(t, usdRow.Difference.Equal(dec("50")), "difference %s", usdRow.Difference)

	outcome, err := svc.HandleVerification(eod.ID, session, AdjustDecision{Items: []AdjustmentItem{
		{Currency: "USD", AdjustAmount: dec("-50"), Reason: "counting shortfall"},
	}})
	require.NoError(t, err)
	assert.True(t, outcome.AllMatch, "re-verification should match after adjustment")

	var diff models.Transaction
	require.NoError(t, testDB.Where("branch_id = ? AND trx_type = ?", branch.ID, models.TrxTypeEodDiff).First(&diff).Error)
	assert.True(t, diff.Amount.Equal(dec("-50")), "Eod_diff amount %s", diff.Amount)
	assert.Equal(t, "USD", diff.Currency)

	// The live balance is authoritative: 1150 carries forward untouched.
	var verification models.EODBalanceVerification
	require.NoError(t, testDB.Where("eod_id = ? AND currency = ?", eod.ID, "USD").First(&verification).Error)
	assert.True(t, verification.ActualBalance.Equal(dec("1150")))
	assert.True(t, verification.TheoreticalBalance.Equal(dec("1150")))
}

func TestAdjustmentExcludedFromIncome(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedBranch(t, "S2B")
	now := time.Now().UTC()
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "1000", "0", now.Add(-3*time.Hour))
	seedTrx(t, branch, "USD", models.TrxTypeBuy, "200", "-6000", now.Add(-time.Hour))
	seedBalance(t, branch, "USD", "1150")

	session := "sess-s2b"
	eod := startEOD(t, svc, branch, session)
	advanceToVerified(t, svc, eod, session)

	_, err := svc.HandleVerification(eod.ID, session, AdjustDecision{Items: []AdjustmentItem{
		{Currency: "USD", AdjustAmount: dec("-50"), Reason: "shortfall"},
	}})
	require.NoError(t, err)
	_, err = svc.HandleVerification(eod.ID, session, ContinueDecision{})
	require.NoError(t, err)

	// Income and stock aggregation never see the Eod_diff entry.
	var income models.IncomeReport
	require.NoError(t, testDB.Where("eod_id = ? AND currency = ?", eod.ID, "USD").First(&income).Error)
	assert.True(t, income.TotalBuy.Equal(dec("200")), "total buy %s", income.TotalBuy)

	var stock models.StockReport
	require.NoError(t, testDB.Where("eod_id = ? AND currency = ?", eod.ID, "USD").First(&stock).Error)
	assert.True(t, stock.TotalBuy.Equal(dec("200")))
}

func TestForceContinueProducesDifferenceReport(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, stub := newTestEOD(t)
	branch := seedBranch(t, "S3")
	now := time.Now().UTC()
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "1000", "0", now.Add(-2*time.Hour))
	seedBalance(t, branch, "USD", "980")

	session := "sess-s3"
	eod := startEOD(t, svc, branch, session)
	result := advanceToVerified(t, svc, eod, session)
	assert.False(t, result.AllMatch)

	_, err := svc.HandleVerification(eod.ID, session, ForceDecision{Reason: "manager approved, recount tomorrow"})
	require.NoError(t, err)

	_, err = svc.HandleVerification(eod.ID, session, ContinueDecision{})
	require.NoError(t, err)

	_, err = svc.CashOut(eod.ID, session, nil)
	require.NoError(t, err)

	_, err = svc.Print(eod.ID, session, []string{"zh"})
	require.NoError(t, err)

	kinds := make([]string, 0, len(stub.Rendered))
	for _, b := range stub.Rendered {
		kinds = append(kinds, b.Kind)
	}
	assert.Contains(t, kinds, render.KindDiff)

	bundle, err := svc.GenerateReport(eod.ID, session)
	require.NoError(t, err)
	assert.True(t, bundle.IsDifferenceRun)
	assert.NotEmpty(t, bundle.DifferenceSummary)
}

func TestSecondStartConflicts(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "S5")
	startEOD(t, svc, branch, "sess-a")

	_, err := svc.Start(StartEODRequest{BranchID: branch.ID, SessionID: "sess-b", Operator: "bob"})
	require.Error(t, err)
	assert.Equal(t, common.KindSessionConflict, eodErrorKind(t, err))

	var eodErr *common.EODError
	require.True(t, errors.As(err, &eodErr))
	meta, ok := eodErr.Data.(LockMetadata)
	require.True(t, ok, "conflict should expose holder metadata")
	assert.Equal(t, "alice", meta.Operator)
}

func TestWrongSessionRejected(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "S5B")
	eod := startEOD(t, svc, branch, "sess-owner")

	_, err := svc.ExtractBalances(eod.ID, "sess-intruder")
	require.Error(t, err)
	assert.Equal(t, common.KindSessionConflict, eodErrorKind(t, err))
}

func TestOrphanRunIsAutoCancelled(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "S6")

	// A processing row without any session lock: the terminal died.
	orphan := models.EODStatus{
		BranchId:   branch.ID,
		EodDate:    time.Now().UTC().Truncate(24 * time.Hour),
		Status:     models.EODStatusProcessing,
		Step:       3,
		StepStatus: models.StepStatusProcessing,
		StartedAt:  time.Now().UTC().Add(-6 * time.Hour),
		IsLocked:   true,
	}
	require.NoError(t, testDB.Create(&orphan).Error)

	eod := startEOD(t, svc, branch, "sess-s6")
	assert.NotEqual(t, orphan.ID, eod.ID)

	var old models.EODStatus
	require.NoError(t, testDB.First(&old, orphan.ID).Error)
	assert.Equal(t, models.EODStatusCancelled, old.Status)
	assert.Equal(t, "orphan record cleanup", old.CancelReason)
}

func TestCancelReleasesBranch(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "CXL")
	eod := startEOD(t, svc, branch, "sess-cxl")

	gate := NewTradingGateService(testDB, nil)
	state, err := gate.CheckLock(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.True(t, state.IsLocked)
	assert.Equal(t, eod.ID, state.EodID)
	assert.False(t, state.LockDate.IsZero())

	require.NoError(t, svc.Cancel(eod.ID, "sess-cxl", "drawer recount"))

	state, err = gate.CheckLock(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.False(t, state.IsLocked)
	assert.Zero(t, state.EodID)

	var cancelled models.EODStatus
	require.NoError(t, testDB.First(&cancelled, eod.ID).Error)
	assert.Equal(t, models.EODStatusCancelled, cancelled.Status)
	assert.Equal(t, "drawer recount", cancelled.CancelReason)
}

func TestReportRequiresPrint(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "PRN")
	session := "sess-prn"
	eod := startEOD(t, svc, branch, session)
	advanceToVerified(t, svc, eod, session)
	_, err := svc.HandleVerification(eod.ID, session, ContinueDecision{})
	require.NoError(t, err)
	_, err = svc.CashOut(eod.ID, session, nil)
	require.NoError(t, err)

	_, err = svc.GenerateReport(eod.ID, session)
	require.Error(t, err)
	assert.Equal(t, common.KindPrintRequired, eodErrorKind(t, err))
}

func TestCashOutCannotExceedBalance(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "CSH")
	session := "sess-csh"
	eod := startEOD(t, svc, branch, session)
	advanceToVerified(t, svc, eod, session)
	_, err := svc.HandleVerification(eod.ID, session, ContinueDecision{})
	require.NoError(t, err)

	_, err = svc.CashOut(eod.ID, session, []CashOutItem{{Currency: "USD", CashOutAmount: dec("5000")}})
	require.Error(t, err)
	assert.Equal(t, common.KindValidationFailed, eodErrorKind(t, err))
}

func TestReversalNetsToZero(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedBranch(t, "REV")
	now := time.Now().UTC()
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "1000", "0", now.Add(-3*time.Hour))
	buy := seedTrx(t, branch, "USD", models.TrxTypeBuy, "200", "-6000", now.Add(-2*time.Hour))
	reversal := seedTrx(t, branch, "USD", models.TrxTypeReversal, "-200", "6000", now.Add(-time.Hour))
	reversal.Description = "reversal of " + buy.ReferenceNo
	testDB.Save(&reversal)
	seedBalance(t, branch, "USD", "1000")

	session := "sess-rev"
	eod := startEOD(t, svc, branch, session)
	calcs, err := svc.Calculate(mustExtract(t, svc, eod, session), session)
	require.NoError(t, err)

	usd := findCalc(t, calcs, "USD")
	assert.True(t, usd.DailyChange.IsZero(), "reversed pair should net out, got %s", usd.DailyChange)
	assert.True(t, usd.IsMatch)
}

func TestAdjustmentValidation(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedBranch(t, "ADJ")
	now := time.Now().UTC()
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "100", "0", now.Add(-2*time.Hour))
	seedBalance(t, branch, "USD", "20")

	session := "sess-adj"
	eod := startEOD(t, svc, branch, session)
	advanceToVerified(t, svc, eod, session)

	// Driving the theoretical balance negative is rejected.
	_, err := svc.AdjustDifferences(eod.ID, session, []AdjustmentItem{
		{Currency: "USD", AdjustAmount: dec("-150"), Reason: "bogus"},
	})
	require.Error(t, err)
	assert.Equal(t, common.KindValidationFailed, eodErrorKind(t, err))

	// A large but legal adjustment goes through with a warning.
	outcome, err := svc.AdjustDifferences(eod.ID, session, []AdjustmentItem{
		{Currency: "USD", AdjustAmount: dec("-80"), Reason: "recount"},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Warnings, 1)
	assert.Equal(t, "USD", outcome.Warnings[0].Currency)
	assert.True(t, outcome.AllMatch)
}

func TestStepOrderEnforced(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "ORD")
	session := "sess-ord"
	eod := startEOD(t, svc, branch, session)

	_, err := svc.Calculate(eod.ID, session)
	require.Error(t, err)
	assert.Equal(t, common.KindWrongStep, eodErrorKind(t, err))

	_, err = svc.CashOut(eod.ID, session, nil)
	require.Error(t, err)
	assert.Equal(t, common.KindWrongStep, eodErrorKind(t, err))

	_, err = svc.Calculate(999999, session)
	require.Error(t, err)
	assert.Equal(t, common.KindEodNotFound, eodErrorKind(t, err))
}

func TestConcurrentStartsSerialized(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "RACE")

	var wg sync.WaitGroup
	var errs [2]error
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Start(StartEODRequest{
				BranchID:  branch.ID,
				SessionID: "sess-race-" + string(rune('a'+i)),
				Operator:  "alice",
			})
		}(i)
	}
	wg.Wait()

	// Exactly one start wins; the loser observes the winner's lock.
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.Equal(t, common.KindSessionConflict, eodErrorKind(t, err))
		}
	}
	assert.Equal(t, 1, winners)

	var processing int64
	require.NoError(t, testDB.Model(&models.EODStatus{}).
		Where("branch_id = ? AND status = ?", branch.ID, models.EODStatusProcessing).
		Count(&processing).Error)
	assert.EqualValues(t, 1, processing)

	var locks int64
	require.NoError(t, testDB.Model(&models.EODSessionLock{}).
		Where("branch_id = ?", branch.ID).
		Count(&locks).Error)
	assert.EqualValues(t, 1, locks)
}

func TestRunBoundToStartingSession(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedTradingDay(t, "BND")
	session := "sess-bnd"
	startEOD(t, svc, branch, session)

	// A stray processing row for the same branch is not driveable by the
	// session that started the other run.
	now := time.Now().UTC()
	stray := models.EODStatus{
		BranchId:          branch.ID,
		EodDate:           now,
		Status:            models.EODStatusProcessing,
		Step:              2,
		StepStatus:        models.StepStatusPending,
		StartedAt:         now,
		StartedBy:         "alice",
		IsLocked:          true,
		BusinessStartTime: now.Add(-4 * time.Hour),
		BusinessEndTime:   now,
	}
	require.NoError(t, testDB.Create(&stray).Error)

	_, err := svc.ExtractBalances(stray.ID, session)
	require.Error(t, err)
	assert.Equal(t, common.KindNotStartedByCaller, eodErrorKind(t, err))
}

func TestReversalClassifiedInBaseSummary(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _ := newTestEOD(t)
	branch := seedBranch(t, "RVS")
	now := time.Now().UTC()
	seedTrx(t, branch, "THB", models.TrxTypeInitialBalance, "0", "30000", now.Add(-3*time.Hour))
	seedTrx(t, branch, "USD", models.TrxTypeInitialBalance, "1000", "0", now.Add(-3*time.Hour))
	seedTrx(t, branch, "USD", models.TrxTypeBuy, "200", "-6000", now.Add(-2*time.Hour))
	seedTrx(t, branch, "USD", models.TrxTypeReversal, "-200", "6000", now.Add(-time.Hour))
	seedBalance(t, branch, "USD", "1000")
	seedBalance(t, branch, "THB", "30000")

	session := "sess-rvs"
	eod := startEOD(t, svc, branch, session)
	result := advanceToVerified(t, svc, eod, session)
	assert.True(t, result.AllMatch)

	_, err := svc.HandleVerification(eod.ID, session, ContinueDecision{})
	require.NoError(t, err)

	// The reversal's base leg lands in its own column; income and expense
	// keep the original trade flows untouched.
	var summary models.BaseSummaryReport
	require.NoError(t, testDB.Where("eod_id = ?", eod.ID).First(&summary).Error)
	assert.True(t, summary.ReversalAmount.Equal(dec("6000")), "reversal %s", summary.ReversalAmount)
	assert.True(t, summary.IncomeAmount.Equal(dec("30000")), "income %s", summary.IncomeAmount)
	assert.True(t, summary.ExpenseAmount.Equal(dec("-6000")), "expense %s", summary.ExpenseAmount)
	assert.True(t, summary.AdjustmentAmount.IsZero())
}
