package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gavincwyant/traintrack/pkg/logging"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	engine := NewEngine(mockDB, logging.NewLogger(), Config{
		MaxRetries:         2,
		RetryBaseDelay:     time.Millisecond,
		RetryMaxDelay:      2 * time.Millisecond,
		GroupMatchStrategy: GroupMatchExactStart,
	})
	return engine, mock, func() { mockDB.Close() }
}

type sessionFixture struct {
	sessionID   string
	workspaceID string
	trainerID   string
	profileID   string
	startsAt    time.Time
	endsAt      time.Time
	override    string
}

func newSessionFixture() sessionFixture {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return sessionFixture{
		sessionID:   uuid.New().String(),
		workspaceID: uuid.New().String(),
		trainerID:   uuid.New().String(),
		profileID:   uuid.New().String(),
		startsAt:    start,
		endsAt:      start.Add(time.Hour),
		override:    "default",
	}
}

func expectSessionLoad(mock sqlmock.Sqlmock, fx sessionFixture) {
	mock.ExpectQuery("SELECT id, workspace_id, trainer_id, client_profile_id").
		WithArgs(fx.sessionID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "workspace_id", "trainer_id", "client_profile_id",
			"starts_at", "ends_at", "rate_override",
		}).AddRow(fx.sessionID, fx.workspaceID, fx.trainerID, fx.profileID,
			fx.startsAt, fx.endsAt, fx.override))
}

func expectNoExistingDeduction(mock sqlmock.Sqlmock, sessionID string) {
	mock.ExpectQuery("FROM bursar.ledger_transactions").
		WithArgs(sessionID, "deduction").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_profile_id", "transaction_type", "amount_cents",
			"balance_after_cents", "description", "linked_session_id", "created_at",
		}))
}

func expectProfileLock(mock sqlmock.Sqlmock, fx sessionFixture, balance int64, individualRate int64, groupRate interface{}) {
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(fx.profileID).
		WillReturnRows(sqlmock.NewRows([]string{
			"workspace_id", "trainer_id", "billing_mode", "balance_cents",
			"target_balance_cents", "individual_rate_cents", "group_rate_cents",
		}).AddRow(fx.workspaceID, fx.trainerID, "prepaid", balance, 60000, individualRate, groupRate))
}

func expectGroupCount(mock sqlmock.Sqlmock, fx sessionFixture, count int) {
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(fx.workspaceID, fx.trainerID, fx.sessionID, fx.profileID, fx.startsAt).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func expectDeductionWrite(mock sqlmock.Sqlmock, fx sessionFixture, amount, newBalance int64, description string) {
	mock.ExpectQuery("UPDATE bursar.client_billing_profiles").
		WithArgs(-amount, fx.profileID).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(newBalance))
	mock.ExpectQuery("INSERT INTO bursar.ledger_transactions").
		WithArgs(fx.profileID, "deduction", amount, newBalance, description, fx.sessionID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
}

func TestDeductSession_FullDeduction(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 50000, 15000, nil)
	expectGroupCount(mock, fx, 0)
	expectDeductionWrite(mock, fx, 15000, 35000, "Training session")
	mock.ExpectCommit()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected full deduction to succeed")
	}
	if outcome.AmountDeductedCents != 15000 {
		t.Fatalf("expected 15000 deducted, got %d", outcome.AmountDeductedCents)
	}
	if outcome.NewBalanceCents != 35000 {
		t.Fatalf("expected balance 35000, got %d", outcome.NewBalanceCents)
	}
	if outcome.ShouldGenerateInvoice {
		t.Fatal("full deduction should not trigger an invoice")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_PartialDeductionClampsToBalance(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 3000, 10000, nil)
	expectGroupCount(mock, fx, 0)
	expectDeductionWrite(mock, fx, 3000, 0, "Training session")
	mock.ExpectCommit()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Success {
		t.Fatal("partial deduction must not report success")
	}
	if outcome.AmountDeductedCents != 3000 {
		t.Fatalf("expected 3000 deducted, got %d", outcome.AmountDeductedCents)
	}
	if outcome.NewBalanceCents != 0 {
		t.Fatalf("expected empty balance, got %d", outcome.NewBalanceCents)
	}
	if !outcome.ShouldGenerateInvoice {
		t.Fatal("partial deduction should trigger a top-up invoice")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_ZeroBalanceWritesNoLedgerEntry(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 0, 10000, nil)
	expectGroupCount(mock, fx, 0)
	mock.ExpectCommit()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Success || outcome.AmountDeductedCents != 0 || outcome.NewBalanceCents != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !outcome.ShouldGenerateInvoice {
		t.Fatal("empty balance should trigger a top-up invoice")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_ReplayReturnsRecordedOutcome(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	mock.ExpectQuery("FROM bursar.ledger_transactions").
		WithArgs(fx.sessionID, "deduction").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_profile_id", "transaction_type", "amount_cents",
			"balance_after_cents", "description", "linked_session_id", "created_at",
		}).AddRow(uuid.New().String(), fx.profileID, "deduction", 15000, 35000,
			"Training session", fx.sessionID, time.Now()))
	mock.ExpectRollback()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatal("replay of a billed session should report success")
	}
	if outcome.AmountDeductedCents != 15000 || outcome.NewBalanceCents != 35000 {
		t.Fatalf("unexpected replay outcome: %+v", outcome)
	}
	if outcome.ShouldGenerateInvoice {
		t.Fatal("replay must not trigger another invoice")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_GroupRateSelectedOverIndividual(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 50000, 10000, int64(7500))
	expectGroupCount(mock, fx, 1)
	expectDeductionWrite(mock, fx, 7500, 42500, "Group training session")
	mock.ExpectCommit()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.AmountDeductedCents != 7500 {
		t.Fatalf("expected group rate 7500, got %d", outcome.AmountDeductedCents)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_GroupRateFallsBackToIndividual(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()
	fx.override = "force_group"

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 50000, 10000, nil)
	expectDeductionWrite(mock, fx, 10000, 40000, "Training session")
	mock.ExpectCommit()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.AmountDeductedCents != 10000 {
		t.Fatalf("expected individual-rate fallback 10000, got %d", outcome.AmountDeductedCents)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_SequentialDeductionsReplayOnLedger(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()
	balances := []int64{50000, 35000, 20000}

	for i, balance := range balances {
		fx.sessionID = uuid.New().String()
		newBalance := balance - 15000

		mock.ExpectBegin()
		expectSessionLoad(mock, fx)
		expectNoExistingDeduction(mock, fx.sessionID)
		expectProfileLock(mock, fx, balance, 15000, nil)
		expectGroupCount(mock, fx, 0)
		expectDeductionWrite(mock, fx, 15000, newBalance, "Training session")
		mock.ExpectCommit()

		outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
		if err != nil {
			t.Fatalf("deduction %d: unexpected error: %v", i+1, err)
		}
		if outcome.NewBalanceCents != newBalance {
			t.Fatalf("deduction %d: expected balance %d, got %d", i+1, newBalance, outcome.NewBalanceCents)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_LostInsertRaceReturnsWinner(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 50000, 15000, nil)
	expectGroupCount(mock, fx, 0)
	mock.ExpectQuery("UPDATE bursar.client_billing_profiles").
		WithArgs(int64(-15000), fx.profileID).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(35000))
	mock.ExpectQuery("INSERT INTO bursar.ledger_transactions").
		WithArgs(fx.profileID, "deduction", int64(15000), int64(35000), "Training session", fx.sessionID).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery("FROM bursar.ledger_transactions").
		WithArgs(fx.sessionID, "deduction").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_profile_id", "transaction_type", "amount_cents",
			"balance_after_cents", "description", "linked_session_id", "created_at",
		}).AddRow(uuid.New().String(), fx.profileID, "deduction", 15000, 35000,
			"Training session", fx.sessionID, time.Now()))

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.AmountDeductedCents != 15000 {
		t.Fatalf("expected winner's outcome, got %+v", outcome)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_RetriesSerializationConflict(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, workspace_id, trainer_id, client_profile_id").
		WithArgs(fx.sessionID).
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 50000, 15000, nil)
	expectGroupCount(mock, fx, 0)
	expectDeductionWrite(mock, fx, 15000, 35000, "Training session")
	mock.ExpectCommit()

	outcome, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected retry to succeed")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_ExhaustedRetriesReportTransient(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	// MaxRetries is 2, so three attempts in total.
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, workspace_id, trainer_id, client_profile_id").
			WithArgs(fx.sessionID).
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
	}

	_, err := engine.DeductSession(context.Background(), fx.sessionID)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected a retryable transient error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_SessionNotFound(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	sessionID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, workspace_id, trainer_id, client_profile_id").
		WithArgs(sessionID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "workspace_id", "trainer_id", "client_profile_id",
			"starts_at", "ends_at", "rate_override",
		}))
	mock.ExpectRollback()

	_, err := engine.DeductSession(context.Background(), sessionID)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductSession_ZeroRateIsConfigError(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	fx := newSessionFixture()

	mock.ExpectBegin()
	expectSessionLoad(mock, fx)
	expectNoExistingDeduction(mock, fx.sessionID)
	expectProfileLock(mock, fx, 50000, 0, nil)
	expectGroupCount(mock, fx, 0)
	mock.ExpectRollback()

	_, err := engine.DeductSession(context.Background(), fx.sessionID)
	if !errors.Is(err, ErrInvalidRateConfig) {
		t.Fatalf("expected ErrInvalidRateConfig, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
