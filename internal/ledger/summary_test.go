package ledger

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestGetPrepaidClientsSummary_ClassifiesBalances(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	workspaceID := uuid.New().String()
	now := time.Now()

	mock.ExpectQuery("FROM bursar.client_billing_profiles p").
		WithArgs(workspaceID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_id", "balance_cents", "target_balance_cents",
			"sessions_since_credit", "last_activity_at",
		}).
			AddRow(uuid.New().String(), uuid.New().String(), 0, 60000, 6, now).
			AddRow(uuid.New().String(), uuid.New().String(), 10000, 60000, 4, now.Add(-24*time.Hour)).
			AddRow(uuid.New().String(), uuid.New().String(), 50000, 60000, 1, nil).
			AddRow(uuid.New().String(), uuid.New().String(), 20000, nil, 0, nil))

	summaries, err := engine.GetPrepaidClientsSummary(workspaceID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 4 {
		t.Fatalf("expected 4 summaries, got %d", len(summaries))
	}

	expected := []string{"empty", "low", "healthy", "healthy"}
	for i, want := range expected {
		if summaries[i].BalanceStatus != want {
			t.Fatalf("summary %d: expected status %s, got %s", i, want, summaries[i].BalanceStatus)
		}
	}
	if summaries[0].SessionsSinceCredit != 6 {
		t.Fatalf("expected 6 sessions since credit, got %d", summaries[0].SessionsSinceCredit)
	}
	if summaries[2].LastActivityAt != nil {
		t.Fatal("expected no activity timestamp for idle client")
	}
	if summaries[3].TargetBalanceCents != nil {
		t.Fatal("expected nil target for unconfigured client")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetPrepaidClientsSummary_FiltersByTrainer(t *testing.T) {
	engine, mock, closeDB := newTestEngine(t)
	defer closeDB()

	workspaceID := uuid.New().String()
	trainerID := uuid.New().String()

	mock.ExpectQuery("AND p.trainer_id").
		WithArgs(workspaceID, trainerID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_id", "balance_cents", "target_balance_cents",
			"sessions_since_credit", "last_activity_at",
		}))

	summaries, err := engine.GetPrepaidClientsSummary(workspaceID, trainerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no summaries, got %d", len(summaries))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
