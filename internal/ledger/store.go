package ledger

import (
	"database/sql"
	"errors"
	"fmt"
)

// profileRow is the locked view of a client billing profile inside a
// transaction. Holding it means the row is locked until commit.
type profileRow struct {
	ID                  string
	WorkspaceID         string
	TrainerID           string
	BillingMode         string
	BalanceCents        int64
	TargetBalanceCents  sql.NullInt64
	IndividualRateCents int64
	GroupRateCents      sql.NullInt64
}

// lockProfile reads a client billing profile with a row lock. Every
// balance mutation must go through this lock so concurrent operations on
// the same client serialize; different clients never contend.
func lockProfile(tx *sql.Tx, clientProfileID string) (*profileRow, error) {
	row := &profileRow{ID: clientProfileID}
	err := tx.QueryRow(`
		SELECT workspace_id, trainer_id, billing_mode, balance_cents,
		       target_balance_cents, individual_rate_cents, group_rate_cents
		FROM bursar.client_billing_profiles
		WHERE id = $1
		FOR UPDATE
	`, clientProfileID).Scan(
		&row.WorkspaceID,
		&row.TrainerID,
		&row.BillingMode,
		&row.BalanceCents,
		&row.TargetBalanceCents,
		&row.IndividualRateCents,
		&row.GroupRateCents,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock billing profile: %w", err)
	}
	return row, nil
}

// applyBalanceDelta applies a signed delta to the locked profile's balance
// and returns the new balance. The guard refuses any delta that would drive
// the balance negative; callers are responsible for clamping first.
func applyBalanceDelta(tx *sql.Tx, clientProfileID string, deltaCents int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(`
		UPDATE bursar.client_billing_profiles
		SET balance_cents = balance_cents + $1, updated_at = NOW()
		WHERE id = $2 AND balance_cents + $1 >= 0
		RETURNING balance_cents
	`, deltaCents, clientProfileID).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("balance delta %d would drive profile %s negative", deltaCents, clientProfileID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to apply balance delta: %w", err)
	}
	return newBalance, nil
}

// recordTransaction appends one ledger entry inside the same transaction as
// the balance mutation it documents.
func recordTransaction(tx *sql.Tx, clientProfileID, transactionType string, amountCents, balanceAfterCents int64, description string, linkedSessionID *string) (string, error) {
	var id string
	err := tx.QueryRow(`
		INSERT INTO bursar.ledger_transactions (
			client_profile_id, transaction_type, amount_cents,
			balance_after_cents, description, linked_session_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, clientProfileID, transactionType, amountCents, balanceAfterCents, description, linkedSessionID).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
