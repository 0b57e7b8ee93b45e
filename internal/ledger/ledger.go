package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so the idempotency
// lookup can run inside the deduction transaction and again after a
// rollback caused by a concurrent insert.
type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// findProfileID resolves a client within a workspace to its billing
// profile. Workspace scoping happens here so no caller can reach another
// tenant's profile by guessing IDs.
func findProfileID(q queryer, workspaceID, clientID string) (string, error) {
	var id string
	err := q.QueryRow(`
		SELECT id FROM bursar.client_billing_profiles
		WHERE workspace_id = $1 AND client_id = $2
	`, workspaceID, clientID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrProfileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve billing profile: %w", err)
	}
	return id, nil
}

// findDeductionBySession returns the deduction recorded for a session, or
// nil if the session has not been billed yet. The unique partial index on
// linked_session_id guarantees at most one row.
func findDeductionBySession(q queryer, sessionID string) (*models.LedgerTransaction, error) {
	var txn models.LedgerTransaction
	err := q.QueryRow(`
		SELECT id, client_profile_id, transaction_type, amount_cents,
		       balance_after_cents, description, linked_session_id, created_at
		FROM bursar.ledger_transactions
		WHERE linked_session_id = $1 AND transaction_type = $2
	`, sessionID, models.TransactionTypeDeduction).Scan(
		&txn.ID,
		&txn.ClientProfileID,
		&txn.TransactionType,
		&txn.AmountCents,
		&txn.BalanceAfterCents,
		&txn.Description,
		&txn.LinkedSessionID,
		&txn.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session deduction: %w", err)
	}
	return &txn, nil
}

// GetTransactions returns a page of a client's ledger, newest first,
// together with the total entry count so callers can paginate.
func (e *Engine) GetTransactions(workspaceID, clientID string, limit, offset int) ([]models.LedgerTransaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	profileID, err := findProfileID(e.db, workspaceID, clientID)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = e.db.QueryRow(`
		SELECT COUNT(*) FROM bursar.ledger_transactions
		WHERE client_profile_id = $1
	`, profileID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger transactions: %w", err)
	}

	rows, err := e.db.Query(`
		SELECT id, client_profile_id, transaction_type, amount_cents,
		       balance_after_cents, description, linked_session_id, created_at
		FROM bursar.ledger_transactions
		WHERE client_profile_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, profileID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query ledger transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.LedgerTransaction{}
	for rows.Next() {
		var txn models.LedgerTransaction
		if err := rows.Scan(
			&txn.ID,
			&txn.ClientProfileID,
			&txn.TransactionType,
			&txn.AmountCents,
			&txn.BalanceAfterCents,
			&txn.Description,
			&txn.LinkedSessionID,
			&txn.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read ledger transactions: %w", err)
	}

	return transactions, total, nil
}
