package ledger

import (
	"database/sql"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/models"
)

// GetPrepaidClientsSummary returns a per-client snapshot of every prepaid
// profile in a workspace: current balance, sessions consumed since the last
// credit, last ledger activity and a coarse balance status. Pass an empty
// trainerID to cover the whole workspace.
//
// Clients closest to running out sort first.
func (e *Engine) GetPrepaidClientsSummary(workspaceID, trainerID string) ([]models.PrepaidClientSummary, error) {
	query := `
		SELECT p.id, p.client_id, p.balance_cents, p.target_balance_cents,
		       (SELECT COUNT(*) FROM bursar.ledger_transactions t
		        WHERE t.client_profile_id = p.id
		          AND t.transaction_type = 'deduction'
		          AND t.created_at > COALESCE(
		              (SELECT MAX(c.created_at) FROM bursar.ledger_transactions c
		               WHERE c.client_profile_id = p.id AND c.transaction_type = 'credit'),
		              '-infinity'::timestamptz)) AS sessions_since_credit,
		       (SELECT MAX(a.created_at) FROM bursar.ledger_transactions a
		        WHERE a.client_profile_id = p.id) AS last_activity_at
		FROM bursar.client_billing_profiles p
		WHERE p.workspace_id = $1 AND p.billing_mode = 'prepaid'
	`
	args := []interface{}{workspaceID}
	if trainerID != "" {
		query += ` AND p.trainer_id = $2`
		args = append(args, trainerID)
	}
	query += ` ORDER BY p.balance_cents ASC, p.client_id ASC`

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prepaid summary: %w", err)
	}
	defer rows.Close()

	summaries := []models.PrepaidClientSummary{}
	for rows.Next() {
		var (
			s            models.PrepaidClientSummary
			target       sql.NullInt64
			lastActivity sql.NullTime
		)
		if err := rows.Scan(
			&s.ClientProfileID,
			&s.ClientID,
			&s.BalanceCents,
			&target,
			&s.SessionsSinceCredit,
			&lastActivity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prepaid summary: %w", err)
		}
		if target.Valid {
			t := target.Int64
			s.TargetBalanceCents = &t
		}
		if lastActivity.Valid {
			t := lastActivity.Time
			s.LastActivityAt = &t
		}
		s.BalanceStatus = balanceStatus(s.BalanceCents, target)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prepaid summary: %w", err)
	}

	return summaries, nil
}

// balanceStatus classifies a prepaid balance. A balance under a quarter of
// the target counts as low; without a target only empty and healthy apply.
func balanceStatus(balanceCents int64, target sql.NullInt64) string {
	if balanceCents <= 0 {
		return models.BalanceStatusEmpty
	}
	if target.Valid && balanceCents*4 < target.Int64 {
		return models.BalanceStatusLow
	}
	return models.BalanceStatusHealthy
}
