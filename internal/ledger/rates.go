package ledger

import (
	"database/sql"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/models"
)

// sessionRow is the billing-relevant slice of a scheduled session, read
// inside the deduction transaction.
type sessionRow struct {
	ID              string
	WorkspaceID     string
	TrainerID       string
	ClientProfileID string
	StartsAt        sql.NullTime
	EndsAt          sql.NullTime
	RateOverride    string
}

func loadSession(tx *sql.Tx, sessionID string) (*sessionRow, error) {
	var s sessionRow
	err := tx.QueryRow(`
		SELECT id, workspace_id, trainer_id, client_profile_id,
		       starts_at, ends_at, rate_override
		FROM bursar.training_sessions
		WHERE id = $1
	`, sessionID).Scan(
		&s.ID,
		&s.WorkspaceID,
		&s.TrainerID,
		&s.ClientProfileID,
		&s.StartsAt,
		&s.EndsAt,
		&s.RateOverride,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load training session: %w", err)
	}
	return &s, nil
}

// resolveSessionRate picks the rate to charge for a session and a ledger
// description to match. An explicit override on the session wins; otherwise
// the session is classified by looking for other sessions of the same
// trainer in the same slot. A group rate that is not configured falls back
// to the individual rate.
func (e *Engine) resolveSessionRate(tx *sql.Tx, session *sessionRow, profile *profileRow) (int64, string, error) {
	group := false
	switch session.RateOverride {
	case models.RateOverrideForceIndividual:
		group = false
	case models.RateOverrideForceGroup:
		group = true
	default:
		var err error
		group, err = e.isGroupSession(tx, session)
		if err != nil {
			return 0, "", err
		}
	}

	rate := profile.IndividualRateCents
	description := "Training session"
	if group && profile.GroupRateCents.Valid {
		rate = profile.GroupRateCents.Int64
		description = "Group training session"
	}
	if rate <= 0 {
		return 0, "", ErrInvalidRateConfig
	}
	return rate, description, nil
}

// isGroupSession reports whether another client of the same trainer shares
// the session's slot. The strategy decides whether "shares" means an
// identical start time or any time overlap.
func (e *Engine) isGroupSession(tx *sql.Tx, session *sessionRow) (bool, error) {
	var query string
	var args []interface{}

	switch e.cfg.GroupMatchStrategy {
	case GroupMatchOverlap:
		query = `
			SELECT COUNT(*) FROM bursar.training_sessions
			WHERE workspace_id = $1 AND trainer_id = $2 AND id <> $3
			  AND client_profile_id <> $4
			  AND starts_at < $5 AND ends_at > $6
		`
		args = []interface{}{
			session.WorkspaceID, session.TrainerID, session.ID,
			session.ClientProfileID, session.EndsAt, session.StartsAt,
		}
	default:
		query = `
			SELECT COUNT(*) FROM bursar.training_sessions
			WHERE workspace_id = $1 AND trainer_id = $2 AND id <> $3
			  AND client_profile_id <> $4
			  AND starts_at = $5
		`
		args = []interface{}{
			session.WorkspaceID, session.TrainerID, session.ID,
			session.ClientProfileID, session.StartsAt,
		}
	}

	var count int
	if err := tx.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to classify session: %w", err)
	}
	return count > 0, nil
}
