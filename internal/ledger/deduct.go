package ledger

import (
	"context"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/logging"
	"github.com/gavincwyant/traintrack/pkg/models"
)

// DeductSession charges a completed session against the client's prepaid
// balance. The deduction is clamped to the available balance; when the full
// rate could not be collected the outcome asks for a top-up invoice.
//
// The operation is idempotent per session. Replaying a session that was
// already billed returns the recorded outcome without touching the balance,
// whichever of two concurrent calls lost the race included.
func (e *Engine) DeductSession(ctx context.Context, sessionID string) (*models.DeductionOutcome, error) {
	outcome, err := runWithRetry(ctx, e, func() (*models.DeductionOutcome, error) {
		return e.deductOnce(sessionID)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logging.Fields{
		"session_id":     sessionID,
		"amount_cents":   outcome.AmountDeductedCents,
		"balance_cents":  outcome.NewBalanceCents,
		"fully_deducted": outcome.Success,
	}).Info("Session deduction processed")

	return outcome, nil
}

func (e *Engine) deductOnce(sessionID string) (*models.DeductionOutcome, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin deduction transaction: %w", err)
	}
	defer tx.Rollback()

	session, err := loadSession(tx, sessionID)
	if err != nil {
		return nil, err
	}

	// Fast path: already billed.
	existing, err := findDeductionBySession(tx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replayOutcome(existing), nil
	}

	profile, err := lockProfile(tx, session.ClientProfileID)
	if err != nil {
		return nil, err
	}

	rate, description, err := e.resolveSessionRate(tx, session, profile)
	if err != nil {
		return nil, err
	}

	amount := rate
	if profile.BalanceCents < rate {
		amount = profile.BalanceCents
	}

	newBalance := profile.BalanceCents
	if amount > 0 {
		newBalance, err = applyBalanceDelta(tx, profile.ID, -amount)
		if err != nil {
			return nil, err
		}
		_, err = recordTransaction(tx, profile.ID, models.TransactionTypeDeduction,
			amount, newBalance, description, &sessionID)
		if isUniqueViolation(err) {
			// Lost a race with a concurrent deduction of the same
			// session. Roll back and report what the winner recorded.
			tx.Rollback()
			winner, lookupErr := findDeductionBySession(e.db, sessionID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if winner == nil {
				return nil, fmt.Errorf("deduction for session %s vanished after conflict", sessionID)
			}
			return replayOutcome(winner), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record deduction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deduction: %w", err)
	}

	return &models.DeductionOutcome{
		Success:               amount == rate,
		AmountDeductedCents:   amount,
		NewBalanceCents:       newBalance,
		ShouldGenerateInvoice: amount != rate,
	}, nil
}

// replayOutcome rebuilds the outcome of an already-recorded deduction.
// Success is reported unconditionally so retried callers stop; the invoice
// decision was made on the first pass and is not repeated.
func replayOutcome(txn *models.LedgerTransaction) *models.DeductionOutcome {
	return &models.DeductionOutcome{
		Success:               true,
		AmountDeductedCents:   txn.AmountCents,
		NewBalanceCents:       txn.BalanceAfterCents,
		ShouldGenerateInvoice: false,
	}
}
