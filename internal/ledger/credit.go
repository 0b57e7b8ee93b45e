package ledger

import (
	"context"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/logging"
	"github.com/gavincwyant/traintrack/pkg/models"
)

// AddCredit adds a manual credit to a client's prepaid balance and appends
// the matching ledger entry. Returns the ledger transaction ID and the new
// balance.
func (e *Engine) AddCredit(ctx context.Context, workspaceID, clientID string, amountCents int64, notes string) (string, int64, error) {
	if amountCents <= 0 {
		return "", 0, ErrInvalidCreditAmount
	}

	type creditResult struct {
		transactionID string
		newBalance    int64
	}

	result, err := runWithRetry(ctx, e, func() (creditResult, error) {
		tx, err := e.db.Begin()
		if err != nil {
			return creditResult{}, fmt.Errorf("failed to begin credit transaction: %w", err)
		}
		defer tx.Rollback()

		profileID, err := findProfileID(tx, workspaceID, clientID)
		if err != nil {
			return creditResult{}, err
		}

		if _, err := lockProfile(tx, profileID); err != nil {
			return creditResult{}, err
		}

		newBalance, err := applyBalanceDelta(tx, profileID, amountCents)
		if err != nil {
			return creditResult{}, err
		}

		description := notes
		if description == "" {
			description = "Manual balance credit"
		}
		transactionID, err := recordTransaction(tx, profileID, models.TransactionTypeCredit,
			amountCents, newBalance, description, nil)
		if err != nil {
			return creditResult{}, fmt.Errorf("failed to record credit: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return creditResult{}, fmt.Errorf("failed to commit credit: %w", err)
		}
		return creditResult{transactionID: transactionID, newBalance: newBalance}, nil
	})
	if err != nil {
		return "", 0, err
	}

	e.logger.WithFields(logging.Fields{
		"workspace_id":  workspaceID,
		"client_id":     clientID,
		"amount_cents":  amountCents,
		"balance_cents": result.newBalance,
	}).Info("Balance credit added")

	return result.transactionID, result.newBalance, nil
}
