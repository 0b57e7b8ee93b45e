package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/logging"
	"github.com/gavincwyant/traintrack/pkg/models"
)

// VoidInvoiceAndSwitchBilling cancels an outstanding top-up invoice and
// moves the client off prepaid billing in one transaction. Any remaining
// balance is retained, not refunded; a zero-delta ledger entry documents
// the retention so the audit trail explains why the balance stopped moving.
//
// Returns the retained balance in cents.
func (e *Engine) VoidInvoiceAndSwitchBilling(ctx context.Context, workspaceID, invoiceID, newBillingMode string) (int64, error) {
	if newBillingMode != models.BillingModePerSession && newBillingMode != models.BillingModeMonthly {
		return 0, ErrInvalidBillingMode
	}

	type switchResult struct {
		retainedCents int64
	}

	result, err := runWithRetry(ctx, e, func() (switchResult, error) {
		tx, err := e.db.Begin()
		if err != nil {
			return switchResult{}, fmt.Errorf("failed to begin switch transaction: %w", err)
		}
		defer tx.Rollback()

		var (
			profileID string
			category  string
			status    string
		)
		err = tx.QueryRow(`
			SELECT client_profile_id, category, status
			FROM bursar.invoices
			WHERE id = $1 AND workspace_id = $2
			FOR UPDATE
		`, invoiceID, workspaceID).Scan(&profileID, &category, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return switchResult{}, ErrInvoiceNotFound
		}
		if err != nil {
			return switchResult{}, fmt.Errorf("failed to lock invoice: %w", err)
		}

		if category != models.InvoiceCategoryPrepaidTopup {
			return switchResult{}, ErrNotTopUpInvoice
		}
		switch status {
		case models.InvoiceStatusPaid:
			return switchResult{}, ErrInvoiceAlreadyPaid
		case models.InvoiceStatusCancelled:
			return switchResult{}, ErrInvoiceAlreadyCancelled
		}

		if _, err := tx.Exec(`
			UPDATE bursar.invoices
			SET status = $1, cancelled_at = NOW()
			WHERE id = $2
		`, models.InvoiceStatusCancelled, invoiceID); err != nil {
			return switchResult{}, fmt.Errorf("failed to cancel invoice: %w", err)
		}

		profile, err := lockProfile(tx, profileID)
		if err != nil {
			return switchResult{}, err
		}

		if profile.BalanceCents > 0 {
			description := fmt.Sprintf("Balance retained on switch to %s billing", newBillingMode)
			if _, err := recordTransaction(tx, profileID, models.TransactionTypeCredit,
				profile.BalanceCents, profile.BalanceCents, description, nil); err != nil {
				return switchResult{}, fmt.Errorf("failed to record retained balance: %w", err)
			}
		}

		if _, err := tx.Exec(`
			UPDATE bursar.client_billing_profiles
			SET billing_mode = $1, updated_at = NOW()
			WHERE id = $2
		`, newBillingMode, profileID); err != nil {
			return switchResult{}, fmt.Errorf("failed to switch billing mode: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return switchResult{}, fmt.Errorf("failed to commit switch: %w", err)
		}
		return switchResult{retainedCents: profile.BalanceCents}, nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.WithFields(logging.Fields{
		"invoice_id":     invoiceID,
		"billing_mode":   newBillingMode,
		"retained_cents": result.retainedCents,
	}).Info("Top-up invoice voided and billing mode switched")

	return result.retainedCents, nil
}
