package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gavincwyant/traintrack/pkg/billing"
	"github.com/gavincwyant/traintrack/pkg/logging"
	"github.com/gavincwyant/traintrack/pkg/models"
)

// GenerateTopUpInvoice creates a replenishment invoice that brings the
// client's balance back to the configured target. The amount is computed
// from the current balance under the profile lock so a concurrent credit
// cannot inflate it.
//
// Returns nil when the balance already meets the target. An open top-up
// invoice is reused instead of stacking a second one, so event replays and
// repeated partial deductions produce at most one outstanding invoice.
func (e *Engine) GenerateTopUpInvoice(ctx context.Context, workspaceID, clientID, trainerID string) (*models.Invoice, error) {
	return runWithRetry(ctx, e, func() (*models.Invoice, error) {
		tx, err := e.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("failed to begin invoice transaction: %w", err)
		}
		defer tx.Rollback()

		profileID, err := findProfileID(tx, workspaceID, clientID)
		if err != nil {
			return nil, err
		}

		profile, err := lockProfile(tx, profileID)
		if err != nil {
			return nil, err
		}

		existing, err := findOpenTopUpInvoice(tx, profileID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit invoice transaction: %w", err)
			}
			return existing, nil
		}

		if !profile.TargetBalanceCents.Valid {
			return nil, ErrMissingTargetBalance
		}

		amount := profile.TargetBalanceCents.Int64 - profile.BalanceCents
		if amount <= 0 {
			return nil, nil
		}

		if trainerID == "" {
			trainerID = profile.TrainerID
		}

		invoice := &models.Invoice{
			WorkspaceID:     profile.WorkspaceID,
			ClientProfileID: profileID,
			TrainerID:       trainerID,
			AmountCents:     amount,
			Currency:        billing.DefaultCurrency(),
			Category:        models.InvoiceCategoryPrepaidTopup,
			Status:          models.InvoiceStatusSent,
			Notes:           "Prepaid balance top-up",
		}
		err = tx.QueryRow(`
			INSERT INTO bursar.invoices (
				workspace_id, client_profile_id, trainer_id, amount_cents,
				currency, category, status, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at
		`, invoice.WorkspaceID, invoice.ClientProfileID, invoice.TrainerID,
			invoice.AmountCents, invoice.Currency, invoice.Category,
			invoice.Status, invoice.Notes,
		).Scan(&invoice.ID, &invoice.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create top-up invoice: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit invoice transaction: %w", err)
		}

		e.logger.WithFields(logging.Fields{
			"invoice_id":   invoice.ID,
			"client_id":    clientID,
			"amount_cents": invoice.AmountCents,
		}).Info("Top-up invoice generated")

		return invoice, nil
	})
}

// findOpenTopUpInvoice returns the unpaid top-up invoice for a profile, if
// one exists.
func findOpenTopUpInvoice(q queryer, profileID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := q.QueryRow(`
		SELECT id, workspace_id, client_profile_id, trainer_id, amount_cents,
		       currency, category, status, notes, created_at
		FROM bursar.invoices
		WHERE client_profile_id = $1 AND category = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, profileID, models.InvoiceCategoryPrepaidTopup, models.InvoiceStatusSent).Scan(
		&inv.ID,
		&inv.WorkspaceID,
		&inv.ClientProfileID,
		&inv.TrainerID,
		&inv.AmountCents,
		&inv.Currency,
		&inv.Category,
		&inv.Status,
		&inv.Notes,
		&inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open top-up invoice: %w", err)
	}
	return &inv, nil
}

// MarkTopUpInvoicePaid reconciles payment of a top-up invoice: the invoice
// flips to paid and the invoiced amount is credited to the balance in the
// same transaction. Marking an already-paid invoice again is a no-op.
func (e *Engine) MarkTopUpInvoicePaid(ctx context.Context, invoiceID string) (int64, error) {
	type paidResult struct {
		newBalance int64
	}

	result, err := runWithRetry(ctx, e, func() (paidResult, error) {
		tx, err := e.db.Begin()
		if err != nil {
			return paidResult{}, fmt.Errorf("failed to begin payment transaction: %w", err)
		}
		defer tx.Rollback()

		var (
			profileID string
			amount    int64
			category  string
			status    string
		)
		err = tx.QueryRow(`
			SELECT client_profile_id, amount_cents, category, status
			FROM bursar.invoices
			WHERE id = $1
			FOR UPDATE
		`, invoiceID).Scan(&profileID, &amount, &category, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return paidResult{}, ErrInvoiceNotFound
		}
		if err != nil {
			return paidResult{}, fmt.Errorf("failed to lock invoice: %w", err)
		}

		if category != models.InvoiceCategoryPrepaidTopup {
			return paidResult{}, ErrNotTopUpInvoice
		}
		switch status {
		case models.InvoiceStatusPaid:
			// Payment already reconciled; the credit was applied once.
			var balance int64
			if err := tx.QueryRow(`
				SELECT balance_cents FROM bursar.client_billing_profiles WHERE id = $1
			`, profileID).Scan(&balance); err != nil {
				return paidResult{}, fmt.Errorf("failed to read balance: %w", err)
			}
			return paidResult{newBalance: balance}, nil
		case models.InvoiceStatusCancelled:
			return paidResult{}, ErrInvoiceAlreadyCancelled
		}

		if _, err := tx.Exec(`
			UPDATE bursar.invoices
			SET status = $1, paid_at = NOW()
			WHERE id = $2
		`, models.InvoiceStatusPaid, invoiceID); err != nil {
			return paidResult{}, fmt.Errorf("failed to mark invoice paid: %w", err)
		}

		if _, err := lockProfile(tx, profileID); err != nil {
			return paidResult{}, err
		}
		newBalance, err := applyBalanceDelta(tx, profileID, amount)
		if err != nil {
			return paidResult{}, err
		}
		if _, err := recordTransaction(tx, profileID, models.TransactionTypeCredit,
			amount, newBalance, "Top-up invoice payment", nil); err != nil {
			return paidResult{}, fmt.Errorf("failed to record payment credit: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return paidResult{}, fmt.Errorf("failed to commit payment: %w", err)
		}
		return paidResult{newBalance: newBalance}, nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.WithFields(logging.Fields{
		"invoice_id":    invoiceID,
		"balance_cents": result.newBalance,
	}).Info("Top-up invoice payment reconciled")

	return result.newBalance, nil
}
