package models

import (
	"time"
)

// Billing modes for a client profile
const (
	BillingModePerSession = "per_session"
	BillingModeMonthly    = "monthly"
	BillingModePrepaid    = "prepaid"
)

// ValidBillingMode reports whether mode is one of the known billing modes.
func ValidBillingMode(mode string) bool {
	switch mode {
	case BillingModePerSession, BillingModeMonthly, BillingModePrepaid:
		return true
	}
	return false
}

// Ledger transaction types
const (
	TransactionTypeCredit    = "credit"
	TransactionTypeDeduction = "deduction"
)

// Invoice statuses
const (
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice categories
const (
	InvoiceCategoryStandard     = "standard"
	InvoiceCategoryPrepaidTopup = "prepaid_topup"
)

// Per-session rate overrides set by the trainer
const (
	RateOverrideDefault         = "default"
	RateOverrideForceIndividual = "force_individual"
	RateOverrideForceGroup      = "force_group"
)

// Balance statuses derived for prepaid summaries
const (
	BalanceStatusEmpty   = "empty"
	BalanceStatusLow     = "low"
	BalanceStatusHealthy = "healthy"
)

// ClientBillingProfile holds a client's billing configuration and prepaid balance.
// BalanceCents is mutated only through ledger-writing operations.
type ClientBillingProfile struct {
	ID                  string    `json:"id" db:"id"`
	WorkspaceID         string    `json:"workspace_id" db:"workspace_id"`
	TrainerID           string    `json:"trainer_id" db:"trainer_id"`
	ClientID            string    `json:"client_id" db:"client_id"`
	BillingMode         string    `json:"billing_mode" db:"billing_mode"`
	BalanceCents        int64     `json:"balance_cents" db:"balance_cents"`
	TargetBalanceCents  *int64    `json:"target_balance_cents,omitempty" db:"target_balance_cents"`
	IndividualRateCents int64     `json:"individual_rate_cents" db:"individual_rate_cents"`
	GroupRateCents      *int64    `json:"group_rate_cents,omitempty" db:"group_rate_cents"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerTransaction is one append-only balance movement. Rows are never
// updated or deleted; BalanceAfterCents lets the balance be replayed for audit.
type LedgerTransaction struct {
	ID                string    `json:"id" db:"id"`
	ClientProfileID   string    `json:"client_profile_id" db:"client_profile_id"`
	TransactionType   string    `json:"transaction_type" db:"transaction_type"`
	AmountCents       int64     `json:"amount_cents" db:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents" db:"balance_after_cents"`
	Description       string    `json:"description" db:"description"`
	LinkedSessionID   *string   `json:"linked_session_id,omitempty" db:"linked_session_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Invoice is a billing invoice; prepaid top-ups carry the prepaid_topup category.
type Invoice struct {
	ID              string     `json:"id" db:"id"`
	WorkspaceID     string     `json:"workspace_id" db:"workspace_id"`
	ClientProfileID string     `json:"client_profile_id" db:"client_profile_id"`
	TrainerID       string     `json:"trainer_id" db:"trainer_id"`
	AmountCents     int64      `json:"amount_cents" db:"amount_cents"`
	Currency        string     `json:"currency" db:"currency"`
	Category        string     `json:"category" db:"category"`
	Status          string     `json:"status" db:"status"`
	Notes           string     `json:"notes" db:"notes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// TrainingSession is the billing-relevant snapshot of a scheduled session,
// supplied by the scheduling service.
type TrainingSession struct {
	ID              string    `json:"id" db:"id"`
	WorkspaceID     string    `json:"workspace_id" db:"workspace_id"`
	TrainerID       string    `json:"trainer_id" db:"trainer_id"`
	ClientProfileID string    `json:"client_profile_id" db:"client_profile_id"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	EndsAt          time.Time `json:"ends_at" db:"ends_at"`
	RateOverride    string    `json:"rate_override" db:"rate_override"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// DeductionOutcome is the result of deducting a completed session from a
// prepaid balance. Success means the full resolved rate was collected.
type DeductionOutcome struct {
	Success               bool  `json:"success"`
	AmountDeductedCents   int64 `json:"amount_deducted_cents"`
	NewBalanceCents       int64 `json:"new_balance_cents"`
	ShouldGenerateInvoice bool  `json:"should_generate_invoice"`
}

// PrepaidClientSummary is a read-side projection of one prepaid client's state.
type PrepaidClientSummary struct {
	ClientProfileID     string     `json:"client_profile_id" db:"client_profile_id"`
	ClientID            string     `json:"client_id" db:"client_id"`
	BalanceCents        int64      `json:"balance_cents" db:"balance_cents"`
	TargetBalanceCents  *int64     `json:"target_balance_cents,omitempty" db:"target_balance_cents"`
	SessionsSinceCredit int        `json:"sessions_since_credit"`
	LastActivityAt      *time.Time `json:"last_activity_at,omitempty"`
	BalanceStatus       string     `json:"balance_status"`
}
