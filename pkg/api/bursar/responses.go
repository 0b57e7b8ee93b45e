package bursar

import "github.com/gavincwyant/traintrack/pkg/models"

// ErrorResponse represents a standard error response from Bursar
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// DeductSessionResponse wraps the deduction outcome for a completed session
type DeductSessionResponse struct {
	SessionID string                  `json:"session_id"`
	Outcome   models.DeductionOutcome `json:"outcome"`
}

// AddCreditResponse reports the balance after a manual credit
type AddCreditResponse struct {
	TransactionID   string `json:"transaction_id"`
	NewBalanceCents int64  `json:"new_balance_cents"`
}

// TopUpInvoiceResponse reports a generated replenishment invoice.
// Invoice is nil when no top-up was needed (balance already at target).
type TopUpInvoiceResponse struct {
	Invoice *models.Invoice `json:"invoice,omitempty"`
}

// MarkInvoicePaidResponse reports the balance after payment reconciliation
type MarkInvoicePaidResponse struct {
	InvoiceID       string `json:"invoice_id"`
	NewBalanceCents int64  `json:"new_balance_cents"`
}

// VoidAndSwitchResponse reports the result of voiding a top-up invoice
// and switching billing mode
type VoidAndSwitchResponse struct {
	Success              bool   `json:"success"`
	RetainedCreditCents  int64  `json:"retained_credit_cents"`
	NewBillingMode       string `json:"new_billing_mode"`
	RetentionRecordedVia string `json:"retention_recorded_via,omitempty"`
}

// GetTransactionsResponse is a paginated page of ledger transactions,
// newest first
type GetTransactionsResponse struct {
	Transactions []models.LedgerTransaction `json:"transactions"`
	Total        int                        `json:"total"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
	HasMore      bool                       `json:"has_more"`
}

// PrepaidSummaryResponse lists prepaid clients for a trainer
type PrepaidSummaryResponse struct {
	Clients []models.PrepaidClientSummary `json:"clients"`
	Count   int                           `json:"count"`
}
