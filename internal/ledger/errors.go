package ledger

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Validation errors: the caller sent something fixable.
var (
	ErrInvalidCreditAmount     = errors.New("credit amount must be positive")
	ErrInvalidBillingMode      = errors.New("invalid billing mode")
	ErrInvoiceAlreadyPaid      = errors.New("invoice is already paid")
	ErrInvoiceAlreadyCancelled = errors.New("invoice is already cancelled")
	ErrNotTopUpInvoice         = errors.New("invoice is not a prepaid top-up invoice")
)

// Not-found errors. Cross-workspace lookups report the same errors so
// existence never leaks across tenants.
var (
	ErrProfileNotFound = errors.New("client billing profile not found")
	ErrSessionNotFound = errors.New("training session not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// Configuration errors: the client's billing setup is incomplete.
var (
	ErrMissingTargetBalance = errors.New("client has no target balance configured")
	ErrInvalidRateConfig    = errors.New("configured session rate must be positive")
)

// TransientError wraps a storage conflict that survived all retries. The
// operation left no partial state and is safe to re-invoke.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage conflict, safe to retry: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may safely retry the whole operation.
func IsRetryable(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// Postgres error codes that indicate a retryable conflict between
// concurrent transactions.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
)

func isSerializationConflict(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}
