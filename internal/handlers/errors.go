package handlers

import (
	"errors"
	"net/http"

	"github.com/gavincwyant/traintrack/internal/ledger"
	bursarapi "github.com/gavincwyant/traintrack/pkg/api/bursar"
)

// respondError translates engine errors into HTTP status codes. Transient
// storage conflicts are flagged retryable so callers know to re-send the
// same request.
func respondError(err error) (int, bursarapi.ErrorResponse) {
	switch {
	case errors.Is(err, ledger.ErrInvalidCreditAmount),
		errors.Is(err, ledger.ErrInvalidBillingMode),
		errors.Is(err, ledger.ErrNotTopUpInvoice):
		return http.StatusBadRequest, bursarapi.ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrProfileNotFound),
		errors.Is(err, ledger.ErrSessionNotFound),
		errors.Is(err, ledger.ErrInvoiceNotFound):
		return http.StatusNotFound, bursarapi.ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrInvoiceAlreadyPaid),
		errors.Is(err, ledger.ErrInvoiceAlreadyCancelled):
		return http.StatusConflict, bursarapi.ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrMissingTargetBalance),
		errors.Is(err, ledger.ErrInvalidRateConfig):
		return http.StatusUnprocessableEntity, bursarapi.ErrorResponse{Error: err.Error()}
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable, bursarapi.ErrorResponse{
			Error:     "storage conflict, retry the request",
			Retryable: true,
		}
	}
	return http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "internal error"}
}
