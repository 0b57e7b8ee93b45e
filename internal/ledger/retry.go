package ledger

import (
	"context"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// runWithRetry executes fn, transparently retrying on serialization
// failures, deadlocks and lock timeouts with exponential backoff and jitter.
// Once retries are exhausted the conflict is surfaced as a TransientError;
// non-conflict errors pass through untouched.
func runWithRetry[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	policy := retrypolicy.NewBuilder[T]().
		WithBackoff(e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay).
		WithMaxRetries(e.cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool {
			return isSerializationConflict(err)
		}).
		ReturnLastFailure().
		Build()

	result, err := failsafe.With[T](policy).WithContext(ctx).Get(fn)
	if err != nil && isSerializationConflict(err) {
		return result, &TransientError{Err: err}
	}
	return result, err
}
