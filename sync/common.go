package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrInconsistentState = errors.New("state is inconsistent, try again later once the state is consolidated")

// maxRetryInterval caps the exponential growth of the retry delay.
const maxRetryInterval = 2 * time.Minute

// FetchError wraps the terminal error of a log-fetch operation after the
// retry budget is exhausted. Callers never receive partial results together
// with it.
type FetchError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RetryHandler implements the shared bounded-retry policy: exponential
// backoff between attempts, capped at maxRetryInterval, giving up after the
// configured budget.
type RetryHandler struct {
	RetryAfterErrorPeriod      time.Duration
	MaxRetryAttemptsAfterError int
}

// Handle sleeps before the next attempt, or returns a FetchError wrapping
// err once attempts reaches the configured maximum.
func (h *RetryHandler) Handle(funcName string, attempts int, err error) error {
	if h.MaxRetryAttemptsAfterError > 0 && attempts >= h.MaxRetryAttemptsAfterError {
		return &FetchError{
			Op:       funcName,
			Attempts: attempts,
			Err:      err,
		}
	}
	time.Sleep(h.delay(attempts))
	return nil
}

// delay is the backoff for the given attempt count, starting at
// RetryAfterErrorPeriod and growing exponentially with jitter.
func (h *RetryHandler) delay(attempts int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.RetryAfterErrorPeriod
	bo.MaxInterval = maxRetryInterval
	bo.MaxElapsedTime = 0
	var d time.Duration
	for i := 0; i < attempts; i++ {
		d = bo.NextBackOff()
	}
	return d
}
