package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryDelayGrowsExponentially(t *testing.T) {
	h := &RetryHandler{
		RetryAfterErrorPeriod:      100 * time.Millisecond,
		MaxRetryAttemptsAfterError: 10,
	}

	// The backoff jitters each interval by up to 50% around the exponential
	// base (multiplier 1.5), so assert ranges rather than exact values.
	first := h.delay(1)
	require.GreaterOrEqual(t, first, 50*time.Millisecond)
	require.LessOrEqual(t, first, 150*time.Millisecond)

	fourth := h.delay(4)
	require.GreaterOrEqual(t, fourth, 168*time.Millisecond)
	require.LessOrEqual(t, fourth, 507*time.Millisecond)

	require.Greater(t, fourth, first)
}

func TestRetryDelayIsCapped(t *testing.T) {
	h := &RetryHandler{
		RetryAfterErrorPeriod:      time.Minute,
		MaxRetryAttemptsAfterError: 100,
	}
	d := h.delay(50)
	require.LessOrEqual(t, d, maxRetryInterval+maxRetryInterval/2)
}

func TestRetryHandlerExhaustsBudget(t *testing.T) {
	h := &RetryHandler{
		RetryAfterErrorPeriod:      time.Millisecond,
		MaxRetryAttemptsAfterError: 3,
	}
	cause := errors.New("rpc down")

	require.NoError(t, h.Handle("getLogs", 1, cause))
	require.NoError(t, h.Handle("getLogs", 2, cause))

	err := h.Handle("getLogs", 3, cause)
	fetchErr := &FetchError{}
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 3, fetchErr.Attempts)
	require.ErrorIs(t, err, cause)
}
