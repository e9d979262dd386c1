package executor

import (
	"context"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	failures int
	calls    int
	lastData []byte
}

func (f *fakeSender) Send(ctx context.Context, action *Action) (common.Hash, error) {
	f.calls++
	f.lastData = action.Data
	if f.calls <= f.failures {
		return common.Hash{}, errors.New("rpc unavailable")
	}
	return common.HexToHash("0x7777"), nil
}

func newTestExecutor(t *testing.T, sender Sender, preconds map[string]Precondition) *Executor {
	t.Helper()
	e, err := New(
		path.Join(t.TempDir(), "executor.sqlite"),
		sender,
		preconds,
		[]string{"default"},
		3,
		time.Millisecond,
		time.Millisecond,
	)
	require.NoError(t, err)
	return e
}

func testAction(id string) *Action {
	return &Action{
		ID:          id,
		Kind:        "challenge",
		ChainID:     1,
		To:          common.HexToAddress("0xb71d6e"),
		Data:        []byte{0x01, 0x02},
		SignerGroup: "default",
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	e := newTestExecutor(t, &fakeSender{}, nil)
	ctx := context.Background()

	require.NoError(t, e.Enqueue(ctx, testAction("a1")))
	require.NoError(t, e.Enqueue(ctx, testAction("a1")))

	action, err := e.GetAction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, action.Status)

	_, err = e.GetAction(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProcessActionSucceeds(t *testing.T) {
	sender := &fakeSender{}
	e := newTestExecutor(t, sender, nil)
	ctx := context.Background()

	require.NoError(t, e.Enqueue(ctx, testAction("a1")))
	action, err := e.nextPending("default")
	require.NoError(t, err)
	require.NoError(t, e.processAction(ctx, e.logger, action))

	stored, err := e.GetAction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, stored.Status)
	require.Equal(t, common.HexToHash("0x7777"), stored.TxHash)
	require.Equal(t, []byte{0x01, 0x02}, sender.lastData)
}

func TestProcessActionRetriesThenSucceeds(t *testing.T) {
	sender := &fakeSender{failures: 2}
	e := newTestExecutor(t, sender, nil)
	ctx := context.Background()

	require.NoError(t, e.Enqueue(ctx, testAction("a1")))
	action, err := e.nextPending("default")
	require.NoError(t, err)
	require.NoError(t, e.processAction(ctx, e.logger, action))

	stored, err := e.GetAction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, stored.Status)
	require.Equal(t, 3, stored.Attempts)
}

func TestProcessActionFailsAfterMaxAttempts(t *testing.T) {
	sender := &fakeSender{failures: 10}
	e := newTestExecutor(t, sender, nil)
	ctx := context.Background()

	require.NoError(t, e.Enqueue(ctx, testAction("a1")))
	action, err := e.nextPending("default")
	require.NoError(t, err)

	err = e.processAction(ctx, e.logger, action)
	subErr := &SubmissionError{}
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, 3, subErr.Attempts)
	require.Equal(t, 3, sender.calls)

	stored, err := e.GetAction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, stored.Status)
	require.NotEmpty(t, stored.LastError)
}

func TestProcessActionNoopWhenPreconditionGone(t *testing.T) {
	sender := &fakeSender{}
	preconds := map[string]Precondition{
		"challenge": func(ctx context.Context, action *Action) (bool, error) {
			return false, nil
		},
	}
	e := newTestExecutor(t, sender, preconds)
	ctx := context.Background()

	require.NoError(t, e.Enqueue(ctx, testAction("a1")))
	action, err := e.nextPending("default")
	require.NoError(t, err)
	require.NoError(t, e.processAction(ctx, e.logger, action))

	stored, err := e.GetAction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusNoop, stored.Status)
	require.Zero(t, sender.calls)
}

func TestProcessActionStaysPendingOnPreconditionError(t *testing.T) {
	sender := &fakeSender{}
	preconds := map[string]Precondition{
		"challenge": func(ctx context.Context, action *Action) (bool, error) {
			return false, errors.New("rpc down")
		},
	}
	e := newTestExecutor(t, sender, preconds)
	ctx := context.Background()

	require.NoError(t, e.Enqueue(ctx, testAction("a1")))
	action, err := e.nextPending("default")
	require.NoError(t, err)
	require.NoError(t, e.processAction(ctx, e.logger, action))

	stored, err := e.GetAction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Zero(t, sender.calls)
}

func TestSubmissionBackOffGrows(t *testing.T) {
	e := &Executor{retryDelay: 100 * time.Millisecond}
	bo := e.submissionBackOff()

	first := bo.NextBackOff()
	require.GreaterOrEqual(t, first, 50*time.Millisecond)
	require.LessOrEqual(t, first, 150*time.Millisecond)

	var fourth time.Duration
	for i := 0; i < 3; i++ {
		fourth = bo.NextBackOff()
		require.NotEqual(t, backoff.Stop, fourth)
	}
	// 100ms * 1.5^3 randomized by +-50%: always above the first wait's range.
	require.Greater(t, fourth, first)
	require.GreaterOrEqual(t, fourth, 168*time.Millisecond)
	require.LessOrEqual(t, fourth, 507*time.Millisecond)
}

func TestNextPendingOrderAndGroups(t *testing.T) {
	e := newTestExecutor(t, &fakeSender{}, nil)
	ctx := context.Background()

	first := testAction("a1")
	second := testAction("a2")
	other := testAction("a3")
	other.SignerGroup = "other"

	require.NoError(t, e.Enqueue(ctx, first))
	require.NoError(t, e.Enqueue(ctx, second))
	require.NoError(t, e.Enqueue(ctx, other))

	// Oldest pending first; groups do not see each other's actions.
	action, err := e.nextPending("default")
	require.NoError(t, err)
	require.Equal(t, "a1", action.ID)

	action, err = e.nextPending("other")
	require.NoError(t, err)
	require.Equal(t, "a3", action.ID)

	_, err = e.nextPending("empty")
	require.ErrorIs(t, err, ErrNotFound)
}
