package watcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hopnetwork/reconciler/executor"
	"github.com/hopnetwork/reconciler/notifier"
	"github.com/hopnetwork/reconciler/reconciler"
	"github.com/hopnetwork/reconciler/transfersync"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, alert notifier.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	actions []*executor.Action
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, action *executor.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

type fakeOrigin struct {
	bonds     []*transfersync.RootBonded
	bonded    map[ethCommon.Hash]*transfersync.RootBonded
	confirmed map[ethCommon.Hash]*transfersync.RootConfirmed
}

func (f *fakeOrigin) GetRootsBondedBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.RootBonded, error) {
	return f.bonds, nil
}

func (f *fakeOrigin) GetRootBonded(ctx context.Context, rootHash ethCommon.Hash) (*transfersync.RootBonded, error) {
	b, ok := f.bonded[rootHash]
	if !ok {
		return nil, transfersync.ErrNotFound
	}
	return b, nil
}

func (f *fakeOrigin) GetRootConfirmed(ctx context.Context, rootID ethCommon.Hash) (*transfersync.RootConfirmed, error) {
	c, ok := f.confirmed[rootID]
	if !ok {
		return nil, transfersync.ErrNotFound
	}
	return c, nil
}

func (f *fakeOrigin) GetChallenge(ctx context.Context, rootID ethCommon.Hash) (*transfersync.RootChallenge, error) {
	return nil, transfersync.ErrNotFound
}

type fakeRootLookup struct {
	roots      map[ethCommon.Hash]*transfersync.TransferRoot
	membership map[ethCommon.Hash][]ethCommon.Hash
}

func (f *fakeRootLookup) GetRootByHash(ctx context.Context, rootHash ethCommon.Hash) (*transfersync.TransferRoot, error) {
	r, ok := f.roots[rootHash]
	if !ok {
		return nil, transfersync.ErrNotFound
	}
	return r, nil
}

func (f *fakeRootLookup) GetRootTransferIDs(ctx context.Context, rootID ethCommon.Hash) ([]ethCommon.Hash, error) {
	return f.membership[rootID], nil
}

func TestChallengeCheckFlagsUncommittedBond(t *testing.T) {
	badRoot := ethCommon.HexToHash("0xbadd")
	goodRoot := ethCommon.HexToHash("0x900d")

	origin := &fakeOrigin{
		bonds: []*transfersync.RootBonded{
			{RootHash: badRoot, Amount: big.NewInt(500)},
			{RootHash: goodRoot, Amount: big.NewInt(100)},
		},
	}
	sources := map[uint64]RootLookup{
		10: &fakeRootLookup{roots: map[ethCommon.Hash]*transfersync.TransferRoot{
			goodRoot: {RootHash: goodRoot},
		}},
	}
	enq := &fakeEnqueuer{}
	check := &ChallengeCheck{
		Origin:        origin,
		Sources:       sources,
		Enqueuer:      enq,
		OriginChainID: 1,
		OriginBridge:  ethCommon.HexToAddress("0x11"),
		Lookback:      24 * time.Hour,
	}

	alerts, err := check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, notifier.SeverityCritical, alerts[0].Severity)
	require.Equal(t, badRoot.Hex(), alerts[0].Subject)

	require.Len(t, enq.actions, 1)
	require.Equal(t, "challenge", enq.actions[0].Kind)
	require.Equal(t, uint64(1), enq.actions[0].ChainID)
	require.NotEmpty(t, enq.actions[0].Data)

	// Second pass raises the alert again but the executor dedupes on ID.
	alerts, err = check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, enq.actions[0].ID, enq.actions[1].ID)
}

type fakeEngine struct {
	report *reconciler.Report
	err    error
}

func (f *fakeEngine) Run(ctx context.Context, from, to time.Time) (*reconciler.Report, error) {
	return f.report, f.err
}

type fakeSettlementState struct {
	settlements map[ethCommon.Hash][]*transfersync.Settlement
}

func (f *fakeSettlementState) GetSettlementsByRootHash(ctx context.Context, rootHash ethCommon.Hash) ([]*transfersync.Settlement, error) {
	return f.settlements[rootHash], nil
}

func TestSettlementCheckAlertsAndEnqueues(t *testing.T) {
	rootHash := ethCommon.HexToHash("0x1111")
	rootID := ethCommon.HexToHash("0x2222")
	bonder := ethCommon.HexToAddress("0xb0bd")

	engine := &fakeEngine{report: &reconciler.Report{
		Roots: []reconciler.RootResult{{
			SourceChainID:      1,
			DestinationChainID: 42161,
			RootID:             rootID,
			RootHash:           rootHash,
			TotalAmount:        big.NewInt(300),
			Diff:               big.NewInt(200),
			SettledAmount:      big.NewInt(100),
			Incomplete:         true,
		}},
	}}
	enq := &fakeEnqueuer{}
	check := &SettlementCheck{
		Engine: engine,
		Sources: map[uint64]RootLookup{
			1: &fakeRootLookup{membership: map[ethCommon.Hash][]ethCommon.Hash{
				rootID: {ethCommon.HexToHash("0x0a"), ethCommon.HexToHash("0x0b")},
			}},
		},
		Destinations: map[uint64]SettlementTarget{
			42161: {
				BridgeAddr: ethCommon.HexToAddress("0x22"),
				State: &fakeSettlementState{settlements: map[ethCommon.Hash][]*transfersync.Settlement{
					rootHash: {{Kind: transfersync.SettlementMulti, Bonder: bonder, RootHash: rootHash, Amount: big.NewInt(100)}},
				}},
			},
		},
		Enqueuer: enq,
		Lookback: 24 * time.Hour,
	}

	alerts, err := check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, notifier.SeverityWarning, alerts[0].Severity)

	require.Len(t, enq.actions, 1)
	require.Equal(t, "settle", enq.actions[0].Kind)
	require.Equal(t, uint64(42161), enq.actions[0].ChainID)
}

func TestSettlementCheckSkipsEnqueueWithoutMembership(t *testing.T) {
	rootHash := ethCommon.HexToHash("0x1111")
	engine := &fakeEngine{report: &reconciler.Report{
		Roots: []reconciler.RootResult{{
			SourceChainID:      1,
			DestinationChainID: 42161,
			RootHash:           rootHash,
			RootID:             ethCommon.HexToHash("0x2222"),
			TotalAmount:        big.NewInt(300),
			Diff:               big.NewInt(300),
			SettledAmount:      big.NewInt(0),
			Incomplete:         true,
		}},
	}}
	enq := &fakeEnqueuer{}
	check := &SettlementCheck{
		Engine: engine,
		Sources: map[uint64]RootLookup{
			1: &fakeRootLookup{membership: map[ethCommon.Hash][]ethCommon.Hash{}},
		},
		Destinations: map[uint64]SettlementTarget{
			42161: {
				State: &fakeSettlementState{},
			},
		},
		Enqueuer: enq,
		Lookback: 24 * time.Hour,
	}

	alerts, err := check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Empty(t, enq.actions)
}

type fakeSourceWindow struct {
	transfers   []*transfersync.Transfer
	roots       []*transfersync.TransferRoot
	uncommitted map[uint64][]*transfersync.Transfer
}

func (f *fakeSourceWindow) GetTransfersSentBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.Transfer, error) {
	return f.transfers, nil
}

func (f *fakeSourceWindow) GetRootsCommittedBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.TransferRoot, error) {
	return f.roots, nil
}

func (f *fakeSourceWindow) GetUncommittedTransfers(ctx context.Context, destinationChainID uint64) ([]*transfersync.Transfer, error) {
	return f.uncommitted[destinationChainID], nil
}

type fakeDestState struct {
	bonds       map[ethCommon.Hash]*transfersync.BondedWithdrawal
	withdrawals map[ethCommon.Hash]*transfersync.Withdrawal
	settled     map[ethCommon.Hash]*transfersync.Settlement
}

func (f *fakeDestState) GetBondedWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*transfersync.BondedWithdrawal, error) {
	b, ok := f.bonds[transferID]
	if !ok {
		return nil, transfersync.ErrNotFound
	}
	return b, nil
}

func (f *fakeDestState) GetWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*transfersync.Withdrawal, error) {
	w, ok := f.withdrawals[transferID]
	if !ok {
		return nil, transfersync.ErrNotFound
	}
	return w, nil
}

func (f *fakeDestState) GetSettlementForTransfer(ctx context.Context, transferID ethCommon.Hash) (*transfersync.Settlement, error) {
	s, ok := f.settled[transferID]
	if !ok {
		return nil, transfersync.ErrNotFound
	}
	return s, nil
}

func TestBondTimelinessCheck(t *testing.T) {
	bondedID := ethCommon.HexToHash("0x0a")
	staleID := ethCommon.HexToHash("0x0b")

	sources := map[uint64]SourceWindowReader{
		1: &fakeSourceWindow{transfers: []*transfersync.Transfer{
			{TransferID: bondedID, DestinationChainID: 42161, Amount: big.NewInt(100), BlockTimestamp: 1000},
			{TransferID: staleID, DestinationChainID: 42161, Amount: big.NewInt(200), BlockTimestamp: 1000},
		}},
	}
	dests := map[uint64]DestinationStateReader{
		42161: &fakeDestState{
			bonds: map[ethCommon.Hash]*transfersync.BondedWithdrawal{
				bondedID: {TransferID: bondedID, Amount: big.NewInt(100)},
			},
		},
	}

	check := &BondTimelinessCheck{
		Sources:      sources,
		Destinations: dests,
		Lookback:     24 * time.Hour,
		MinAge:       time.Hour,
	}
	alerts, err := check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, staleID.Hex(), alerts[0].Subject)
}

func TestUnbondedRootCheck(t *testing.T) {
	bondedRoot := ethCommon.HexToHash("0x0a")
	staleRoot := ethCommon.HexToHash("0x0b")
	staleRootID := ethCommon.HexToHash("0x0c")

	sources := map[uint64]SourceWindowReader{
		1: &fakeSourceWindow{roots: []*transfersync.TransferRoot{
			{RootHash: bondedRoot, RootID: ethCommon.HexToHash("0x0d"), CommittedAt: 1000},
			{RootHash: staleRoot, RootID: staleRootID, CommittedAt: 1000},
		}},
	}
	origin := &fakeOrigin{
		bonded: map[ethCommon.Hash]*transfersync.RootBonded{
			bondedRoot: {RootHash: bondedRoot},
		},
		confirmed: map[ethCommon.Hash]*transfersync.RootConfirmed{},
	}

	check := &UnbondedRootCheck{
		Origin:   origin,
		Sources:  sources,
		Lookback: 24 * time.Hour,
		MinAge:   time.Hour,
	}
	alerts, err := check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, staleRoot.Hex(), alerts[0].Subject)
}

func TestCommitThresholdCheck(t *testing.T) {
	old := uint64(time.Now().Add(-2 * time.Hour).Unix())
	sources := map[uint64]SourceWindowReader{
		1: &fakeSourceWindow{uncommitted: map[uint64][]*transfersync.Transfer{
			42161: {
				{TransferID: ethCommon.HexToHash("0x0a"), BlockTimestamp: old},
			},
			10: {
				{TransferID: ethCommon.HexToHash("0x0b"), BlockTimestamp: uint64(time.Now().Unix())},
			},
		}},
	}

	check := &CommitThresholdCheck{
		Sources:             sources,
		ChainIDs:            []uint64{1, 10, 42161},
		MaxPendingTransfers: 100,
		MaxPendingAge:       time.Hour,
	}
	alerts, err := check.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "1->42161", alerts[0].Subject)
}

type countingCheck struct {
	name    string
	runs    atomic.Int32
	block   chan struct{}
	alerts  []notifier.Alert
	failErr error
}

func (c *countingCheck) Name() string { return c.name }

func (c *countingCheck) Run(ctx context.Context) ([]notifier.Alert, error) {
	c.runs.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
		}
	}
	return c.alerts, c.failErr
}

func TestSchedulerDoesNotOverlapChecks(t *testing.T) {
	blocked := &countingCheck{name: "slow", block: make(chan struct{})}
	n := &fakeNotifier{}
	s := NewScheduler([]Check{blocked}, n, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Several ticks pass while the first run is still blocked.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), blocked.runs.Load())

	close(blocked.block)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSchedulerIsolatesFailuresAndNotifies(t *testing.T) {
	failing := &countingCheck{name: "failing", failErr: errors.New("boom")}
	healthy := &countingCheck{name: "healthy", alerts: []notifier.Alert{{Subject: "0x01", Message: "finding"}}}
	n := &fakeNotifier{}
	s := NewScheduler([]Check{failing, healthy}, n, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return failing.runs.Load() >= 2 && healthy.runs.Load() >= 2 && n.count() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, alert := range n.alerts {
		// The scheduler stamps the check name on alerts that lack one.
		require.Equal(t, "healthy", alert.Check)
	}
}
