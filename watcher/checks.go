package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hopnetwork/reconciler/bridge"
	"github.com/hopnetwork/reconciler/executor"
	"github.com/hopnetwork/reconciler/notifier"
	"github.com/hopnetwork/reconciler/reconciler"
	"github.com/hopnetwork/reconciler/transfersync"
)

// ActionEnqueuer queues a remediation transaction. Enqueueing the same
// action ID twice is a no-op.
type ActionEnqueuer interface {
	Enqueue(ctx context.Context, action *executor.Action) error
}

// RootLookup finds a committed root on a source chain.
type RootLookup interface {
	GetRootByHash(ctx context.Context, rootHash ethCommon.Hash) (*transfersync.TransferRoot, error)
	GetRootTransferIDs(ctx context.Context, rootID ethCommon.Hash) ([]ethCommon.Hash, error)
}

// OriginReader reads root lifecycle events recorded on the origin chain.
type OriginReader interface {
	GetRootsBondedBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.RootBonded, error)
	GetRootBonded(ctx context.Context, rootHash ethCommon.Hash) (*transfersync.RootBonded, error)
	GetRootConfirmed(ctx context.Context, rootID ethCommon.Hash) (*transfersync.RootConfirmed, error)
	GetChallenge(ctx context.Context, rootID ethCommon.Hash) (*transfersync.RootChallenge, error)
}

// SourceWindowReader reads transfer activity on a source chain.
type SourceWindowReader interface {
	GetTransfersSentBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.Transfer, error)
	GetRootsCommittedBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.TransferRoot, error)
	GetUncommittedTransfers(ctx context.Context, destinationChainID uint64) ([]*transfersync.Transfer, error)
}

// DestinationStateReader reads settlement state on a destination chain.
type DestinationStateReader interface {
	GetBondedWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*transfersync.BondedWithdrawal, error)
	GetWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*transfersync.Withdrawal, error)
	GetSettlementForTransfer(ctx context.Context, transferID ethCommon.Hash) (*transfersync.Settlement, error)
}

// ReportRunner produces a reconciliation report for a time window.
type ReportRunner interface {
	Run(ctx context.Context, from, to time.Time) (*reconciler.Report, error)
}

// ChallengeCheck flags transfer root bonds on the origin chain whose root
// was never committed by any source chain. That is a fraudulent bond and
// must be challenged within the challenge period.
type ChallengeCheck struct {
	Origin        OriginReader
	Sources       map[uint64]RootLookup
	Enqueuer      ActionEnqueuer
	OriginChainID uint64
	OriginBridge  ethCommon.Address
	// Lookback bounds how far back bonds are inspected; MinAge gives the
	// source syncers time to observe the commit before a bond is suspect.
	Lookback time.Duration
	MinAge   time.Duration
}

func (c *ChallengeCheck) Name() string { return "challengeable-root" }

func (c *ChallengeCheck) Run(ctx context.Context) ([]notifier.Alert, error) {
	now := time.Now()
	from := uint64(now.Add(-c.Lookback).Unix())
	to := uint64(now.Add(-c.MinAge).Unix())
	bonds, err := c.Origin.GetRootsBondedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var alerts []notifier.Alert
	for _, bond := range bonds {
		committed := false
		for _, source := range c.Sources {
			if _, err := source.GetRootByHash(ctx, bond.RootHash); err == nil {
				committed = true
				break
			} else if !errors.Is(err, transfersync.ErrNotFound) {
				return nil, err
			}
		}
		if committed {
			continue
		}
		alerts = append(alerts, notifier.Alert{
			Severity: notifier.SeverityCritical,
			Subject:  bond.RootHash.Hex(),
			Message: fmt.Sprintf("transfer root bond for %s (amount %s) has no matching commit on any source chain",
				bond.RootHash, bond.Amount),
		})
		if c.Enqueuer == nil {
			continue
		}
		// The bond does not record which destination chain it claims, so a
		// challenge is queued per candidate; the executor precondition
		// no-ops the ones that do not apply.
		for chainID := range c.Sources {
			data, err := bridge.PackChallengeTransferRootBond(bond.RootHash, bond.Amount, chainID)
			if err != nil {
				return nil, err
			}
			err = c.Enqueuer.Enqueue(ctx, &executor.Action{
				ID:          fmt.Sprintf("challenge-%s-%d", bond.RootHash.Hex(), chainID),
				Kind:        "challenge",
				ChainID:     c.OriginChainID,
				To:          c.OriginBridge,
				Data:        data,
				SignerGroup: "challenger",
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return alerts, nil
}

// SettlementCheck runs the reconciliation engine over a sliding window and
// raises an alert per incomplete root. When the covered bonds can be
// attributed to a bonder, a settleBondedWithdrawals transaction is queued.
type SettlementCheck struct {
	Engine ReportRunner
	// Sources resolve root membership, which only the chain that committed
	// the root knows.
	Sources      map[uint64]RootLookup
	Destinations map[uint64]SettlementTarget
	Enqueuer     ActionEnqueuer
	Lookback     time.Duration
}

// SettlementTarget couples the destination bridge address with the state
// needed to build a settlement.
type SettlementTarget struct {
	BridgeAddr ethCommon.Address
	State      interface {
		GetSettlementsByRootHash(ctx context.Context, rootHash ethCommon.Hash) ([]*transfersync.Settlement, error)
	}
}

func (c *SettlementCheck) Name() string { return "incomplete-settlement" }

func (c *SettlementCheck) Run(ctx context.Context) ([]notifier.Alert, error) {
	now := time.Now()
	report, err := c.Engine.Run(ctx, now.Add(-c.Lookback), now)
	if err != nil {
		return nil, err
	}

	var alerts []notifier.Alert
	for _, root := range report.Roots {
		if root.Anomaly {
			alerts = append(alerts, notifier.Alert{
				Severity: notifier.SeverityCritical,
				ChainID:  root.DestinationChainID,
				Subject:  root.RootHash.Hex(),
				Message: fmt.Sprintf("settled amount %s exceeds committed total %s for root %s",
					root.SettledAmount, root.TotalAmount, root.RootHash),
			})
			continue
		}
		if !root.Incomplete {
			continue
		}
		alerts = append(alerts, notifier.Alert{
			Severity: notifier.SeverityWarning,
			ChainID:  root.DestinationChainID,
			Subject:  root.RootHash.Hex(),
			Message: fmt.Sprintf("root %s committed at %s is missing %s of %s",
				root.RootHash, time.Unix(int64(root.CommittedAt), 0).UTC().Format(time.RFC3339),
				root.Diff, root.TotalAmount),
		})
		if c.Enqueuer == nil {
			continue
		}
		if err := c.enqueueSettlement(ctx, root); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

func (c *SettlementCheck) enqueueSettlement(ctx context.Context, root reconciler.RootResult) error {
	target, ok := c.Destinations[root.DestinationChainID]
	source, sourceOK := c.Sources[root.SourceChainID]
	if !ok || !sourceOK || target.State == nil {
		return nil
	}
	ids, err := source.GetRootTransferIDs(ctx, root.RootID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		// Membership unknown, nothing to settle with.
		return nil
	}
	// The bonder is only knowable from prior settlements against the root.
	settlements, err := target.State.GetSettlementsByRootHash(ctx, root.RootHash)
	if err != nil {
		return err
	}
	if len(settlements) == 0 {
		return nil
	}
	bonder := settlements[0].Bonder
	data, err := bridge.PackSettleBondedWithdrawals(bonder, ids, root.TotalAmount)
	if err != nil {
		return err
	}
	return c.Enqueuer.Enqueue(ctx, &executor.Action{
		ID:          fmt.Sprintf("settle-%s-%d", root.RootID.Hex(), root.DestinationChainID),
		Kind:        "settle",
		ChainID:     root.DestinationChainID,
		To:          target.BridgeAddr,
		Data:        data,
		SignerGroup: "settler",
	})
}

// BondTimelinessCheck flags transfers that sat at the destination long
// enough without a bonder fronting the funds or the recipient withdrawing.
type BondTimelinessCheck struct {
	Sources      map[uint64]SourceWindowReader
	Destinations map[uint64]DestinationStateReader
	Lookback     time.Duration
	MinAge       time.Duration
}

func (c *BondTimelinessCheck) Name() string { return "unbonded-transfer" }

func (c *BondTimelinessCheck) Run(ctx context.Context) ([]notifier.Alert, error) {
	now := time.Now()
	from := uint64(now.Add(-c.Lookback).Unix())
	to := uint64(now.Add(-c.MinAge).Unix())

	var alerts []notifier.Alert
	for chainID, source := range c.Sources {
		transfers, err := source.GetTransfersSentBetween(ctx, from, to)
		if err != nil {
			return nil, err
		}
		for _, transfer := range transfers {
			dest, ok := c.Destinations[transfer.DestinationChainID]
			if !ok {
				continue
			}
			handled, err := transferHandled(ctx, dest, transfer.TransferID)
			if err != nil {
				return nil, err
			}
			if handled {
				continue
			}
			alerts = append(alerts, notifier.Alert{
				Severity: notifier.SeverityWarning,
				ChainID:  chainID,
				Subject:  transfer.TransferID.Hex(),
				Message: fmt.Sprintf("transfer %s (amount %s) to chain %d sent at %s is neither bonded nor withdrawn",
					transfer.TransferID, transfer.Amount, transfer.DestinationChainID,
					time.Unix(int64(transfer.BlockTimestamp), 0).UTC().Format(time.RFC3339)),
			})
		}
	}
	return alerts, nil
}

func transferHandled(ctx context.Context, dest DestinationStateReader, transferID ethCommon.Hash) (bool, error) {
	if _, err := dest.GetBondedWithdrawal(ctx, transferID); err == nil {
		return true, nil
	} else if !errors.Is(err, transfersync.ErrNotFound) {
		return false, err
	}
	if _, err := dest.GetWithdrawal(ctx, transferID); err == nil {
		return true, nil
	} else if !errors.Is(err, transfersync.ErrNotFound) {
		return false, err
	}
	if _, err := dest.GetSettlementForTransfer(ctx, transferID); err == nil {
		return true, nil
	} else if !errors.Is(err, transfersync.ErrNotFound) {
		return false, err
	}
	return false, nil
}

// UnbondedRootCheck flags committed roots that were neither bonded nor
// confirmed on the origin chain within the expected propagation time.
type UnbondedRootCheck struct {
	Origin   OriginReader
	Sources  map[uint64]SourceWindowReader
	Lookback time.Duration
	MinAge   time.Duration
}

func (c *UnbondedRootCheck) Name() string { return "unbonded-root" }

func (c *UnbondedRootCheck) Run(ctx context.Context) ([]notifier.Alert, error) {
	now := time.Now()
	from := uint64(now.Add(-c.Lookback).Unix())
	to := uint64(now.Add(-c.MinAge).Unix())

	var alerts []notifier.Alert
	for chainID, source := range c.Sources {
		roots, err := source.GetRootsCommittedBetween(ctx, from, to)
		if err != nil {
			return nil, err
		}
		for _, root := range roots {
			if _, err := c.Origin.GetRootBonded(ctx, root.RootHash); err == nil {
				continue
			} else if !errors.Is(err, transfersync.ErrNotFound) {
				return nil, err
			}
			if _, err := c.Origin.GetRootConfirmed(ctx, root.RootID); err == nil {
				continue
			} else if !errors.Is(err, transfersync.ErrNotFound) {
				return nil, err
			}
			alerts = append(alerts, notifier.Alert{
				Severity: notifier.SeverityWarning,
				ChainID:  chainID,
				Subject:  root.RootHash.Hex(),
				Message: fmt.Sprintf("root %s committed at %s was neither bonded nor confirmed on the origin chain",
					root.RootHash, time.Unix(int64(root.CommittedAt), 0).UTC().Format(time.RFC3339)),
			})
		}
	}
	return alerts, nil
}

// CommitThresholdCheck flags routes where pending transfers pile up without
// a commit, by count or by age of the oldest pending transfer.
type CommitThresholdCheck struct {
	Sources  map[uint64]SourceWindowReader
	ChainIDs []uint64

	MaxPendingTransfers int
	MaxPendingAge       time.Duration
}

func (c *CommitThresholdCheck) Name() string { return "commit-overdue" }

func (c *CommitThresholdCheck) Run(ctx context.Context) ([]notifier.Alert, error) {
	now := time.Now()
	var alerts []notifier.Alert
	for chainID, source := range c.Sources {
		for _, destChainID := range c.ChainIDs {
			if destChainID == chainID {
				continue
			}
			pending, err := source.GetUncommittedTransfers(ctx, destChainID)
			if err != nil {
				return nil, err
			}
			if len(pending) == 0 {
				continue
			}
			oldestAge := now.Sub(time.Unix(int64(pending[0].BlockTimestamp), 0))
			tooMany := c.MaxPendingTransfers > 0 && len(pending) >= c.MaxPendingTransfers
			tooOld := c.MaxPendingAge > 0 && oldestAge >= c.MaxPendingAge
			if !tooMany && !tooOld {
				continue
			}
			alerts = append(alerts, notifier.Alert{
				Severity: notifier.SeverityWarning,
				ChainID:  chainID,
				Subject:  fmt.Sprintf("%d->%d", chainID, destChainID),
				Message: fmt.Sprintf("%d transfers pending commit to chain %d, oldest for %s",
					len(pending), destChainID, oldestAge.Round(time.Second)),
			})
		}
	}
	return alerts, nil
}
