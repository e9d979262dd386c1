package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hopnetwork/reconciler/bridge"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/transfersync"
)

// SourceReader is the view over a source chain syncer the engine needs.
type SourceReader interface {
	GetRootsCommittedBetween(ctx context.Context, fromTime, toTime uint64) ([]*transfersync.TransferRoot, error)
	GetRootTransferIDs(ctx context.Context, rootID ethCommon.Hash) ([]ethCommon.Hash, error)
	GetTransfer(ctx context.Context, transferID ethCommon.Hash) (*transfersync.Transfer, error)
}

// DestinationReader is the view over a destination chain syncer the engine
// needs.
type DestinationReader interface {
	GetBondedWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*transfersync.BondedWithdrawal, error)
	GetWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*transfersync.Withdrawal, error)
	GetSettlementsByRootHash(ctx context.Context, rootHash ethCommon.Hash) ([]*transfersync.Settlement, error)
	GetRootSet(ctx context.Context, rootID ethCommon.Hash) (*transfersync.RootSet, error)
}

// BridgeCaller resolves on-chain settlement state on a destination chain.
type BridgeCaller interface {
	GetTransferRoot(ctx context.Context, rootHash ethCommon.Hash, totalAmount *big.Int) (bridge.TransferRoot, error)
	// GetBondedWithdrawalAmount returns the outstanding bond a bonder holds for
	// a transfer, zero once the bond was settled.
	GetBondedWithdrawalAmount(ctx context.Context, bonder ethCommon.Address, transferID ethCommon.Hash) (*big.Int, error)
	// IsTransferIDSpent reports whether a transfer was withdrawn or bonded on
	// chain.
	IsTransferIDSpent(ctx context.Context, transferID ethCommon.Hash) (bool, error)
}

// TransferStatus classifies a covered transfer that has not been settled.
type TransferStatus string

const (
	// StatusWithdrawn: the recipient withdrew directly, nothing to settle.
	StatusWithdrawn TransferStatus = "withdrawn"
	// StatusBondedUnsettled: a bonder fronted the funds and was not repaid yet.
	StatusBondedUnsettled TransferStatus = "bonded-unsettled"
	// StatusNeverBonded: no bonder touched the transfer, it is waiting at the
	// destination.
	StatusNeverBonded TransferStatus = "never-bonded"
	// StatusSettled: the bond was repaid from the root.
	StatusSettled TransferStatus = "settled"
)

// TransferResult is the settlement state of one covered transfer. Bonder is
// set when a bond for the transfer was observed, nil otherwise.
type TransferResult struct {
	TransferID ethCommon.Hash     `json:"transferId"`
	Amount     *big.Int           `json:"amount"`
	Status     TransferStatus     `json:"status"`
	Bonder     *ethCommon.Address `json:"bonder,omitempty"`
}

// RootResult is the reconciliation outcome for one committed root.
type RootResult struct {
	SourceChainID      uint64           `json:"sourceChainId"`
	DestinationChainID uint64           `json:"destinationChainId"`
	RootID             ethCommon.Hash   `json:"rootId"`
	RootHash           ethCommon.Hash   `json:"rootHash"`
	TotalAmount        *big.Int         `json:"totalAmount"`
	CommittedAt        uint64           `json:"committedAt"`
	RootSetAt          uint64           `json:"rootSetAt"`
	AmountWithdrawn    *big.Int         `json:"amountWithdrawn"`
	SettledAmount      *big.Int         `json:"settledAmount"`
	Diff               *big.Int         `json:"diff"`
	UnbondedAmount     *big.Int         `json:"unbondedAmount"`
	Incomplete         bool             `json:"incomplete"`
	UnbondedOnly       bool             `json:"unbondedOnly"`
	Anomaly            bool             `json:"anomaly"`
	Transfers          []TransferResult `json:"transfers,omitempty"`
}

// Report is the outcome of one reconciliation run, roots ordered by commit
// time, most recent first.
type Report struct {
	From  time.Time    `json:"from"`
	To    time.Time    `json:"to"`
	Roots []RootResult `json:"roots"`

	TotalRoots      int `json:"totalRoots"`
	IncompleteRoots int `json:"incompleteRoots"`
}

// Chain bundles the per-chain handles the engine reads from. Bridge may be
// nil, in which case on-chain accounting falls back to event sums.
type Chain struct {
	Source      SourceReader
	Destination DestinationReader
	Bridge      BridgeCaller
}

// Engine reconciles committed transfer roots against the settlement state
// observed on their destination chains.
type Engine struct {
	chains     map[uint64]Chain
	minRootAge time.Duration
	log        *log.Logger
}

// NewEngine builds a reconciliation engine over the given chains. Roots
// committed less than minRootAge ago are reported but never flagged
// incomplete, settlement normally lags the commit.
func NewEngine(chains map[uint64]Chain, minRootAge time.Duration) *Engine {
	return &Engine{
		chains:     chains,
		minRootAge: minRootAge,
		log:        log.WithFields("module", "reconciler"),
	}
}

// Run reconciles every root committed inside [from, to] on every known
// source chain.
func (e *Engine) Run(ctx context.Context, from, to time.Time) (*Report, error) {
	report := &Report{
		From: from,
		To:   to,
	}
	for chainID, chain := range e.chains {
		if chain.Source == nil {
			continue
		}
		roots, err := chain.Source.GetRootsCommittedBetween(ctx, uint64(from.Unix()), uint64(to.Unix()))
		if err != nil {
			return nil, fmt.Errorf("reading roots committed on chain %d: %w", chainID, err)
		}
		for _, root := range roots {
			result, err := e.reconcileRoot(ctx, chainID, chain, root)
			if err != nil {
				return nil, err
			}
			report.Roots = append(report.Roots, *result)
		}
	}
	sort.Slice(report.Roots, func(i, j int) bool {
		return report.Roots[i].CommittedAt > report.Roots[j].CommittedAt
	})
	report.TotalRoots = len(report.Roots)
	for _, r := range report.Roots {
		if r.Incomplete {
			report.IncompleteRoots++
		}
	}
	return report, nil
}

func (e *Engine) reconcileRoot(
	ctx context.Context, sourceChainID uint64, source Chain, root *transfersync.TransferRoot,
) (*RootResult, error) {
	result := &RootResult{
		SourceChainID:      sourceChainID,
		DestinationChainID: root.DestinationChainID,
		RootID:             root.RootID,
		RootHash:           root.RootHash,
		TotalAmount:        root.TotalAmount,
		CommittedAt:        root.CommittedAt,
		AmountWithdrawn:    big.NewInt(0),
		SettledAmount:      big.NewInt(0),
		Diff:               big.NewInt(0),
		UnbondedAmount:     big.NewInt(0),
	}

	dest, ok := e.chains[root.DestinationChainID]
	if !ok || dest.Destination == nil {
		e.log.Warnf("no destination handle for chain %d, root %s reported without settlement state",
			root.DestinationChainID, root.RootHash)
		result.Diff = new(big.Int).Set(root.TotalAmount)
		return result, nil
	}

	if rs, err := dest.Destination.GetRootSet(ctx, root.RootID); err == nil {
		result.RootSetAt = rs.BlockTimestamp
	} else if !errors.Is(err, transfersync.ErrNotFound) {
		return nil, err
	}

	settlements, err := dest.Destination.GetSettlementsByRootHash(ctx, root.RootHash)
	if err != nil {
		return nil, err
	}
	settledIDs := make(map[ethCommon.Hash]bool)
	for _, s := range settlements {
		switch s.Kind {
		case transfersync.SettlementMulti:
			result.SettledAmount.Add(result.SettledAmount, s.Amount)
			for _, id := range s.TransferIDs {
				settledIDs[id] = true
			}
		case transfersync.SettlementSingle:
			settledIDs[s.TransferID] = true
			if bond, err := dest.Destination.GetBondedWithdrawal(ctx, s.TransferID); err == nil {
				result.SettledAmount.Add(result.SettledAmount, bond.Amount)
			} else if !errors.Is(err, transfersync.ErrNotFound) {
				return nil, err
			}
		}
	}

	// Per transfer breakdown from the rebuilt membership. Unknown membership
	// (sync started late) leaves the list empty.
	ids, err := source.Source.GetRootTransferIDs(ctx, root.RootID)
	if err != nil {
		return nil, err
	}
	withdrawnDirect := big.NewInt(0)
	for _, id := range ids {
		tr := TransferResult{TransferID: id, Amount: big.NewInt(0)}
		if transfer, err := source.Source.GetTransfer(ctx, id); err == nil {
			tr.Amount = transfer.Amount
		} else if !errors.Is(err, transfersync.ErrNotFound) {
			return nil, err
		}
		bond, err := dest.Destination.GetBondedWithdrawal(ctx, id)
		if err != nil && !errors.Is(err, transfersync.ErrNotFound) {
			return nil, err
		}
		if bond != nil {
			bonder := bond.Bonder
			tr.Bonder = &bonder
		}
		switch {
		case settledIDs[id]:
			tr.Status = StatusSettled
		default:
			w, err := dest.Destination.GetWithdrawal(ctx, id)
			if err != nil && !errors.Is(err, transfersync.ErrNotFound) {
				return nil, err
			}
			if w != nil {
				tr.Status = StatusWithdrawn
				withdrawnDirect.Add(withdrawnDirect, w.Amount)
				break
			}
			if bond != nil {
				tr.Status = StatusBondedUnsettled
				// A zero outstanding bond on chain means the settlement event
				// was missed, the bonder has already been repaid.
				if dest.Bridge != nil {
					outstanding, err := dest.Bridge.GetBondedWithdrawalAmount(ctx, bond.Bonder, id)
					if err != nil {
						e.log.Warnf("getBondedWithdrawalAmount(%s, %s) on chain %d failed: %v",
							bond.Bonder, id, root.DestinationChainID, err)
					} else if outstanding.Sign() == 0 {
						tr.Status = StatusSettled
					}
				}
				break
			}
			tr.Status = StatusNeverBonded
			// The spent flag catches withdrawals and bonds the sync missed.
			if dest.Bridge != nil {
				spent, err := dest.Bridge.IsTransferIDSpent(ctx, id)
				if err != nil {
					e.log.Warnf("isTransferIdSpent(%s) on chain %d failed: %v",
						id, root.DestinationChainID, err)
				} else if spent {
					tr.Status = StatusWithdrawn
				}
			}
			if tr.Status == StatusNeverBonded {
				result.UnbondedAmount.Add(result.UnbondedAmount, tr.Amount)
			}
		}
		result.Transfers = append(result.Transfers, tr)
	}

	// On-chain accounting wins over event sums: amountWithdrawn accumulates
	// settlements and direct withdrawals atomically with the contract state.
	onChainOK := false
	if dest.Bridge != nil {
		onChainRoot, err := dest.Bridge.GetTransferRoot(ctx, root.RootHash, root.TotalAmount)
		if err != nil {
			e.log.Warnf("getTransferRoot(%s) on chain %d failed, falling back to event sums: %v",
				root.RootHash, root.DestinationChainID, err)
		} else if onChainRoot.AmountWithdrawn != nil {
			result.AmountWithdrawn = onChainRoot.AmountWithdrawn
			onChainOK = true
		}
	}
	if !onChainOK {
		result.AmountWithdrawn = new(big.Int).Add(result.SettledAmount, withdrawnDirect)
	}

	result.Diff = new(big.Int).Sub(root.TotalAmount, result.AmountWithdrawn)
	if result.SettledAmount.Cmp(root.TotalAmount) > 0 {
		result.Anomaly = true
		e.log.Errorf("root %s settled amount %s exceeds committed total %s",
			root.RootHash, result.SettledAmount, root.TotalAmount)
	}

	result.Incomplete = result.Diff.Sign() > 0 &&
		(result.SettledAmount.Sign() == 0 || result.SettledAmount.Cmp(root.TotalAmount) != 0)

	// If the whole gap is transfers nobody bonded, there is nothing for a
	// bonder to settle yet. Reported, not flagged.
	if result.Incomplete && result.UnbondedAmount.Sign() > 0 && result.UnbondedAmount.Cmp(result.Diff) == 0 {
		result.Incomplete = false
		result.UnbondedOnly = true
	}

	// Fresh roots are expected to be unsettled.
	if result.Incomplete && e.minRootAge > 0 {
		age := time.Since(time.Unix(int64(root.CommittedAt), 0))
		if age < e.minRootAge {
			result.Incomplete = false
		}
	}

	return result, nil
}
