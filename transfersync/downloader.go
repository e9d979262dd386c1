package transfersync

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hopnetwork/reconciler/bridge"
	"github.com/hopnetwork/reconciler/etherman"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/sync"
)

type EthClienter interface {
	etherman.EthClienter
}

// EventMeta locates an event inside its block. TxIndex breaks ties when a
// commit and the transfers it covers land in the same block.
type EventMeta struct {
	TxHash   common.Hash
	TxIndex  uint64
	LogIndex uint64
}

func metaOf(l types.Log) EventMeta {
	return EventMeta{
		TxHash:   l.TxHash,
		TxIndex:  uint64(l.TxIndex),
		LogIndex: uint64(l.Index),
	}
}

// Event is the union of bridge events a single chain can emit. Exactly one
// pointer is non nil.
type Event struct {
	Meta EventMeta

	TransferSent               *bridge.TransferSent
	TransfersCommitted         *bridge.TransfersCommitted
	WithdrawalBonded           *bridge.WithdrawalBonded
	WithdrawalBondSettled      *bridge.WithdrawalBondSettled
	MultipleWithdrawalsSettled *bridge.MultipleWithdrawalsSettled
	Withdrew                   *bridge.Withdrew
	TransferRootSet            *bridge.TransferRootSet
	TransferRootConfirmed      *bridge.TransferRootConfirmed
	TransferRootBonded         *bridge.TransferRootBonded
	TransferBondChallenged     *bridge.TransferBondChallenged

	// Bonder is the sender of the bondWithdrawal transaction behind a
	// WithdrawalBonded event. The event itself does not carry it, so it is
	// recovered from the transaction; zero when the lookup failed.
	Bonder common.Address

	// SettledTransferIDs is the leaf ordered transfer id list decoded from
	// the settleBondedWithdrawals calldata of a MultipleWithdrawalsSettled
	// event. Nil when the calldata could not be decoded.
	SettledTransferIDs []common.Hash
}

func buildAppender(client EthClienter, logger *log.Logger, rpcTimeout time.Duration) (sync.LogAppenderMap, error) {
	if rpcTimeout == 0 {
		rpcTimeout = sync.DefaultRPCTimeout
	}
	appender := make(sync.LogAppenderMap)

	appender[bridge.TransferSentSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseTransferSent(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as TransferSent: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), TransferSent: e})
		return nil
	}

	appender[bridge.TransfersCommittedSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseTransfersCommitted(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as TransfersCommitted: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), TransfersCommitted: e})
		return nil
	}

	appender[bridge.WithdrawalBondedSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseWithdrawalBonded(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as WithdrawalBonded: %w", l, err)
		}
		event := Event{Meta: metaOf(l), WithdrawalBonded: e}
		bonder, err := transactionSender(ctx, client, l.TxHash, rpcTimeout)
		if err != nil {
			// The bond is still recorded, only the bonder attribution is lost.
			logger.Warnf("could not recover the bonder of tx %s: %v", l.TxHash, err)
		} else {
			event.Bonder = bonder
		}
		b.Events = append(b.Events, event)
		return nil
	}

	appender[bridge.WithdrawalBondSettledSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseWithdrawalBondSettled(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as WithdrawalBondSettled: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), WithdrawalBondSettled: e})
		return nil
	}

	appender[bridge.MultipleWithdrawalsSettledSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseMultipleWithdrawalsSettled(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as MultipleWithdrawalsSettled: %w", l, err)
		}
		event := Event{Meta: metaOf(l), MultipleWithdrawalsSettled: e}
		ids, err := settledTransferIDs(ctx, client, l.TxHash, rpcTimeout)
		if err != nil {
			// The settlement itself is still recorded, only the per
			// transfer breakdown is lost.
			logger.Warnf("could not decode settled transfer ids from tx %s: %v", l.TxHash, err)
		} else {
			event.SettledTransferIDs = ids
		}
		b.Events = append(b.Events, event)
		return nil
	}

	appender[bridge.WithdrewSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseWithdrew(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as Withdrew: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), Withdrew: e})
		return nil
	}

	appender[bridge.TransferRootSetSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseTransferRootSet(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as TransferRootSet: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), TransferRootSet: e})
		return nil
	}

	appender[bridge.TransferRootConfirmedSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseTransferRootConfirmed(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as TransferRootConfirmed: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), TransferRootConfirmed: e})
		return nil
	}

	appender[bridge.TransferRootBondedSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseTransferRootBonded(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as TransferRootBonded: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), TransferRootBonded: e})
		return nil
	}

	appender[bridge.TransferBondChallengedSig] = func(ctx context.Context, b *sync.EVMBlock, l types.Log) error {
		e, err := bridge.ParseTransferBondChallenged(l)
		if err != nil {
			return fmt.Errorf("error parsing log %+v as TransferBondChallenged: %w", l, err)
		}
		b.Events = append(b.Events, Event{Meta: metaOf(l), TransferBondChallenged: e})
		return nil
	}

	return appender, nil
}

func settledTransferIDs(
	ctx context.Context, client EthClienter, txHash common.Hash, timeout time.Duration,
) ([]common.Hash, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tx, _, err := client.TransactionByHash(callCtx, txHash)
	if err != nil {
		return nil, err
	}
	call, err := bridge.DecodeSettleBondedWithdrawals(tx.Data())
	if err != nil {
		return nil, err
	}
	return call.TransferIDs, nil
}

// transactionSender recovers the from address of a transaction from its
// signature.
func transactionSender(
	ctx context.Context, client EthClienter, txHash common.Hash, timeout time.Duration,
) (common.Address, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tx, _, err := client.TransactionByHash(callCtx, txHash)
	if err != nil {
		return common.Address{}, err
	}
	return types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
}
