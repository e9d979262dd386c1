package transfersync

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hopnetwork/reconciler/etherman"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/sync"
)

const (
	downloadBufferSize = 1000
)

// TransferSync follows the bridge contract of one chain and mirrors its
// transfer lifecycle events into a local sqlite DB. Every chain runs the
// same bridge interface, so one syncer type serves source, destination and
// origin roles; a chain simply never emits the events of roles it does not
// play.
type TransferSync struct {
	processor *processor
	driver    *sync.EVMDriver

	chainID       uint64
	bridgeAddr    common.Address
	blockFinality etherman.BlockNumberFinality
}

func New(
	ctx context.Context,
	dbPath string,
	chainID uint64,
	bridgeAddr common.Address,
	syncBlockChunkSize uint64,
	blockFinalityType etherman.BlockNumberFinality,
	ethClient EthClienter,
	initialBlock uint64,
	waitForNewBlocksPeriod time.Duration,
	retryAfterErrorPeriod time.Duration,
	maxRetryAttemptsAfterError int,
	rpcTimeout time.Duration,
) (*TransferSync, error) {
	syncerID := fmt.Sprintf("transfersync-%d", chainID)
	logger := log.WithFields("transfer-syncer", syncerID)
	processor, err := newProcessor(dbPath, logger)
	if err != nil {
		return nil, err
	}

	lastProcessedBlock, err := processor.GetLastProcessedBlock(ctx)
	if err != nil {
		return nil, err
	}
	if lastProcessedBlock < initialBlock {
		err = processor.ProcessBlock(ctx, sync.Block{
			Num: initialBlock,
		})
		if err != nil {
			return nil, err
		}
	}

	rh := &sync.RetryHandler{
		MaxRetryAttemptsAfterError: maxRetryAttemptsAfterError,
		RetryAfterErrorPeriod:      retryAfterErrorPeriod,
	}

	appender, err := buildAppender(ethClient, logger, rpcTimeout)
	if err != nil {
		return nil, err
	}
	downloader, err := sync.NewEVMDownloader(
		syncerID,
		ethClient,
		syncBlockChunkSize,
		blockFinalityType,
		waitForNewBlocksPeriod,
		appender,
		[]common.Address{bridgeAddr},
		rh,
		rpcTimeout,
	)
	if err != nil {
		return nil, err
	}

	driver, err := sync.NewEVMDriver(processor, downloader, syncerID, downloadBufferSize, rh)
	if err != nil {
		return nil, err
	}
	logger.Infof("TransferSync created: dbPath: %s initialBlock: %d bridgeAddr: %s "+
		"syncBlockChunkSize: %d blockFinalityType: %s waitForNewBlocksPeriod: %s",
		dbPath, initialBlock, bridgeAddr.String(),
		syncBlockChunkSize, blockFinalityType, waitForNewBlocksPeriod.String())

	return &TransferSync{
		processor:     processor,
		driver:        driver,
		chainID:       chainID,
		bridgeAddr:    bridgeAddr,
		blockFinality: blockFinalityType,
	}, nil
}

// Start runs the synchronization loop until ctx is cancelled or the syncer
// hits an unrecoverable error.
func (s *TransferSync) Start(ctx context.Context) error {
	return s.driver.Sync(ctx)
}

func (s *TransferSync) ChainID() uint64 {
	return s.chainID
}

func (s *TransferSync) BridgeAddr() common.Address {
	return s.bridgeAddr
}

func (s *TransferSync) BlockFinality() etherman.BlockNumberFinality {
	return s.blockFinality
}

func (s *TransferSync) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	if s.processor.isHalted() {
		return 0, sync.ErrInconsistentState
	}
	return s.processor.GetLastProcessedBlock(ctx)
}

func (s *TransferSync) GetTransfer(ctx context.Context, transferID common.Hash) (*Transfer, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getTransfer(ctx, transferID)
}

func (s *TransferSync) GetTransfersSentBetween(ctx context.Context, fromTime, toTime uint64) ([]*Transfer, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getTransfersSentBetween(ctx, fromTime, toTime)
}

func (s *TransferSync) GetRootsCommittedBetween(ctx context.Context, fromTime, toTime uint64) ([]*TransferRoot, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootsCommittedBetween(ctx, fromTime, toTime)
}

func (s *TransferSync) GetRoot(ctx context.Context, rootID common.Hash) (*TransferRoot, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRoot(ctx, rootID)
}

func (s *TransferSync) GetRootByHash(ctx context.Context, rootHash common.Hash) (*TransferRoot, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootByHash(ctx, rootHash)
}

// GetRootTransferIDs returns the transfer ids covered by the root in Merkle
// leaf order.
func (s *TransferSync) GetRootTransferIDs(ctx context.Context, rootID common.Hash) ([]common.Hash, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootTransferIDs(ctx, rootID)
}

func (s *TransferSync) GetUncommittedTransfers(ctx context.Context, destinationChainID uint64) ([]*Transfer, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getUncommittedTransfers(ctx, destinationChainID)
}

func (s *TransferSync) GetBondedWithdrawal(ctx context.Context, transferID common.Hash) (*BondedWithdrawal, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getBondedWithdrawal(ctx, transferID)
}

func (s *TransferSync) GetWithdrawal(ctx context.Context, transferID common.Hash) (*Withdrawal, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getWithdrawal(ctx, transferID)
}

func (s *TransferSync) GetSettlementsByRootHash(ctx context.Context, rootHash common.Hash) ([]*Settlement, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getSettlementsByRootHash(ctx, rootHash)
}

func (s *TransferSync) GetSettlementForTransfer(ctx context.Context, transferID common.Hash) (*Settlement, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getSettlementForTransfer(ctx, transferID)
}

func (s *TransferSync) GetRootSet(ctx context.Context, rootID common.Hash) (*RootSet, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootSet(ctx, rootID)
}

func (s *TransferSync) GetRootConfirmed(ctx context.Context, rootID common.Hash) (*RootConfirmed, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootConfirmed(ctx, rootID)
}

func (s *TransferSync) GetRootBonded(ctx context.Context, rootHash common.Hash) (*RootBonded, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootBonded(ctx, rootHash)
}

func (s *TransferSync) GetRootsBondedBetween(ctx context.Context, fromTime, toTime uint64) ([]*RootBonded, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getRootsBondedBetween(ctx, fromTime, toTime)
}

func (s *TransferSync) GetChallenge(ctx context.Context, rootID common.Hash) (*RootChallenge, error) {
	if s.processor.isHalted() {
		return nil, sync.ErrInconsistentState
	}
	return s.processor.getChallenge(ctx, rootID)
}
