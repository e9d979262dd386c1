package sync

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hopnetwork/reconciler/etherman"
	"github.com/hopnetwork/reconciler/log"
)

const (
	DefaultWaitPeriodBlockNotFound = time.Millisecond * 100
	// DefaultRPCTimeout bounds every single call to the execution client.
	DefaultRPCTimeout = 15 * time.Second
)

type EVMDownloaderInterface interface {
	WaitForNewBlocks(ctx context.Context, lastBlockSeen uint64) (newLastBlock uint64, err error)
	GetEventsByBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]EVMBlock, error)
	GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)
	GetBlockHeader(ctx context.Context, blockNum uint64) (EVMBlockHeader, error)
}

// LogAppenderMap decodes a raw log into its typed event and appends it to
// the block, keyed by the log's topic0. Decoding happens exactly once, at
// this boundary; everything downstream works on typed events. Appenders that
// go back to the client (calldata lookups) derive their call context from
// the ctx they receive so cancellation and timeouts propagate.
type LogAppenderMap map[common.Hash]func(ctx context.Context, b *EVMBlock, l types.Log) error

type EVMDownloader struct {
	syncBlockChunkSize uint64
	EVMDownloaderInterface
	log *log.Logger
}

func NewEVMDownloader(
	syncerID string,
	ethClient etherman.EthClienter,
	syncBlockChunkSize uint64,
	blockFinalityType etherman.BlockNumberFinality,
	waitForNewBlocksPeriod time.Duration,
	appender LogAppenderMap,
	addressesToQuery []common.Address,
	rh *RetryHandler,
	rpcTimeout time.Duration,
) (*EVMDownloader, error) {
	logger := log.WithFields("syncer", syncerID)
	finality, err := blockFinalityType.ToBlockNum()
	if err != nil {
		return nil, err
	}
	if rpcTimeout == 0 {
		rpcTimeout = DefaultRPCTimeout
	}
	topicsToQuery := make([]common.Hash, 0, len(appender))
	for topic := range appender {
		topicsToQuery = append(topicsToQuery, topic)
	}
	return &EVMDownloader{
		syncBlockChunkSize: syncBlockChunkSize,
		log:                logger,
		EVMDownloaderInterface: &EVMDownloaderImplementation{
			ethClient:              ethClient,
			blockFinality:          finality,
			waitForNewBlocksPeriod: waitForNewBlocksPeriod,
			appender:               appender,
			topicsToQuery:          topicsToQuery,
			addressesToQuery:       addressesToQuery,
			rh:                     rh,
			rpcTimeout:             rpcTimeout,
			log:                    logger,
		},
	}, nil
}

// Download fetches events in chunks of syncBlockChunkSize blocks, starting
// at fromBlock, and sends them to downloadedCh in ascending block order.
// Both chunk bounds are inclusive; the next chunk starts one block after
// the previous one's toBlock, so no log is delivered twice across chunk
// boundaries. On an unrecoverable fetch error the channel is closed after
// sending nothing for the failed range, and the error is left for the
// driver to pick up via errCh.
func (d *EVMDownloader) Download(ctx context.Context, fromBlock uint64, downloadedCh chan EVMBlock, errCh chan error) {
	defer close(downloadedCh)
	lastBlock, err := d.WaitForNewBlocks(ctx, 0)
	if err != nil {
		errCh <- err
		return
	}
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("closing channel")
			return
		default:
		}
		toBlock := fromBlock + d.syncBlockChunkSize
		if toBlock > lastBlock {
			toBlock = lastBlock
		}
		if fromBlock > toBlock {
			d.log.Debugf(
				"waiting for new blocks, last block processed: %d, last block seen: %d",
				fromBlock-1, lastBlock,
			)
			lastBlock, err = d.WaitForNewBlocks(ctx, fromBlock-1)
			if err != nil {
				errCh <- err
				return
			}
			continue
		}
		d.log.Debugf("getting events from block %d to %d", fromBlock, toBlock)
		blocks, err := d.GetEventsByBlockRange(ctx, fromBlock, toBlock)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				errCh <- err
			}
			return
		}
		for _, b := range blocks {
			d.log.Debugf("sending block %d to the driver (with events)", b.Num)
			downloadedCh <- b
		}
		if len(blocks) == 0 || blocks[len(blocks)-1].Num < toBlock {
			// Indicate the last downloaded block if there are no events on it
			d.log.Debugf("sending block %d to the driver (without events)", toBlock)
			header, err := d.GetBlockHeader(ctx, toBlock)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					errCh <- err
				}
				return
			}
			downloadedCh <- EVMBlock{
				EVMBlockHeader: header,
			}
		}
		fromBlock = toBlock + 1
	}
}

type EVMDownloaderImplementation struct {
	ethClient              etherman.EthClienter
	blockFinality          *big.Int
	waitForNewBlocksPeriod time.Duration
	appender               LogAppenderMap
	topicsToQuery          []common.Hash
	addressesToQuery       []common.Address
	rh                     *RetryHandler
	rpcTimeout             time.Duration
	log                    *log.Logger
}

func NewEVMDownloaderImplementation(
	syncerID string,
	ethClient etherman.EthClienter,
	blockFinality *big.Int,
	waitForNewBlocksPeriod time.Duration,
	appender LogAppenderMap,
	topicsToQuery []common.Hash,
	addressesToQuery []common.Address,
	rh *RetryHandler,
	rpcTimeout time.Duration,
) *EVMDownloaderImplementation {
	logger := log.WithFields("syncer", syncerID)
	if rpcTimeout == 0 {
		rpcTimeout = DefaultRPCTimeout
	}
	return &EVMDownloaderImplementation{
		ethClient:              ethClient,
		blockFinality:          blockFinality,
		waitForNewBlocksPeriod: waitForNewBlocksPeriod,
		appender:               appender,
		topicsToQuery:          topicsToQuery,
		addressesToQuery:       addressesToQuery,
		rh:                     rh,
		rpcTimeout:             rpcTimeout,
		log:                    logger,
	}
}

// callCtx bounds a single client call without detaching it from the caller's
// cancellation.
func (d *EVMDownloaderImplementation) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.rpcTimeout)
}

func (d *EVMDownloaderImplementation) WaitForNewBlocks(
	ctx context.Context, lastBlockSeen uint64,
) (newLastBlock uint64, err error) {
	attempts := 0
	ticker := time.NewTicker(d.waitForNewBlocksPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("context cancelled")
			return lastBlockSeen, ctx.Err()
		case <-ticker.C:
			callCtx, cancel := d.callCtx(ctx)
			header, err := d.ethClient.HeaderByNumber(callCtx, d.blockFinality)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					d.log.Warn("context has been canceled while trying to get header by number")
					return lastBlockSeen, ctx.Err()
				}
				attempts++
				d.log.Error("error getting last block num from eth client: ", err)
				if hErr := d.rh.Handle("waitForNewBlocks", attempts, err); hErr != nil {
					return lastBlockSeen, hErr
				}
				continue
			}
			if header.Number.Uint64() > lastBlockSeen {
				return header.Number.Uint64(), nil
			}
		}
	}
}

func (d *EVMDownloaderImplementation) GetEventsByBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]EVMBlock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	blocks := []EVMBlock{}
	logs, err := d.GetLogs(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		if len(blocks) == 0 || blocks[len(blocks)-1].Num < l.BlockNumber {
			header, err := d.GetBlockHeader(ctx, l.BlockNumber)
			if err != nil {
				return nil, err
			}
			if header.Hash != l.BlockHash {
				d.log.Infof(
					"there has been a block hash change between the event query and the block query "+
						"for block %d: %s vs %s. Retrying.",
					l.BlockNumber, header.Hash, l.BlockHash,
				)
				return d.GetEventsByBlockRange(ctx, fromBlock, toBlock)
			}
			blocks = append(blocks, EVMBlock{
				EVMBlockHeader: header,
				Events:         []interface{}{},
			})
		}

		if err := d.appender[l.Topics[0]](ctx, &blocks[len(blocks)-1], l); err != nil {
			return nil, fmt.Errorf("appending log %s/%d: %w", l.TxHash, l.Index, err)
		}
	}

	return blocks, nil
}

// GetLogs fetches the logs for the range with the bounded retry policy.
// Results are sorted by (blockNumber, logIndex) before returning: later
// events (settlements) depend on earlier events (commits) having been
// processed, so ordering is part of the contract.
func (d *EVMDownloaderImplementation) GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: d.addressesToQuery,
		ToBlock:   new(big.Int).SetUint64(toBlock),
	}
	var (
		attempts       = 0
		unfilteredLogs []types.Log
		err            error
	)
	for {
		callCtx, cancel := d.callCtx(ctx)
		unfilteredLogs, err = d.ethClient.FilterLogs(callCtx, query)
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			attempts++
			d.log.Errorf("error calling FilterLogs to eth client: filter: %s err: %v",
				filterQueryToString(query), err,
			)
			if hErr := d.rh.Handle("getLogs", attempts, err); hErr != nil {
				return nil, hErr
			}
			continue
		}
		break
	}
	logs := make([]types.Log, 0, len(unfilteredLogs))
	for _, l := range unfilteredLogs {
		for _, topic := range d.topicsToQuery {
			if l.Topics[0] == topic {
				logs = append(logs, l)
				break
			}
		}
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

func (d *EVMDownloaderImplementation) GetBlockHeader(ctx context.Context, blockNum uint64) (EVMBlockHeader, error) {
	attempts := 0
	for {
		callCtx, cancel := d.callCtx(ctx)
		header, err := d.ethClient.HeaderByNumber(callCtx, new(big.Int).SetUint64(blockNum))
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return EVMBlockHeader{}, err
			}
			if errors.Is(err, ethereum.NotFound) {
				// the block num can temporarily disappear from the
				// execution client due to a reorg. Wait and retry.
				d.log.Warnf("block %d not found on the ethereum client: %v", blockNum, err)
				if d.rh.RetryAfterErrorPeriod != 0 {
					time.Sleep(d.rh.RetryAfterErrorPeriod)
				} else {
					time.Sleep(DefaultWaitPeriodBlockNotFound)
				}
				continue
			}
			attempts++
			d.log.Errorf("error getting block header for block %d, err: %v", blockNum, err)
			if hErr := d.rh.Handle("getBlockHeader", attempts, err); hErr != nil {
				return EVMBlockHeader{}, hErr
			}
			continue
		}
		return EVMBlockHeader{
			Num:        header.Number.Uint64(),
			Hash:       header.Hash(),
			ParentHash: header.ParentHash,
			Timestamp:  header.Time,
		}, nil
	}
}

func filterQueryToString(query ethereum.FilterQuery) string {
	return fmt.Sprintf("FromBlock: %s, ToBlock: %s, Addresses: %s, Topics: %s",
		query.FromBlock.String(), query.ToBlock.String(), query.Addresses, query.Topics)
}
