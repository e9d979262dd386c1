package sync

import (
	"context"

	"github.com/hopnetwork/reconciler/log"
)

type downloader interface {
	Download(ctx context.Context, fromBlock uint64, downloadedCh chan EVMBlock, errCh chan error)
}

type processorInterface interface {
	GetLastProcessedBlock(ctx context.Context) (uint64, error)
	ProcessBlock(ctx context.Context, block Block) error
}

// EVMDriver wires a downloader and a processor: it feeds downloaded blocks
// to the processor strictly in ascending order, retrying processor failures
// with the shared retry policy. Blocks are applied one at a time, so the
// processor's aggregates transition atomically per block.
type EVMDriver struct {
	processor          processorInterface
	downloader         downloader
	syncerID           string
	downloadBufferSize int
	rh                 *RetryHandler
	log                *log.Logger
}

func NewEVMDriver(
	processor processorInterface,
	downloader downloader,
	syncerID string,
	downloadBufferSize int,
	rh *RetryHandler,
) (*EVMDriver, error) {
	logger := log.WithFields("syncer", syncerID)
	return &EVMDriver{
		processor:          processor,
		downloader:         downloader,
		syncerID:           syncerID,
		downloadBufferSize: downloadBufferSize,
		rh:                 rh,
		log:                logger,
	}, nil
}

// Sync runs the download/process loop until ctx is cancelled or the
// downloader fails terminally. The error of a terminal failure is returned
// so the caller decides whether to restart.
func (d *EVMDriver) Sync(ctx context.Context) error {
	var (
		lastProcessedBlock uint64
		attempts           int
		err                error
	)
	for {
		lastProcessedBlock, err = d.processor.GetLastProcessedBlock(ctx)
		if err != nil {
			attempts++
			d.log.Error("error getting last processed block: ", err)
			if hErr := d.rh.Handle("Sync", attempts, err); hErr != nil {
				return hErr
			}
			continue
		}
		break
	}
	cancellableCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.log.Info("starting sync, last processed block: ", lastProcessedBlock)
	downloadCh := make(chan EVMBlock, d.downloadBufferSize)
	errCh := make(chan error, 1)
	go d.downloader.Download(cancellableCtx, lastProcessedBlock+1, downloadCh, errCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			d.log.Errorf("downloader terminated: %v", err)
			return err
		case b, ok := <-downloadCh:
			if !ok {
				// downloader closed the channel; wait for its error or cancellation
				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			d.log.Debug("handleNewBlock: ", b.Num, " ", b.Hash)
			if err := d.handleNewBlock(ctx, b); err != nil {
				return err
			}
		}
	}
}

func (d *EVMDriver) handleNewBlock(ctx context.Context, b EVMBlock) error {
	attempts := 0
	for {
		blockToProcess := Block{
			Num:       b.Num,
			Timestamp: b.Timestamp,
			Events:    b.Events,
		}
		err := d.processor.ProcessBlock(ctx, blockToProcess)
		if err != nil {
			attempts++
			d.log.Errorf("error processing events for block %d, err: %v", b.Num, err)
			if hErr := d.rh.Handle("handleNewBlock", attempts, err); hErr != nil {
				return hErr
			}
			continue
		}
		return nil
	}
}
