package transfersync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	mutex "sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	hopCommon "github.com/hopnetwork/reconciler/common"
	"github.com/hopnetwork/reconciler/db"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/merkle"
	"github.com/hopnetwork/reconciler/sync"
	"github.com/hopnetwork/reconciler/transfersync/migrations"
	"github.com/russross/meddler"
)

var (
	ErrNotFound = errors.New("not found")
)

// Transfer is a TransferSent event recorded on a source chain.
type Transfer struct {
	TransferID         ethCommon.Hash    `meddler:"transfer_id,hash"`
	DestinationChainID uint64            `meddler:"destination_chain_id"`
	Recipient          ethCommon.Address `meddler:"recipient,address"`
	Amount             *big.Int          `meddler:"amount,bigint"`
	TransferNonce      ethCommon.Hash    `meddler:"transfer_nonce,hash"`
	BonderFee          *big.Int          `meddler:"bonder_fee,bigint"`
	Index              uint64            `meddler:"idx"`
	BlockNum           uint64            `meddler:"block_num"`
	BlockTimestamp     uint64            `meddler:"block_timestamp"`
	TxIndex            uint64            `meddler:"tx_index"`
	TxHash             ethCommon.Hash    `meddler:"tx_hash,hash"`
	LogIndex           uint64            `meddler:"log_index"`
}

// TransferRoot is a TransfersCommitted event recorded on a source chain,
// keyed by the root id derived from (rootHash, totalAmount).
type TransferRoot struct {
	RootID             ethCommon.Hash `meddler:"root_id,hash"`
	RootHash           ethCommon.Hash `meddler:"root_hash,hash"`
	TotalAmount        *big.Int       `meddler:"total_amount,bigint"`
	DestinationChainID uint64         `meddler:"destination_chain_id"`
	CommittedAt        uint64         `meddler:"committed_at"`
	NumTransfers       uint64         `meddler:"num_transfers"`
	BlockNum           uint64         `meddler:"block_num"`
	TxIndex            uint64         `meddler:"tx_index"`
	TxHash             ethCommon.Hash `meddler:"tx_hash,hash"`
	LogIndex           uint64         `meddler:"log_index"`
}

// BondedWithdrawal is a WithdrawalBonded event recorded on a destination
// chain. Bonder is the sender of the bonding transaction; the zero address
// means the sender could not be recovered during sync.
type BondedWithdrawal struct {
	TxHash         ethCommon.Hash    `meddler:"tx_hash,hash"`
	LogIndex       uint64            `meddler:"log_index"`
	TransferID     ethCommon.Hash    `meddler:"transfer_id,hash"`
	Bonder         ethCommon.Address `meddler:"bonder,address"`
	Amount         *big.Int          `meddler:"amount,bigint"`
	BlockNum       uint64            `meddler:"block_num"`
	BlockTimestamp uint64            `meddler:"block_timestamp"`
}

const (
	// SettlementSingle is a WithdrawalBondSettled event, one bond at a time.
	SettlementSingle = "single"
	// SettlementMulti is a MultipleWithdrawalsSettled event covering a batch
	// of bonds against the same root.
	SettlementMulti = "multi"
)

// Settlement is a settlement event recorded on a destination chain. For
// multi settlements Amount carries totalBondsSettled and TransferIDs the
// leaf ordered ids decoded from the calldata; for single settlements
// TransferID identifies the settled bond.
type Settlement struct {
	TxHash         ethCommon.Hash    `meddler:"tx_hash,hash"`
	LogIndex       uint64            `meddler:"log_index"`
	Kind           string            `meddler:"kind"`
	Bonder         ethCommon.Address `meddler:"bonder,address"`
	RootHash       ethCommon.Hash    `meddler:"root_hash,hash"`
	TransferID     ethCommon.Hash    `meddler:"transfer_id,hash"`
	Amount         *big.Int          `meddler:"amount,bigint"`
	TransferIDs    []ethCommon.Hash  `meddler:"transfer_ids,hashlist"`
	BlockNum       uint64            `meddler:"block_num"`
	BlockTimestamp uint64            `meddler:"block_timestamp"`
}

// Withdrawal is a Withdrew event recorded on a destination chain: the
// recipient withdrew directly, without a bonder fronting the funds.
type Withdrawal struct {
	TxHash         ethCommon.Hash    `meddler:"tx_hash,hash"`
	LogIndex       uint64            `meddler:"log_index"`
	TransferID     ethCommon.Hash    `meddler:"transfer_id,hash"`
	Recipient      ethCommon.Address `meddler:"recipient,address"`
	Amount         *big.Int          `meddler:"amount,bigint"`
	BlockNum       uint64            `meddler:"block_num"`
	BlockTimestamp uint64            `meddler:"block_timestamp"`
}

// RootSet is a TransferRootSet event recorded on a destination chain.
type RootSet struct {
	TxHash         ethCommon.Hash `meddler:"tx_hash,hash"`
	LogIndex       uint64         `meddler:"log_index"`
	RootID         ethCommon.Hash `meddler:"root_id,hash"`
	RootHash       ethCommon.Hash `meddler:"root_hash,hash"`
	TotalAmount    *big.Int       `meddler:"total_amount,bigint"`
	BlockNum       uint64         `meddler:"block_num"`
	BlockTimestamp uint64         `meddler:"block_timestamp"`
}

// RootConfirmed is a TransferRootConfirmed event recorded on the origin chain.
type RootConfirmed struct {
	TxHash             ethCommon.Hash `meddler:"tx_hash,hash"`
	LogIndex           uint64         `meddler:"log_index"`
	RootID             ethCommon.Hash `meddler:"root_id,hash"`
	RootHash           ethCommon.Hash `meddler:"root_hash,hash"`
	OriginChainID      uint64         `meddler:"origin_chain_id"`
	DestinationChainID uint64         `meddler:"destination_chain_id"`
	TotalAmount        *big.Int       `meddler:"total_amount,bigint"`
	BlockNum           uint64         `meddler:"block_num"`
	BlockTimestamp     uint64         `meddler:"block_timestamp"`
}

// RootBonded is a TransferRootBonded event recorded on the origin chain.
type RootBonded struct {
	TxHash         ethCommon.Hash `meddler:"tx_hash,hash"`
	LogIndex       uint64         `meddler:"log_index"`
	RootHash       ethCommon.Hash `meddler:"root_hash,hash"`
	Amount         *big.Int       `meddler:"amount,bigint"`
	BlockNum       uint64         `meddler:"block_num"`
	BlockTimestamp uint64         `meddler:"block_timestamp"`
}

// RootChallenge is a TransferBondChallenged event recorded on the origin chain.
type RootChallenge struct {
	TxHash         ethCommon.Hash `meddler:"tx_hash,hash"`
	LogIndex       uint64         `meddler:"log_index"`
	RootID         ethCommon.Hash `meddler:"root_id,hash"`
	RootHash       ethCommon.Hash `meddler:"root_hash,hash"`
	OriginalAmount *big.Int       `meddler:"original_amount,bigint"`
	BlockNum       uint64         `meddler:"block_num"`
	BlockTimestamp uint64         `meddler:"block_timestamp"`
}

type processor struct {
	db   *sql.DB
	log  *log.Logger
	mu   mutex.RWMutex
	halt error
}

func newProcessor(dbPath string, logger *log.Logger) (*processor, error) {
	err := migrations.RunMigrations(dbPath)
	if err != nil {
		return nil, err
	}
	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &processor{
		db:  database,
		log: logger,
	}, nil
}

// isHalted reports whether the processor hit an inconsistency it cannot
// repair, such as a commit whose rebuilt leaf set does not hash to the
// committed root. A halted processor refuses reads until restarted.
func (p *processor) isHalted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.halt != nil
}

func (p *processor) setHalted(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halt = err
}

func (p *processor) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	var lastProcessedBlock uint64
	row := p.db.QueryRow("SELECT num FROM block ORDER BY num DESC LIMIT 1;")
	err := row.Scan(&lastProcessedBlock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return lastProcessedBlock, err
}

func (p *processor) ProcessBlock(ctx context.Context, block sync.Block) error {
	tx, err := db.NewTx(ctx, p.db)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if errRllbck := tx.Rollback(); errRllbck != nil {
				p.log.Errorf("error while rolling back tx %v", errRllbck)
			}
		}
	}()

	if _, err = tx.Exec(`INSERT OR IGNORE INTO block (num, timestamp) VALUES ($1, $2)`, block.Num, block.Timestamp); err != nil {
		return err
	}

	for _, e := range block.Events {
		event, ok := e.(Event)
		if !ok {
			err = errors.New("failed to convert sync.Block.Event to transfersync.Event")
			return err
		}
		if err = p.processEvent(tx, block, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	p.log.Debugf("block %d processed with %d events", block.Num, len(block.Events))
	return nil
}

func (p *processor) processEvent(tx *db.Tx, block sync.Block, event Event) error {
	meta := event.Meta
	switch {
	case event.TransferSent != nil:
		e := event.TransferSent
		return insertIgnoreDup(tx, "transfer", &Transfer{
			TransferID:         e.TransferID,
			DestinationChainID: e.ChainID.Uint64(),
			Recipient:          e.Recipient,
			Amount:             e.Amount,
			TransferNonce:      e.TransferNonce,
			BonderFee:          e.BonderFee,
			Index:              e.Index.Uint64(),
			BlockNum:           block.Num,
			BlockTimestamp:     block.Timestamp,
			TxIndex:            meta.TxIndex,
			TxHash:             meta.TxHash,
			LogIndex:           meta.LogIndex,
		})

	case event.TransfersCommitted != nil:
		e := event.TransfersCommitted
		root := &TransferRoot{
			RootID:             hopCommon.TransferRootID(e.RootHash, e.TotalAmount),
			RootHash:           e.RootHash,
			TotalAmount:        e.TotalAmount,
			DestinationChainID: e.DestinationChainID.Uint64(),
			CommittedAt:        e.RootCommittedAt.Uint64(),
			BlockNum:           block.Num,
			TxIndex:            meta.TxIndex,
			TxHash:             meta.TxHash,
			LogIndex:           meta.LogIndex,
		}
		return p.processCommit(tx, root)

	case event.WithdrawalBonded != nil:
		e := event.WithdrawalBonded
		return insertIgnoreDup(tx, "bonded_withdrawal", &BondedWithdrawal{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			TransferID:     e.TransferID,
			Bonder:         event.Bonder,
			Amount:         e.Amount,
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	case event.WithdrawalBondSettled != nil:
		e := event.WithdrawalBondSettled
		return insertIgnoreDup(tx, "settlement", &Settlement{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			Kind:           SettlementSingle,
			Bonder:         e.Bonder,
			RootHash:       e.RootHash,
			TransferID:     e.TransferID,
			Amount:         big.NewInt(0),
			TransferIDs:    []ethCommon.Hash{},
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	case event.MultipleWithdrawalsSettled != nil:
		e := event.MultipleWithdrawalsSettled
		ids := event.SettledTransferIDs
		if ids == nil {
			ids = []ethCommon.Hash{}
		}
		return insertIgnoreDup(tx, "settlement", &Settlement{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			Kind:           SettlementMulti,
			Bonder:         e.Bonder,
			RootHash:       e.RootHash,
			Amount:         e.TotalBondsSettled,
			TransferIDs:    ids,
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	case event.Withdrew != nil:
		e := event.Withdrew
		return insertIgnoreDup(tx, "withdrawal", &Withdrawal{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			TransferID:     e.TransferID,
			Recipient:      e.Recipient,
			Amount:         e.Amount,
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	case event.TransferRootSet != nil:
		e := event.TransferRootSet
		return insertIgnoreDup(tx, "root_set", &RootSet{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			RootID:         hopCommon.TransferRootID(e.RootHash, e.TotalAmount),
			RootHash:       e.RootHash,
			TotalAmount:    e.TotalAmount,
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	case event.TransferRootConfirmed != nil:
		e := event.TransferRootConfirmed
		return insertIgnoreDup(tx, "root_confirmed", &RootConfirmed{
			TxHash:             meta.TxHash,
			LogIndex:           meta.LogIndex,
			RootID:             hopCommon.TransferRootID(e.RootHash, e.TotalAmount),
			RootHash:           e.RootHash,
			OriginChainID:      e.OriginChainID.Uint64(),
			DestinationChainID: e.DestinationChainID.Uint64(),
			TotalAmount:        e.TotalAmount,
			BlockNum:           block.Num,
			BlockTimestamp:     block.Timestamp,
		})

	case event.TransferRootBonded != nil:
		e := event.TransferRootBonded
		return insertIgnoreDup(tx, "root_bonded", &RootBonded{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			RootHash:       e.Root,
			Amount:         e.Amount,
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	case event.TransferBondChallenged != nil:
		e := event.TransferBondChallenged
		return insertIgnoreDup(tx, "root_challenged", &RootChallenge{
			TxHash:         meta.TxHash,
			LogIndex:       meta.LogIndex,
			RootID:         e.TransferRootID,
			RootHash:       e.RootHash,
			OriginalAmount: e.OriginalAmount,
			BlockNum:       block.Num,
			BlockTimestamp: block.Timestamp,
		})

	default:
		return fmt.Errorf("empty event at block %d", block.Num)
	}
}

// processCommit stores the root and rebuilds its leaf set from the transfers
// stored between the previous commit for the same destination chain and this
// one. The rebuilt set must hash back to the committed root; a mismatch means
// the local view of the chain is broken and the processor halts.
func (p *processor) processCommit(tx *db.Tx, root *TransferRoot) error {
	ids, err := p.rebuildMembership(tx, root)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		computed, err := merkle.RootOf(ids)
		if err != nil {
			return err
		}
		if err := merkle.VerifyRoot(computed, root.RootHash); err != nil {
			haltErr := fmt.Errorf(
				"%w: rebuilt leaf set for root %s (%d transfers) hashes to %s: %w",
				sync.ErrInconsistentState, root.RootHash, len(ids), computed, err,
			)
			p.setHalted(haltErr)
			return haltErr
		}
	} else {
		// Sync started after the covered transfers were emitted, the
		// membership cannot be rebuilt locally.
		p.log.Warnf("no transfers found for root %s committed at block %d, membership unknown",
			root.RootHash, root.BlockNum)
	}

	root.NumTransfers = uint64(len(ids))
	if err := insertIgnoreDup(tx, "transfer_root", root); err != nil {
		return err
	}
	for i, id := range ids {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO root_transfer (root_id, transfer_id, leaf_index) VALUES ($1, $2, $3)`,
			root.RootID.Hex(), id.Hex(), i,
		); err != nil {
			return err
		}
	}
	return nil
}

// rebuildMembership returns the transfer ids covered by the commit, in leaf
// order. The window opens at the previous commit for the same destination
// chain (same block ties broken on tx index) and closes just before the
// commit itself. Stragglers from before a restart are trimmed by starting at
// the last per-root index reset.
func (p *processor) rebuildMembership(tx *db.Tx, root *TransferRoot) ([]ethCommon.Hash, error) {
	prev := &TransferRoot{}
	err := meddler.QueryRow(tx, prev, `
		SELECT * FROM transfer_root
		WHERE destination_chain_id = $1
			AND (block_num < $2 OR (block_num = $2 AND tx_index < $3))
		ORDER BY block_num DESC, tx_index DESC
		LIMIT 1;
	`, root.DestinationChainID, root.BlockNum, root.TxIndex)
	hasPrev := true
	if errors.Is(err, sql.ErrNoRows) {
		hasPrev = false
	} else if err != nil {
		return nil, err
	}

	var transfers []*Transfer
	if hasPrev {
		err = meddler.QueryAll(tx, &transfers, `
			SELECT * FROM transfer
			WHERE destination_chain_id = $1
				AND (block_num > $2 OR (block_num = $2 AND tx_index >= $3))
				AND (block_num < $4 OR (block_num = $4 AND tx_index < $5))
			ORDER BY block_num ASC, tx_index ASC, log_index ASC;
		`, root.DestinationChainID, prev.BlockNum, prev.TxIndex, root.BlockNum, root.TxIndex)
	} else {
		err = meddler.QueryAll(tx, &transfers, `
			SELECT * FROM transfer
			WHERE destination_chain_id = $1
				AND (block_num < $2 OR (block_num = $2 AND tx_index < $3))
			ORDER BY block_num ASC, tx_index ASC, log_index ASC;
		`, root.DestinationChainID, root.BlockNum, root.TxIndex)
	}
	if err != nil {
		return nil, err
	}

	// The per-root transfer index restarts at 0 on every commit. Anything
	// before the last restart belongs to an older root whose commit was not
	// observed.
	start := 0
	for i, t := range transfers {
		if t.Index == 0 {
			start = i
		}
	}
	transfers = transfers[start:]

	ids := make([]ethCommon.Hash, len(transfers))
	for i, t := range transfers {
		ids[i] = t.TransferID
	}
	return ids, nil
}

func insertIgnoreDup(tx db.Querier, table string, record interface{}) error {
	err := meddler.Insert(tx, table, record)
	if err != nil && db.IsUniqueConstraintErr(err) {
		return nil
	}
	return err
}

func (p *processor) getTransfer(ctx context.Context, transferID ethCommon.Hash) (*Transfer, error) {
	transfer := &Transfer{}
	err := meddler.QueryRow(p.db, transfer, `SELECT * FROM transfer WHERE transfer_id = $1;`, transferID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return transfer, err
}

func (p *processor) getTransfersSentBetween(ctx context.Context, fromTime, toTime uint64) ([]*Transfer, error) {
	var transfers []*Transfer
	err := meddler.QueryAll(p.db, &transfers, `
		SELECT * FROM transfer
		WHERE block_timestamp >= $1 AND block_timestamp <= $2
		ORDER BY block_num ASC, tx_index ASC, log_index ASC;
	`, fromTime, toTime)
	return transfers, err
}

func (p *processor) getRootsCommittedBetween(ctx context.Context, fromTime, toTime uint64) ([]*TransferRoot, error) {
	var roots []*TransferRoot
	err := meddler.QueryAll(p.db, &roots, `
		SELECT * FROM transfer_root
		WHERE committed_at >= $1 AND committed_at <= $2
		ORDER BY committed_at DESC;
	`, fromTime, toTime)
	return roots, err
}

func (p *processor) getRoot(ctx context.Context, rootID ethCommon.Hash) (*TransferRoot, error) {
	root := &TransferRoot{}
	err := meddler.QueryRow(p.db, root, `SELECT * FROM transfer_root WHERE root_id = $1;`, rootID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return root, err
}

func (p *processor) getRootByHash(ctx context.Context, rootHash ethCommon.Hash) (*TransferRoot, error) {
	root := &TransferRoot{}
	err := meddler.QueryRow(p.db, root, `
		SELECT * FROM transfer_root
		WHERE root_hash = $1
		ORDER BY committed_at DESC
		LIMIT 1;
	`, rootHash.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return root, err
}

func (p *processor) getRootTransferIDs(ctx context.Context, rootID ethCommon.Hash) ([]ethCommon.Hash, error) {
	rows, err := p.db.Query(`
		SELECT transfer_id FROM root_transfer
		WHERE root_id = $1
		ORDER BY leaf_index ASC;
	`, rootID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []ethCommon.Hash
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		ids = append(ids, ethCommon.HexToHash(idStr))
	}
	return ids, rows.Err()
}

// getUncommittedTransfers returns the transfers to the given destination
// chain that arrived after the last observed commit for it.
func (p *processor) getUncommittedTransfers(ctx context.Context, destinationChainID uint64) ([]*Transfer, error) {
	last := &TransferRoot{}
	err := meddler.QueryRow(p.db, last, `
		SELECT * FROM transfer_root
		WHERE destination_chain_id = $1
		ORDER BY block_num DESC, tx_index DESC
		LIMIT 1;
	`, destinationChainID)
	var transfers []*Transfer
	if errors.Is(err, sql.ErrNoRows) {
		err = meddler.QueryAll(p.db, &transfers, `
			SELECT * FROM transfer
			WHERE destination_chain_id = $1
			ORDER BY block_num ASC, tx_index ASC, log_index ASC;
		`, destinationChainID)
		return transfers, err
	}
	if err != nil {
		return nil, err
	}
	err = meddler.QueryAll(p.db, &transfers, `
		SELECT * FROM transfer
		WHERE destination_chain_id = $1
			AND (block_num > $2 OR (block_num = $2 AND tx_index >= $3))
		ORDER BY block_num ASC, tx_index ASC, log_index ASC;
	`, destinationChainID, last.BlockNum, last.TxIndex)
	return transfers, err
}

func (p *processor) getBondedWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*BondedWithdrawal, error) {
	bond := &BondedWithdrawal{}
	err := meddler.QueryRow(p.db, bond, `
		SELECT * FROM bonded_withdrawal
		WHERE transfer_id = $1
		ORDER BY block_num DESC
		LIMIT 1;
	`, transferID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return bond, err
}

func (p *processor) getWithdrawal(ctx context.Context, transferID ethCommon.Hash) (*Withdrawal, error) {
	w := &Withdrawal{}
	err := meddler.QueryRow(p.db, w, `
		SELECT * FROM withdrawal
		WHERE transfer_id = $1
		ORDER BY block_num DESC
		LIMIT 1;
	`, transferID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (p *processor) getSettlementsByRootHash(ctx context.Context, rootHash ethCommon.Hash) ([]*Settlement, error) {
	var settlements []*Settlement
	err := meddler.QueryAll(p.db, &settlements, `
		SELECT * FROM settlement
		WHERE root_hash = $1
		ORDER BY block_num ASC, log_index ASC;
	`, rootHash.Hex())
	return settlements, err
}

func (p *processor) getSettlementForTransfer(ctx context.Context, transferID ethCommon.Hash) (*Settlement, error) {
	settlement := &Settlement{}
	err := meddler.QueryRow(p.db, settlement, `
		SELECT * FROM settlement
		WHERE transfer_id = $1 OR transfer_ids LIKE '%' || $2 || '%'
		ORDER BY block_num DESC
		LIMIT 1;
	`, transferID.Hex(), transferID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return settlement, err
}

func (p *processor) getRootSet(ctx context.Context, rootID ethCommon.Hash) (*RootSet, error) {
	rs := &RootSet{}
	err := meddler.QueryRow(p.db, rs, `
		SELECT * FROM root_set
		WHERE root_id = $1
		ORDER BY block_num DESC
		LIMIT 1;
	`, rootID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rs, err
}

func (p *processor) getRootConfirmed(ctx context.Context, rootID ethCommon.Hash) (*RootConfirmed, error) {
	rc := &RootConfirmed{}
	err := meddler.QueryRow(p.db, rc, `
		SELECT * FROM root_confirmed
		WHERE root_id = $1
		ORDER BY block_num DESC
		LIMIT 1;
	`, rootID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rc, err
}

func (p *processor) getRootBonded(ctx context.Context, rootHash ethCommon.Hash) (*RootBonded, error) {
	rb := &RootBonded{}
	err := meddler.QueryRow(p.db, rb, `
		SELECT * FROM root_bonded
		WHERE root_hash = $1
		ORDER BY block_num DESC
		LIMIT 1;
	`, rootHash.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rb, err
}

func (p *processor) getRootsBondedBetween(ctx context.Context, fromTime, toTime uint64) ([]*RootBonded, error) {
	var bonds []*RootBonded
	err := meddler.QueryAll(p.db, &bonds, `
		SELECT * FROM root_bonded
		WHERE block_timestamp >= $1 AND block_timestamp <= $2
		ORDER BY block_num ASC;
	`, fromTime, toTime)
	return bonds, err
}

func (p *processor) getChallenge(ctx context.Context, rootID ethCommon.Hash) (*RootChallenge, error) {
	c := &RootChallenge{}
	err := meddler.QueryRow(p.db, c, `
		SELECT * FROM root_challenged
		WHERE root_id = $1
		ORDER BY block_num DESC
		LIMIT 1;
	`, rootID.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}
