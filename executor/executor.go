package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hopnetwork/reconciler/db"
	"github.com/hopnetwork/reconciler/executor/migrations"
	"github.com/hopnetwork/reconciler/log"
	"github.com/russross/meddler"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	// StatusPending: queued, not picked up yet.
	StatusPending Status = "pending"
	// StatusProcessing: a worker owns it.
	StatusProcessing Status = "processing"
	// StatusSuccess: the tx was sent.
	StatusSuccess Status = "success"
	// StatusFailed: all submission attempts failed.
	StatusFailed Status = "failed"
	// StatusNoop: the precondition no longer held when the worker got to it,
	// someone else already acted.
	StatusNoop Status = "noop"
)

var (
	ErrNotFound = errors.New("not found")
)

// SubmissionError reports that an action exhausted its submission attempts.
type SubmissionError struct {
	ActionID string
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("action %s failed after %d attempts: %v", e.ActionID, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Action is a queued remediation transaction. ID doubles as the dedupe key:
// enqueueing the same ID twice is a no-op, so watchers can re-derive actions
// on every tick without flooding the queue.
type Action struct {
	ID          string         `meddler:"id"`
	Kind        string         `meddler:"kind"`
	ChainID     uint64         `meddler:"chain_id"`
	To          common.Address `meddler:"to_addr,address"`
	Data        []byte         `meddler:"data"`
	SignerGroup string         `meddler:"signer_group"`
	Status      Status         `meddler:"status"`
	Attempts    int            `meddler:"attempts"`
	LastError   string         `meddler:"last_error"`
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	CreatedAt   int64          `meddler:"created_at"`
	UpdatedAt   int64          `meddler:"updated_at"`
}

// Sender submits a transaction for an action and returns its hash.
type Sender interface {
	Send(ctx context.Context, action *Action) (common.Hash, error)
}

// Precondition re-checks whether an action is still needed right before
// submission. Returning false downgrades the action to a noop.
type Precondition func(ctx context.Context, action *Action) (bool, error)

// Executor drains a persistent action queue. Each signer group gets exactly
// one worker so the group's nonces never race; different groups proceed in
// parallel.
type Executor struct {
	db            *sql.DB
	logger        *log.Logger
	sender        Sender
	preconditions map[string]Precondition
	signerGroups  []string

	maxAttempts      int
	retryDelay       time.Duration
	waitOnEmptyQueue time.Duration
}

func New(
	dbPath string,
	sender Sender,
	preconditions map[string]Precondition,
	signerGroups []string,
	maxAttempts int,
	retryDelay time.Duration,
	waitOnEmptyQueue time.Duration,
) (*Executor, error) {
	if err := migrations.RunMigrations(dbPath); err != nil {
		return nil, err
	}
	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		db:               database,
		logger:           log.WithFields("module", "executor"),
		sender:           sender,
		preconditions:    preconditions,
		signerGroups:     signerGroups,
		maxAttempts:      maxAttempts,
		retryDelay:       retryDelay,
		waitOnEmptyQueue: waitOnEmptyQueue,
	}, nil
}

// Enqueue adds an action to the queue. Re-enqueueing an already known ID is
// not an error and leaves the stored action untouched.
func (e *Executor) Enqueue(ctx context.Context, action *Action) error {
	if action.ID == "" {
		return errors.New("action ID is required")
	}
	now := time.Now().Unix()
	action.Status = StatusPending
	action.Attempts = 0
	action.CreatedAt = now
	action.UpdatedAt = now
	err := meddler.Insert(e.db, "action", action)
	if err != nil && db.IsUniqueConstraintErr(err) {
		e.logger.Debugf("action %s already enqueued", action.ID)
		return nil
	}
	return err
}

func (e *Executor) GetAction(ctx context.Context, id string) (*Action, error) {
	action := &Action{}
	err := meddler.QueryRow(e.db, action, `SELECT * FROM action WHERE id = $1;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return action, err
}

// Start runs one worker per signer group until ctx is cancelled.
func (e *Executor) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, group := range e.signerGroups {
		group := group
		g.Go(func() error {
			return e.runGroup(ctx, group)
		})
	}
	return g.Wait()
}

func (e *Executor) runGroup(ctx context.Context, group string) error {
	logger := e.logger.WithFields("signer-group", group)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		action, err := e.nextPending(group)
		if errors.Is(err, ErrNotFound) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.waitOnEmptyQueue):
			}
			continue
		}
		if err != nil {
			logger.Errorf("error fetching next pending action: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.waitOnEmptyQueue):
			}
			continue
		}
		if err := e.processAction(ctx, logger, action); err != nil {
			logger.Errorf("error processing action %s: %v", action.ID, err)
		}
	}
}

func (e *Executor) nextPending(group string) (*Action, error) {
	action := &Action{}
	err := meddler.QueryRow(e.db, action, `
		SELECT * FROM action
		WHERE signer_group = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1;
	`, group, StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return action, err
}

func (e *Executor) processAction(ctx context.Context, logger *log.Logger, action *Action) error {
	if err := e.setStatus(action.ID, StatusProcessing, 0, "", common.Hash{}); err != nil {
		return err
	}

	if precond, ok := e.preconditions[action.Kind]; ok {
		needed, err := precond(ctx, action)
		if err != nil {
			// Leave it pending, the next pass re-checks.
			logger.Warnf("precondition check for action %s failed: %v", action.ID, err)
			return e.setStatus(action.ID, StatusPending, action.Attempts, err.Error(), common.Hash{})
		}
		if !needed {
			logger.Infof("action %s no longer needed, marking noop", action.ID)
			return e.setStatus(action.ID, StatusNoop, action.Attempts, "", common.Hash{})
		}
	}

	bo := e.submissionBackOff()

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		txHash, err := e.sender.Send(ctx, action)
		if err == nil {
			logger.Infof("action %s submitted as tx %s (attempt %d)", action.ID, txHash, attempt)
			return e.setStatus(action.ID, StatusSuccess, attempt, "", txHash)
		}
		lastErr = err
		logger.Warnf("submission attempt %d/%d for action %s failed: %v", attempt, e.maxAttempts, action.ID, err)
		if attempt < e.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}
	}

	subErr := &SubmissionError{ActionID: action.ID, Attempts: e.maxAttempts, Err: lastErr}
	if err := e.setStatus(action.ID, StatusFailed, e.maxAttempts, subErr.Error(), common.Hash{}); err != nil {
		return err
	}
	return subErr
}

// submissionBackOff builds the wait policy between submission attempts of a
// single action, starting at retryDelay and growing exponentially. The
// elapsed time limit is disabled, the attempt budget is the only cap.
func (e *Executor) submissionBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retryDelay
	bo.MaxElapsedTime = 0
	return bo
}

func (e *Executor) setStatus(id string, status Status, attempts int, lastError string, txHash common.Hash) error {
	_, err := e.db.Exec(`
		UPDATE action
		SET status = $1, attempts = $2, last_error = $3, tx_hash = $4, updated_at = $5
		WHERE id = $6;
	`, status, attempts, lastError, txHash.Hex(), time.Now().Unix(), id)
	return err
}
