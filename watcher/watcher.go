package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/notifier"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrentChecks = 10

// Check is a periodic inspection over the synced state. Checks must be
// re-runnable: the scheduler calls Run on every tick and a finding may be
// raised repeatedly until it is resolved.
type Check interface {
	Name() string
	Run(ctx context.Context) ([]notifier.Alert, error)
}

// Scheduler runs all registered checks on a fixed interval with bounded
// concurrency. A check that is still running when its next tick arrives is
// skipped, never run twice in parallel; a check that fails only logs, it
// does not stop the others.
type Scheduler struct {
	checks   []Check
	notifier notifier.Notifier
	interval time.Duration
	logger   *log.Logger

	maxConcurrent int

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewScheduler(checks []Check, n notifier.Notifier, interval time.Duration) *Scheduler {
	return &Scheduler{
		checks:        checks,
		notifier:      n,
		interval:      interval,
		logger:        log.WithFields("module", "watcher"),
		maxConcurrent: defaultMaxConcurrentChecks,
		inFlight:      make(map[string]bool),
	}
}

// Start runs checks until ctx is cancelled. The first pass starts
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	g := &errgroup.Group{}
	g.SetLimit(s.maxConcurrent)

	s.runChecks(ctx, g)
	for {
		select {
		case <-ctx.Done():
			if err := g.Wait(); err != nil {
				s.logger.Errorf("error waiting for checks to finish: %v", err)
			}
			return ctx.Err()
		case <-ticker.C:
			s.runChecks(ctx, g)
		}
	}
}

func (s *Scheduler) runChecks(ctx context.Context, g *errgroup.Group) {
	for _, check := range s.checks {
		check := check
		if !s.tryAcquire(check.Name()) {
			s.logger.Debugf("check %s still running, skipping tick", check.Name())
			continue
		}
		g.Go(func() error {
			defer s.release(check.Name())
			start := time.Now()
			alerts, err := check.Run(ctx)
			if err != nil {
				s.logger.Errorf("check %s failed: %v", check.Name(), err)
				return nil
			}
			for _, alert := range alerts {
				if alert.Check == "" {
					alert.Check = check.Name()
				}
				s.notifier.Notify(ctx, alert)
			}
			s.logger.Debugf("check %s finished in %s with %d alerts", check.Name(), time.Since(start), len(alerts))
			return nil
		})
	}
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
}
