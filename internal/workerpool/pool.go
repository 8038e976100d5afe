package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"thingmirror/internal/coordinator"
	"thingmirror/pkg/logger"
	"thingmirror/pkg/retry"
)

// Outcome is what a unit of work reports for one index
type Outcome struct {
	// Changed means work actually happened and the index may be committed.
	Changed bool
	// Done asks the worker to stop normally, ending the whole pool.
	Done bool
}

// Unit performs the work for one index. attempt starts at 1.
type Unit func(ctx context.Context, index uint64, attempt int) (Outcome, error)

// Sink persists committed indexes
type Sink interface {
	Save(ctx context.Context, index uint64) error
}

// Config holds pool settings
type Config struct {
	Workers     int
	MaxAttempts int
	Backoff     retry.BackoffStrategy
	// RetryIf decides whether a failed attempt is tried again. Defaults to
	// retry.DefaultRetryIf.
	RetryIf     func(error) bool
}

// Stats is a snapshot of pool counters
type Stats struct {
	Processed     uint64
	Changed       uint64
	Skipped       uint64
	Commits       uint64
	LastCommitted uint64
	HasCommitted  bool
}

// Pool runs identical workers against a shared coordinator. The first
// worker to stop, for any reason, stops the others.
type Pool struct {
	cfg    Config
	coord  *coordinator.Coordinator[Outcome]
	unit   Unit
	sink   Sink
	logger logger.Logger

	processed     atomic.Uint64
	changed       atomic.Uint64
	skipped       atomic.Uint64
	commits       atomic.Uint64
	lastCommitted atomic.Uint64
	hasCommitted  atomic.Bool
}

// New creates a pool. Workers below 1 means 1.
func New(cfg Config, coord *coordinator.Coordinator[Outcome], unit Unit, sink Sink, log logger.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = retry.DefaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.NoBackoff{}
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = retry.DefaultRetryIf
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Pool{
		cfg:    cfg,
		coord:  coord,
		unit:   unit,
		sink:   sink,
		logger: log,
	}
}

// Run starts the workers and blocks until the first one terminates, then
// stops the rest and joins them before returning the first terminator's
// result: nil for a normal stop, its error otherwise.
//
// A normal stop only halts allocation, so units already running finish and
// may still commit. If one of them fails terminally, Run returns that error
// instead of nil. An error, or cancellation of ctx, aborts running units as
// well.
func (p *Pool) Run(ctx context.Context) error {
	logger.LogComponentStart(p.logger, "workerpool", map[string]interface{}{
		"workers":      p.cfg.Workers,
		"max_attempts": p.cfg.MaxAttempts,
		"start":        p.coord.Next(),
	})

	// workCtx is cancelled by the group as soon as a worker returns an error
	g, workCtx := errgroup.WithContext(ctx)
	allocCtx, stopAllocating := context.WithCancel(workCtx)
	defer stopAllocating()

	var (
		once  sync.Once
		first error
	)
	finish := func(err error) {
		once.Do(func() {
			first = err
			stopAllocating()
		})
	}

	for id := 0; id < p.cfg.Workers; id++ {
		g.Go(func() error {
			err := p.worker(allocCtx, workCtx, id)
			if errors.Is(err, errDrained) {
				return nil
			}
			finish(err)
			return err
		})
	}

	// a unit that fails while the pool drains after a normal stop still
	// fails the run
	if err := g.Wait(); first == nil {
		first = err
	}

	reason := "done"
	if first != nil {
		reason = first.Error()
	}
	logger.LogComponentStop(p.logger, "workerpool", reason)
	return first
}

// errDrained is returned by a worker that stopped because another worker
// finished normally.
var errDrained = errors.New("worker drained")

// worker allocates with allocCtx and runs units with workCtx.
func (p *Pool) worker(allocCtx, workCtx context.Context, id int) error {
	log := p.logger.WithField("worker", id)
	log.Debug("worker started")

	for {
		completion, err := p.coord.Process(allocCtx, func(_ context.Context, index uint64) (Outcome, error) {
			return retry.DoWithResult(func(attempt int) (Outcome, error) {
				return p.unit(workCtx, index, attempt)
			}, &retry.Config{
				MaxAttempts: p.cfg.MaxAttempts,
				Backoff:     p.cfg.Backoff,
				RetryIf:     p.cfg.RetryIf,
				Context:     workCtx,
				Logger:      log.WithField("index", index),
			})
		})
		if err != nil {
			if workErr := workCtx.Err(); workErr != nil {
				log.Debug("worker cancelled")
				return workErr
			}
			if allocCtx.Err() != nil && errors.Is(err, context.Canceled) {
				log.Debug("worker drained")
				return errDrained
			}
			log.WithError(err).ErrorWithFields("unit of work failed", map[string]interface{}{
				"index": completion.Index,
			})
			return fmt.Errorf("index %d: %w", completion.Index, err)
		}

		outcome := completion.Value
		if outcome.Done {
			log.InfoWithFields("worker finished", map[string]interface{}{
				"index": completion.Index,
			})
			return nil
		}

		p.processed.Add(1)
		if !outcome.Changed {
			p.skipped.Add(1)
			continue
		}
		p.changed.Add(1)

		if !completion.Committable {
			continue
		}
		// a commit that has been decided is persisted even during shutdown
		if err := p.sink.Save(context.WithoutCancel(workCtx), completion.Index); err != nil {
			log.WithError(err).Error("failed to persist checkpoint")
			return err
		}
		p.commits.Add(1)
		p.lastCommitted.Store(completion.Index)
		p.hasCommitted.Store(true)
	}
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Processed:     p.processed.Load(),
		Changed:       p.changed.Load(),
		Skipped:       p.skipped.Load(),
		Commits:       p.commits.Load(),
		LastCommitted: p.lastCommitted.Load(),
		HasCommitted:  p.hasCommitted.Load(),
	}
}

// InFlight returns indexes allocated but not successfully completed
func (p *Pool) InFlight() []uint64 {
	return p.coord.InFlight()
}
