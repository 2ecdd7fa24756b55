package batch

import (
	"context"
	"time"

	"github.com/conneroisu/plantctl/internal/logging"
	"golang.org/x/sync/errgroup"
)

// WorkFunc processes one item. It runs outside any lock, concurrently with
// other work invocations.
type WorkFunc[T, R any] func(ctx context.Context, index int, item T) (R, error)

// DeliverFunc consumes one successful result. Calls are serialized and made
// in increasing index order while the sequencing lock is held, so a slow
// deliver stalls every worker that finishes meanwhile.
type DeliverFunc[T, R any] func(index int, item T, result R) error

// Options configures a batch run.
type Options struct {
	// Concurrency is the worker pool size. Must be at least 1.
	Concurrency int
	// Policy selects failure handling. Defaults to FailFast.
	Policy Policy
	// Aggregate is consulted under CollectAll. Defaults to FirstError.
	Aggregate Aggregator
	// Logger receives debug events. Defaults to a no-op logger.
	Logger logging.Logger
}

// Run applies work to every item on a pool of opts.Concurrency workers and
// passes each success to deliver in index order. It blocks until all
// submitted work has finished.
//
// The returned error is, in priority order: a validation error for a bad
// concurrency, an *EngineError from deliver, the policy-selected item
// failure, or the context error when items were skipped because ctx ended.
func Run[T, R any](ctx context.Context, items []T, work WorkFunc[T, R], deliver DeliverFunc[T, R], opts Options) error {
	if opts.Concurrency < 1 {
		return invalidConcurrency(opts.Concurrency)
	}
	if len(items) == 0 {
		return nil
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("batch")

	start := time.Now()
	logger.Debug(ctx, "Batch started",
		"items", len(items),
		"concurrency", opts.Concurrency,
		"policy", opts.Policy.String(),
	)

	seq := newSequencer(items, deliver, opts.Policy, logger)

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	for i := range items {
		// Go blocks while the pool is full, so this check also stops
		// submitting unstarted items once the batch is aborted.
		if seq.aborted.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			seq.process(ctx, i, work)
			return nil
		})
	}
	_ = g.Wait()

	err := seq.result(ctx, opts)
	logger.Debug(ctx, "Batch finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"failed", err != nil,
	)
	return err
}

// Map runs work over items and returns the delivered results in input order.
// Failed and skipped items are omitted, so positions only line up with items
// when the error is nil.
func Map[T, R any](ctx context.Context, items []T, work WorkFunc[T, R], opts Options) ([]R, error) {
	results := make([]R, 0, len(items))
	err := Run(ctx, items, work, func(_ int, _ T, r R) error {
		results = append(results, r)
		return nil
	}, opts)
	return results, err
}
