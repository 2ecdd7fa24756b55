package batch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/plantctl/internal/logging"
	"github.com/sourcegraph/conc/panics"
)

// outcome is the tagged result of one work invocation: err == nil means
// success with value.
type outcome[R any] struct {
	value R
	err   error
}

// sequencer owns the delivery cursor. Workers report completions through
// complete, which drains every contiguous known outcome under mu.
type sequencer[T, R any] struct {
	items   []T
	deliver DeliverFunc[T, R]
	policy  Policy
	logger  logging.Logger

	// aborted is read lock-free by workers before starting work and only
	// written under mu.
	aborted atomic.Bool

	mu        sync.Mutex
	cursor    int
	pending   map[int]outcome[R]
	failures  []Failure
	engineErr *EngineError
}

func newSequencer[T, R any](items []T, deliver DeliverFunc[T, R], policy Policy, logger logging.Logger) *sequencer[T, R] {
	return &sequencer[T, R]{
		items:   items,
		deliver: deliver,
		policy:  policy,
		logger:  logger,
		pending: make(map[int]outcome[R]),
	}
}

// process runs work for one index unless the batch has been aborted or the
// context is done, then hands the outcome to the drain.
func (s *sequencer[T, R]) process(ctx context.Context, index int, work WorkFunc[T, R]) {
	if s.aborted.Load() || ctx.Err() != nil {
		s.logger.Debug(ctx, "Skipping item", "index", index)
		return
	}

	var o outcome[R]
	var pc panics.Catcher
	pc.Try(func() {
		o.value, o.err = work(ctx, index, s.items[index])
	})
	if r := pc.Recovered(); r != nil {
		o.err = r.AsError()
	}

	s.complete(ctx, index, o)
}

// complete records the outcome for index and advances the cursor through
// every contiguous known outcome. deliver runs while mu is held.
func (s *sequencer[T, R]) complete(ctx context.Context, index int, o outcome[R]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[index] = o

	for {
		next, ok := s.pending[s.cursor]
		if !ok {
			return
		}
		delete(s.pending, s.cursor)

		switch {
		case next.err != nil:
			s.failures = append(s.failures, Failure{
				Index: s.cursor,
				Item:  s.items[s.cursor],
				Err:   next.err,
			})
			s.logger.Debug(ctx, "Item failed", "index", s.cursor, "error", next.err.Error())
			if s.policy == FailFast {
				s.abort(ctx, "fail-fast")
			}
		case s.aborted.Load():
			// Completed after an earlier failure aborted the batch.
		default:
			if err := s.deliverOne(s.cursor, next.value); err != nil {
				if s.engineErr == nil {
					s.engineErr = &EngineError{Index: s.cursor, Err: err}
				}
				s.abort(ctx, "deliver error")
			}
		}

		s.cursor++
	}
}

func (s *sequencer[T, R]) deliverOne(index int, value R) (err error) {
	if s.deliver == nil {
		return nil
	}

	var pc panics.Catcher
	pc.Try(func() {
		err = s.deliver(index, s.items[index], value)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	return err
}

// abort must be called with mu held.
func (s *sequencer[T, R]) abort(ctx context.Context, reason string) {
	if s.aborted.CompareAndSwap(false, true) {
		s.logger.Debug(ctx, "Batch aborted", "reason", reason, "cursor", s.cursor)
	}
}

// result picks the batch outcome once every worker has returned.
func (s *sequencer[T, R]) result(ctx context.Context, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engineErr != nil {
		return s.engineErr
	}

	if len(s.failures) == 0 {
		if s.cursor < len(s.items) {
			// Items were skipped without an abort, so the context ended.
			return ctx.Err()
		}
		return nil
	}

	if s.policy == FailFast {
		return s.failures[0].Err
	}

	aggregate := opts.Aggregate
	if aggregate == nil {
		aggregate = FirstError
	}

	failures := make([]Failure, len(s.failures))
	copy(failures, s.failures)
	if err := aggregate(failures); err != nil {
		return err
	}

	// A suppressed result must not hide items skipped by cancellation.
	if s.cursor < len(s.items) && !s.aborted.Load() {
		return ctx.Err()
	}
	return nil
}
