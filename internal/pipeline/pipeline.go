// Package pipeline drives independent per-chunk jobs across a bounded
// worker pool while preserving deterministic output order.
//
// Jobs complete in whatever order scheduling allows; callers get ordering
// by writing results into indexed slots, one writer per slot. A failing job
// never stops jobs already dispatched from draining, so worst-case latency
// stays bounded, and the error reported is always the first by index, not
// the first by completion time.
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Run executes fn(0..jobs-1) across at most workers goroutines.
//
// Each fn call must be independent: it computes one chunk and stores its
// result at its own index, so no two invocations share mutable state.
// Errors are recorded per index; dispatched jobs run to completion and the
// first error by index becomes the return value.
//
// Cancellation is checked between dispatches. In-flight jobs run to
// completion (codec work is not preemptible), no new jobs start after
// cancellation, and the cause of ctx is returned, distinct from any job
// failure.
func Run(ctx context.Context, jobs, workers int, fn func(i int) error) error {
	if jobs <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > jobs {
		workers = jobs
	}

	errs := make([]error, jobs)
	var g errgroup.Group
	g.SetLimit(workers)

	cancelled := false
	for i := 0; i < jobs; i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		i := i
		g.Go(func() error {
			errs[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in errs

	if cancelled {
		return context.Cause(ctx)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
