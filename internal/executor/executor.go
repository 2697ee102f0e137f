// Package executor runs an ordered list of independent tasks under a fixed
// concurrency limit while preserving input order in the results.
package executor

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a single task.
type Result[T any] struct {
	Value T
	Err   error
}

// Map executes n tasks with at most concurrency workers and returns a slice
// of length n where results[i] is the outcome of task(ctx, i), regardless of
// completion order.
//
// A shared monotonic cursor hands the next index to whichever worker becomes
// free, so no two workers ever run the same task or write the same slot. An
// individual task failure is recorded per index and does not abort sibling
// tasks; the caller decides whether a partially failed batch is fatal.
func Map[T any](ctx context.Context, n, concurrency int, task func(ctx context.Context, index int) (T, error)) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > n {
		concurrency = n
	}

	var cursor int64 = -1

	// errgroup is used only for goroutine lifecycle; workers always return
	// nil so a failing task never cancels its siblings.
	g := new(errgroup.Group)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&cursor, 1))
				if i >= n {
					return nil
				}
				if err := ctx.Err(); err != nil {
					results[i] = Result[T]{Err: err}
					continue
				}
				value, err := task(ctx, i)
				results[i] = Result[T]{Value: value, Err: err}
			}
		})
	}
	_ = g.Wait()

	return results
}
