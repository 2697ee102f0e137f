package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	const n = 20

	// Randomized completion order: later tasks often finish first.
	results := Map(context.Background(), n, 3, func(ctx context.Context, i int) (string, error) {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		return fmt.Sprintf("task-%d", i), nil
	})

	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("task %d failed: %v", i, r.Err)
		}
		if want := fmt.Sprintf("task-%d", i); r.Value != want {
			t.Errorf("results[%d] = %q, want %q", i, r.Value, want)
		}
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	const limit = 3

	var active, peak int64
	var mu sync.Mutex

	Map(context.Background(), 30, limit, func(ctx context.Context, i int) (int, error) {
		cur := atomic.AddInt64(&active, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return i, nil
	})

	if peak > limit {
		t.Errorf("observed %d concurrent workers, limit is %d", peak, limit)
	}
}

func TestMapRecordsFailuresPerIndex(t *testing.T) {
	results := Map(context.Background(), 5, 2, func(ctx context.Context, i int) (int, error) {
		if i == 2 {
			return 0, fmt.Errorf("task 2 exploded")
		}
		return i * 10, nil
	})

	for i, r := range results {
		if i == 2 {
			if r.Err == nil {
				t.Error("expected error at index 2")
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("unexpected error at index %d: %v", i, r.Err)
		}
		if r.Value != i*10 {
			t.Errorf("results[%d] = %d, want %d", i, r.Value, i*10)
		}
	}
}

func TestMapRunsEveryTaskExactlyOnce(t *testing.T) {
	const n = 50

	counts := make([]int64, n)
	Map(context.Background(), n, 4, func(ctx context.Context, i int) (struct{}, error) {
		atomic.AddInt64(&counts[i], 1)
		return struct{}{}, nil
	})

	for i, c := range counts {
		if c != 1 {
			t.Errorf("task %d ran %d times", i, c)
		}
	}
}

func TestMapEmptyAndZeroConcurrency(t *testing.T) {
	if got := Map(context.Background(), 0, 2, func(ctx context.Context, i int) (int, error) { return 0, nil }); len(got) != 0 {
		t.Errorf("expected empty results, got %d", len(got))
	}

	// Concurrency <= 0 is clamped to 1 rather than deadlocking.
	results := Map(context.Background(), 3, 0, func(ctx context.Context, i int) (int, error) { return i, nil })
	for i, r := range results {
		if r.Value != i {
			t.Errorf("results[%d] = %d, want %d", i, r.Value, i)
		}
	}
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Map(ctx, 4, 2, func(ctx context.Context, i int) (int, error) {
		return i, nil
	})
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("expected context error at index %d", i)
		}
	}
}
