package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/router"
	"pdf-structural-translator/internal/types"
)

func groupFor(id string) Group {
	return Group{Items: []Item{{
		Block:    &docmodel.ContentBlock{ID: id, Kind: docmodel.KindParagraph, OriginalText: "text-" + id},
		Decision: router.Decision{Strategy: router.StrategyMarkdownAwareCost, Tier: router.TierCost},
	}}}
}

func TestExecutor_Run_AllSucceed(t *testing.T) {
	groups := []Group{groupFor("a"), groupFor("b"), groupFor("c")}
	work := func(ctx context.Context, g Group) (map[string]string, error) {
		return map[string]string{g.Items[0].Block.ID: "translated-" + g.Items[0].Block.ID}, nil
	}

	e := NewExecutor(Config{MaxConcurrent: 2, RequestsPerMinute: 6000})
	results := e.Run(context.Background(), groups, work, nil)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("result %d: unexpected error %v", i, r.Err)
		}
	}
}

func TestExecutor_Run_PreservesResultOrderById(t *testing.T) {
	groups := []Group{groupFor("a"), groupFor("b"), groupFor("c")}
	work := func(ctx context.Context, g Group) (map[string]string, error) {
		// Simulate out-of-order completion: "a" is the slowest.
		if g.Items[0].Block.ID == "a" {
			time.Sleep(15 * time.Millisecond)
		}
		return map[string]string{g.Items[0].Block.ID: "ok"}, nil
	}

	e := NewExecutor(Config{MaxConcurrent: 4, RequestsPerMinute: 6000})
	results := e.Run(context.Background(), groups, work, nil)

	for i, g := range groups {
		if results[i].GroupIndex != i {
			t.Errorf("index %d: expected GroupIndex %d, got %d", i, i, results[i].GroupIndex)
		}
		if _, ok := results[i].Translations[g.Items[0].Block.ID]; !ok {
			t.Errorf("index %d: missing translation for %s", i, g.Items[0].Block.ID)
		}
	}
}

func TestExecutor_Run_RespectsConcurrencyCap(t *testing.T) {
	groups := []Group{groupFor("a"), groupFor("b"), groupFor("c"), groupFor("d")}
	var current, max int32

	work := func(ctx context.Context, g Group) (map[string]string, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return map[string]string{}, nil
	}

	e := NewExecutor(Config{MaxConcurrent: 2, RequestsPerMinute: 6000})
	e.Run(context.Background(), groups, work, nil)

	if max > 2 {
		t.Errorf("expected at most 2 concurrent groups, observed %d", max)
	}
}

func TestExecutor_Run_CancellationAbortsUnscheduled(t *testing.T) {
	groups := []Group{groupFor("a"), groupFor("b")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	work := func(ctx context.Context, g Group) (map[string]string, error) {
		return map[string]string{}, nil
	}

	e := NewExecutor(Config{MaxConcurrent: 1, RequestsPerMinute: 6000})
	results := e.Run(ctx, groups, work, nil)

	for i, r := range results {
		if r.Err == nil {
			t.Errorf("result %d: expected cancellation error, got nil", i)
		}
	}
}

func TestExecutor_Run_ReportsProgress(t *testing.T) {
	groups := []Group{groupFor("a"), groupFor("b")}
	work := func(ctx context.Context, g Group) (map[string]string, error) {
		return map[string]string{}, nil
	}

	var completed int32
	progress := func(done, total int) {
		atomic.StoreInt32(&completed, int32(done))
	}

	e := NewExecutor(Config{MaxConcurrent: 2, RequestsPerMinute: 6000})
	e.Run(context.Background(), groups, work, progress)

	if atomic.LoadInt32(&completed) != 2 {
		t.Errorf("expected final progress report of 2, got %d", completed)
	}
}

func TestExecutor_Run_RetriesTransientEndpointErrorThenSucceeds(t *testing.T) {
	groups := []Group{groupFor("a")}
	var attempts int32

	work := func(ctx context.Context, g Group) (map[string]string, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, types.NewAppError(types.ErrTranslationEndpointTransient, "upstream hiccup", nil)
		}
		return map[string]string{g.Items[0].Block.ID: "ok"}, nil
	}

	e := NewExecutor(Config{MaxConcurrent: 1, RequestsPerMinute: 6000})
	results := e.Run(context.Background(), groups, work, nil)

	if results[0].Err != nil {
		t.Fatalf("expected eventual success, got %v", results[0].Err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("expected 3 attempts (2 transient failures + 1 success), got %d", attempts)
	}
}

func TestExecutor_Run_DoesNotRetryBlockedEndpointError(t *testing.T) {
	groups := []Group{groupFor("a")}
	var attempts int32

	work := func(ctx context.Context, g Group) (map[string]string, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, types.NewAppError(types.ErrTranslationEndpointBlocked, "endpoint blocked", nil)
	}

	e := NewExecutor(Config{MaxConcurrent: 1, RequestsPerMinute: 6000})
	results := e.Run(context.Background(), groups, work, nil)

	if results[0].Err == nil {
		t.Fatalf("expected an error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable kind, got %d", attempts)
	}
}
