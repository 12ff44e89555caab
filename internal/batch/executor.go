package batch

import (
	"context"
	"sync"

	appErrors "pdf-structural-translator/internal/errors"
)

// Result is one Group's translation outcome, keyed back to block IDs so the
// controller (the single Document writer) can assign translations
// without the worker ever touching the Document directly.
type Result struct {
	GroupIndex   int
	Translations map[string]string // block id -> translated_text
	Err          error
}

// Work is the function a Group is dispatched to; it returns per-block
// translations for every item in the group.
type Work func(ctx context.Context, g Group) (map[string]string, error)

// Config carries the executor's concurrency and rate parameters:
// translation.max_concurrent_translations, plus a requests-per-minute
// figure derived from it for the limiter.
type Config struct {
	MaxConcurrent     int
	RequestsPerMinute int
}

// DefaultConfig matches internal/config's default of 10 concurrent slots.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 10, RequestsPerMinute: 10 * 60}
}

// ProgressFunc reports (completed, total) groups as they finish.
type ProgressFunc func(completed, total int)

// Executor dispatches Groups concurrently under the concurrency cap and
// rate limiter.
type Executor struct {
	limiter *RateLimiter
	sem     chan struct{}
}

// NewExecutor builds an Executor from Config.
func NewExecutor(cfg Config) *Executor {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Executor{
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Run dispatches every group through work, honoring the concurrency cap,
// rate limiter, and cooperative cancellation. Groups may complete
// out of order; results are returned indexed by their original position so
// the caller can reassemble in Document order. On ctx cancellation,
// already-completed results are
// still returned (partial results are flushed) while
// in-flight/unscheduled groups report ctx.Err().
func (e *Executor) Run(ctx context.Context, groups []Group, work Work, progress ProgressFunc) []Result {
	results := make([]Result, len(groups))
	var wg sync.WaitGroup
	var completed int32
	var mu sync.Mutex

	for i, g := range groups {
		i, g := i, g
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case e.sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{GroupIndex: i, Err: ctx.Err()}
				reportProgress(&mu, &completed, len(groups), progress)
				return
			}
			defer func() { <-e.sem }()

			translations, err := e.runWithRetry(ctx, g, work)
			results[i] = Result{GroupIndex: i, Translations: translations, Err: err}
			reportProgress(&mu, &completed, len(groups), progress)
		}()
	}
	wg.Wait()
	return results
}

func reportProgress(mu *sync.Mutex, completed *int32, total int, progress ProgressFunc) {
	if progress == nil {
		return
	}
	mu.Lock()
	*completed++
	c := *completed
	mu.Unlock()
	progress(int(c), total)
}

// runWithRetry waits on the token-bucket rate limiter before every attempt
// (including retries, so a retried call still respects the request-per-minute
// cap) and dispatches work through internal/errors.Do, the single policy-
// driven retry call site: a RateLimited or TranslationEndpointTransient
// error is retried with that kind's own backoff-with-jitter schedule: any
// other kind (TranslationEndpointBlocked, etc.) returns immediately.
func (e *Executor) runWithRetry(ctx context.Context, g Group, work Work) (map[string]string, error) {
	var translations map[string]string
	err := appErrors.Do(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		var workErr error
		translations, workErr = work(ctx, g)
		return workErr
	})
	if err != nil {
		return nil, err
	}
	return translations, nil
}
