// Package errors maps each ErrorKind to a single retry policy object,
// invoked uniformly by every external call site.
package errors

import (
	"context"
	mrand "math/rand"
	"time"

	retry "github.com/avast/retry-go/v4"

	"pdf-structural-translator/internal/types"
)

// Policy describes how a given ErrorKind should be handled.
type Policy struct {
	Retry       bool
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Fatal       bool // Document-scoped fatal; never aborts the whole process
}

// policies is the kind -> policy table.
var policies = map[types.ErrorCode]Policy{
	types.ErrConfigInvalid:               {Retry: false, Fatal: true},
	types.ErrExtractorTimeout:            {Retry: true, MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Fatal: true},
	types.ErrExtractorUnavailable:        {Retry: true, MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Fatal: true},
	types.ErrExtractorCorruptInput:       {Retry: false, Fatal: true},
	types.ErrVisualExtractorFailed:       {Retry: false, Fatal: false},
	types.ErrRateLimited:                 {Retry: true, MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Fatal: false},
	types.ErrTranslationEndpointTransient: {Retry: true, MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Fatal: false},
	types.ErrTranslationEndpointBlocked:   {Retry: false, Fatal: false},
	types.ErrValidationFailed:            {Retry: false, Fatal: false}, // handled by the self-correction loop, not retry-go
	types.ErrCacheIOError:                {Retry: false, Fatal: false},
	types.ErrAssemblerInvariantViolated:  {Retry: false, Fatal: true},
	types.ErrImagePreservationViolation:  {Retry: false, Fatal: true},
	types.ErrInternal:                    {Retry: false, Fatal: true},
}

// PolicyFor returns the configured Policy for a kind, defaulting to a
// non-retrying, non-fatal policy for kinds not in the table.
func PolicyFor(code types.ErrorCode) Policy {
	if p, ok := policies[code]; ok {
		return p
	}
	return Policy{}
}

// Do is the single retry call site for every external call in the
// pipeline: it runs fn, and on a *types.AppError classifies
// the failure by its Code and retries per that code's Policy. Each call site
// (the extractor-retry loop, the batch executor's per-group dispatch) used to
// hand-roll its own backoff loop against a single assumed kind; Do instead
// re-reads the policy from whatever kind the error actually carries on every
// attempt, since one call site can see different kinds across attempts (a
// batch can be RateLimited on one try and TranslationEndpointTransient on the
// next) and each kind has its own attempt budget. A non-AppError, or an
// AppError whose kind is not configured to retry, is returned after exactly
// one call.
func Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := make(map[types.ErrorCode]uint)

	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(maxTableAttempts()),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return jitteredDelay(n, policyForErr(err))
		}),
		retry.RetryIf(func(err error) bool {
			code, ok := errorCode(err)
			if !ok {
				return false
			}
			p := PolicyFor(code)
			if !p.Retry {
				return false
			}
			attempts[code]++
			return attempts[code] < p.MaxAttempts
		}),
	)
}

// jitteredDelay computes an exponential backoff with up to 25% jitter,
// applied
// uniformly to every retryable kind rather than just rate limiting.
func jitteredDelay(attempt uint, p Policy) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay * time.Duration(uint64(1)<<attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := time.Duration(mrand.Float64() * float64(delay) * 0.25)
	return delay + jitter
}

// policyForErr looks up the Policy for err's AppError code, or the zero
// (non-retrying) Policy if err carries none.
func policyForErr(err error) Policy {
	if code, ok := errorCode(err); ok {
		return PolicyFor(code)
	}
	return Policy{}
}

// maxTableAttempts is the upper bound retry-go itself enforces across the
// whole Do call; the real per-kind budget is applied by RetryIf's attempts
// map, so this only needs to be at least the largest MaxAttempts in the
// table (never a limiting factor in practice).
func maxTableAttempts() uint {
	var max uint
	for _, p := range policies {
		if p.Retry && p.MaxAttempts > max {
			max = p.MaxAttempts
		}
	}
	if max == 0 {
		max = 1
	}
	return max
}

func errorCode(err error) (types.ErrorCode, bool) {
	var appErr *types.AppError
	if asAppError(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

func asAppError(err error, target **types.AppError) bool {
	for err != nil {
		if ae, ok := err.(*types.AppError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
