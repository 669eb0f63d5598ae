package llm

import (
	"context"
	"errors"
	"log"
	"time"
)

// Attempt is one stage of a fallback chain: a named call with its own
// retry count. Retries sleep 1s, 2s, ... between attempts. A positive
// Timeout bounds each individual try; a timed-out try counts as a failure
// and retries normally.
type Attempt[T any] struct {
	Name    string
	Retries int
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// FallbackChain tries each attempt in order, exhausting its retries before
// moving on, and returns the first success. When every stage fails it
// returns the default value with ok=false so the caller can degrade without
// an error path. Context cancellation aborts the chain immediately.
//
// This makes the structured → free-text-JSON → rule-default ladder explicit
// in one place instead of nested recover blocks at every call site.
func FallbackChain[T any](ctx context.Context, def T, attempts ...Attempt[T]) (result T, ok bool) {
	for _, attempt := range attempts {
		for try := 0; try <= attempt.Retries; try++ {
			if ctx.Err() != nil {
				return def, false
			}

			runCtx, cancel := ctx, func() {}
			if attempt.Timeout > 0 {
				runCtx, cancel = context.WithTimeout(ctx, attempt.Timeout)
			}
			result, err := attempt.Run(runCtx)
			cancel()
			if err == nil {
				return result, true
			}

			log.Printf("[llm] %s failed (attempt %d/%d): %v", attempt.Name, try+1, attempt.Retries+1, err)
			if errors.Is(err, context.Canceled) {
				return def, false
			}
			if try < attempt.Retries {
				sleepBackoff(ctx, try)
			}
		}
	}
	return def, false
}

// sleepBackoff waits (try+1) seconds or until the context is done.
func sleepBackoff(ctx context.Context, try int) {
	timer := time.NewTimer(time.Duration(try+1) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
