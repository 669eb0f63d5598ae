package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackChain_FirstAttemptWins(t *testing.T) {
	got, ok := FallbackChain(context.Background(), "default",
		Attempt[string]{Name: "primary", Run: func(ctx context.Context) (string, error) {
			return "primary-result", nil
		}},
		Attempt[string]{Name: "fallback", Run: func(ctx context.Context) (string, error) {
			t.Error("fallback should not run when primary succeeds")
			return "", nil
		}},
	)
	if !ok || got != "primary-result" {
		t.Errorf("expected primary-result, got %q ok=%v", got, ok)
	}
}

func TestFallbackChain_FallsThrough(t *testing.T) {
	calls := 0
	got, ok := FallbackChain(context.Background(), 0,
		Attempt[int]{Name: "primary", Retries: 1, Run: func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("provider down")
		}},
		Attempt[int]{Name: "fallback", Run: func(ctx context.Context) (int, error) {
			return 42, nil
		}},
	)
	if !ok || got != 42 {
		t.Errorf("expected 42 from fallback, got %d ok=%v", got, ok)
	}
	if calls != 2 {
		t.Errorf("expected primary to run twice (1 retry), ran %d times", calls)
	}
}

func TestFallbackChain_AllFailYieldsDefault(t *testing.T) {
	got, ok := FallbackChain(context.Background(), "the-default",
		Attempt[string]{Name: "only", Run: func(ctx context.Context) (string, error) {
			return "", errors.New("nope")
		}},
	)
	if ok {
		t.Error("expected ok=false when every attempt fails")
	}
	if got != "the-default" {
		t.Errorf("expected default value, got %q", got)
	}
}

func TestFallbackChain_PerAttemptTimeout(t *testing.T) {
	var sawErr error
	got, ok := FallbackChain(context.Background(), "",
		Attempt[string]{Name: "slow", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			sawErr = ctx.Err()
			return "", ctx.Err()
		}},
		Attempt[string]{Name: "fallback", Run: func(ctx context.Context) (string, error) {
			return "recovered", nil
		}},
	)
	if !errors.Is(sawErr, context.DeadlineExceeded) {
		t.Errorf("slow attempt should see a deadline, saw %v", sawErr)
	}
	if !ok || got != "recovered" {
		t.Errorf("a timed-out attempt must fall through, got %q ok=%v", got, ok)
	}
}

func TestFallbackChain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, ok := FallbackChain(ctx, "",
		Attempt[string]{Name: "never", Run: func(ctx context.Context) (string, error) {
			ran = true
			return "x", nil
		}},
	)
	if ok || ran {
		t.Error("cancelled context must short-circuit the chain")
	}
}
