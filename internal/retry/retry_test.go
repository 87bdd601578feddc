package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"browsercore/internal/coreerr"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	e := New(2, 5, time.Second, nil)
	calls := 0

	outcome := e.Do(context.Background(), "click", -1, func(ctx context.Context) error {
		calls++
		return nil
	}, nil, nil)

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	e := New(2, 5, time.Second, nil)
	calls := 0

	outcome := e.Do(context.Background(), "click", 2, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return coreerr.New(coreerr.Timeout, "slow page")
		}
		return nil
	}, nil, nil)

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoDoesNotRetryNonRetryableError(t *testing.T) {
	e := New(3, 5, time.Second, nil)
	calls := 0

	outcome := e.Do(context.Background(), "click", 3, func(ctx context.Context) error {
		calls++
		return coreerr.New(coreerr.InvalidInput, "bad args")
	}, nil, nil)

	if outcome.Err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestDoRunsVerifierAndRetriesOnVerificationFailure(t *testing.T) {
	e := New(2, 5, time.Second, nil)
	verifyCalls := 0

	outcome := e.Do(context.Background(), "type_text", 2, func(ctx context.Context) error {
		return nil
	}, func(ctx context.Context) error {
		verifyCalls++
		if verifyCalls < 2 {
			return errors.New("field still empty")
		}
		return nil
	}, nil)

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if !outcome.Verified {
		t.Fatal("expected Verified true")
	}
	if verifyCalls != 2 {
		t.Fatalf("expected 2 verify calls, got %d", verifyCalls)
	}
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	e := New(0, 2, time.Minute, nil)

	for i := 0; i < 2; i++ {
		e.Do(context.Background(), "navigate_to_url", 0, func(ctx context.Context) error {
			return coreerr.New(coreerr.NavigationError, "dns failure")
		}, nil, nil)
	}

	if !e.IsOpen("navigate_to_url") {
		t.Fatal("expected circuit to be open after consecutive failures")
	}
}

func TestDoRunsRecoveryOnceForRecoverableError(t *testing.T) {
	e := New(2, 5, time.Second, nil)
	calls := 0
	recoveries := 0

	outcome := e.Do(context.Background(), "click", 2, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return coreerr.New(coreerr.NotFound, "element not found")
		}
		return nil
	}, nil, func(ctx context.Context) error {
		recoveries++
		return nil
	})

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if recoveries != 1 {
		t.Fatalf("expected exactly 1 recovery attempt, got %d", recoveries)
	}
}

func TestDoRecoversOnlyOncePerCall(t *testing.T) {
	e := New(3, 5, time.Second, nil)
	recoveries := 0

	outcome := e.Do(context.Background(), "click", 3, func(ctx context.Context) error {
		return coreerr.New(coreerr.NotFound, "element not found")
	}, nil, func(ctx context.Context) error {
		recoveries++
		return nil
	})

	if outcome.Err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if recoveries != 1 {
		t.Fatalf("expected recovery to run exactly once even across multiple failed attempts, got %d", recoveries)
	}
}
