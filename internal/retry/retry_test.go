package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2,
		Jitter:       false,
	}
}

func TestDo_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if result.Err != nil {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientFailuresUntilSuccess(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.Err != nil {
		t.Fatalf("expected eventual success, got %v", result.Err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsImmediatelyOnPermanentError(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad request")
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return Permanent(sentinel)
	})
	if calls != 1 {
		t.Fatalf("expected 1 call before giving up, got %d", calls)
	}
	if !errors.Is(result.Err, sentinel) {
		t.Fatalf("expected wrapped sentinel to be visible via errors.Is, got %v", result.Err)
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("always fails")
	})
	if calls != 3 {
		t.Fatalf("expected MaxAttempts calls (3), got %d", calls)
	}
	if result.Err == nil {
		t.Fatal("expected a final error")
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	result := Do(ctx, fastConfig(), func() error {
		calls++
		return errors.New("fails")
	})
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", result.Err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls once context is already cancelled, got %d", calls)
	}
}

func TestDoWithValue_ReturnsValueOnSuccess(t *testing.T) {
	value, result := DoWithValue(context.Background(), fastConfig(), func() (string, error) {
		return "ok", nil
	})
	if result.Err != nil {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if value != "ok" {
		t.Fatalf("expected value %q, got %q", "ok", value)
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(errors.New("plain")) {
		t.Fatal("expected plain error to not be permanent")
	}
	if !IsPermanent(Permanent(errors.New("boom"))) {
		t.Fatal("expected wrapped error to be permanent")
	}
	if Permanent(nil) != nil {
		t.Fatal("expected Permanent(nil) to return nil")
	}
}

func TestCalendarConfig_MatchesSpecDefaults(t *testing.T) {
	cfg := CalendarConfig()
	if cfg.MaxAttempts != 5 || cfg.InitialDelay != 500*time.Millisecond || cfg.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected calendar retry config: %+v", cfg)
	}
}

func TestMessagingConfig_MatchesSpecDefaults(t *testing.T) {
	cfg := MessagingConfig()
	if cfg.MaxAttempts != 4 {
		t.Fatalf("expected 4 max attempts (3 retries), got %d", cfg.MaxAttempts)
	}
}
