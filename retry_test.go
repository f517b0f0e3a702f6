package llmprovider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 || p.BaseDelay != 500*time.Millisecond || p.MaxDelay != 20*time.Second {
		t.Errorf("unexpected defaults %+v", p)
	}
	if p.JitterFraction != 0.2 || p.MaxRetryAfter != 30*time.Second {
		t.Errorf("unexpected defaults %+v", p)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFraction: 0.5}

	tests := []struct {
		retry int
		base  time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{10, time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			got := p.Backoff(tt.retry)
			if got < tt.base || got > tt.base+tt.base/2 {
				t.Fatalf("Backoff(%d) = %v, want within [%v, %v]", tt.retry, got, tt.base, tt.base+tt.base/2)
			}
		}
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), nil, ProviderLorem, func(attempt int) error {
		calls++
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		if attempt < 3 {
			return NewStatusError(ProviderLorem, 503, "", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnFatalError(t *testing.T) {
	calls := 0
	fatal := NewStatusError(ProviderLorem, 400, "bad", nil)
	err := Retry(context.Background(), fastPolicy(5), nil, ProviderLorem, func(int) error {
		calls++
		return fatal
	})
	if err != fatal {
		t.Fatalf("expected the fatal error unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(2), nil, ProviderLorem, func(int) error {
		calls++
		return NewStatusError(ProviderLorem, 529, "", nil)
	})
	if !errors.Is(err, ErrOverloaded) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	header := http.Header{"Retry-After-Ms": {"30"}}
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Hour, MaxRetryAfter: time.Second}

	start := time.Now()
	calls := 0
	err := Retry(context.Background(), policy, nil, ProviderLorem, func(int) error {
		calls++
		if calls == 1 {
			return NewStatusError(ProviderLorem, 429, "", header)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond || elapsed > 10*time.Second {
		t.Errorf("expected the vendor hint to replace backoff, waited %v", elapsed)
	}
}

func TestRetry_RetryAfterBeyondLimitGivesUp(t *testing.T) {
	header := http.Header{"Retry-After": {"60"}}
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, MaxRetryAfter: time.Second}, nil, ProviderLorem, func(int) error {
		calls++
		return NewStatusError(ProviderLorem, 429, "", header)
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected to give up after 1 call, got %d", calls)
	}
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, policy, nil, ProviderLorem, func(int) error {
		calls++
		return NewStatusError(ProviderLorem, 503, "", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
