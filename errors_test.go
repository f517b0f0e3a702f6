package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestNewStatusError_Classification(t *testing.T) {
	tests := []struct {
		status       int
		message      string
		wantCode     ErrorCode
		wantErr      error
		fallbackable bool
	}{
		{400, "bad field", ErrorCodeInvalidRequest, ErrInvalidRequest, false},
		{401, "", ErrorCodeAuthentication, ErrInvalidAPIKey, false},
		{403, "", ErrorCodeAuthentication, ErrInvalidAPIKey, false},
		{404, "", ErrorCodeNotFound, ErrInvalidModel, false},
		{408, "", ErrorCodeTimeout, ErrTimeout, true},
		{429, "", ErrorCodeRateLimited, ErrRateLimited, true},
		{500, "", ErrorCodeServer, ErrProviderUnavailable, false},
		{502, "", ErrorCodeProviderUnavailable, ErrProviderUnavailable, true},
		{503, "", ErrorCodeProviderUnavailable, ErrProviderUnavailable, true},
		{504, "", ErrorCodeTimeout, ErrTimeout, true},
		{529, "", ErrorCodeOverloaded, ErrOverloaded, true},
		{400, "Output blocked by content policy", ErrorCodeContentPolicy, ErrContentPolicy, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.status, tt.message), func(t *testing.T) {
			err := NewStatusError(ProviderAnthropic, tt.status, tt.message, nil)
			if err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", err.Code, tt.wantCode)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected errors.Is(%v)", tt.wantErr)
			}
			if IsFallbackable(err) != tt.fallbackable {
				t.Errorf("IsFallbackable() = %v, want %v", IsFallbackable(err), tt.fallbackable)
			}
			if err.Message == "" {
				t.Error("expected a default message")
			}
		})
	}
}

func TestNewStatusError_RetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")

	err := NewStatusError(ProviderGemini, 429, "slow down", header)
	hint, ok := RetryAfterOf(err)
	if !ok || hint != 7*time.Second {
		t.Errorf("RetryAfterOf() = %v, %v", hint, ok)
	}

	wrapped := fmt.Errorf("chat: %w", err)
	if hint, ok := RetryAfterOf(wrapped); !ok || hint != 7*time.Second {
		t.Errorf("hint must survive wrapping, got %v, %v", hint, ok)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
		ok     bool
	}{
		{"nil header", nil, 0, false},
		{"absent", http.Header{}, 0, false},
		{"seconds", http.Header{"Retry-After": {"3"}}, 3 * time.Second, true},
		{"milliseconds first", http.Header{"Retry-After-Ms": {"250"}, "Retry-After": {"3"}}, 250 * time.Millisecond, true},
		{"http date", http.Header{"Retry-After": {now.Add(90 * time.Second).Format(http.TimeFormat)}}, 90 * time.Second, true},
		{"past date", http.Header{"Retry-After": {now.Add(-time.Minute).Format(http.TimeFormat)}}, 0, true},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.header, now)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseRetryAfter() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRetryable_OverloadText(t *testing.T) {
	badRequest := NewStatusError(ProviderAnthropic, 400, "prompt mentions overloaded servers", nil)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bare client error", errors.New("upstream overloaded, try later"), true},
		{"status error", badRequest, false},
		{"wrapped status error", fmt.Errorf("chat: %w", badRequest), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapTransportError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"timeout", timeoutError{}, true},
		{"reset by message", errors.New("connection reset by peer"), true},
		{"other", errors.New("tls: bad certificate"), false},
		{"overload text is not a transport failure", errors.New("server overloaded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapTransportError(ProviderOpenRouter, tt.err)
			var pe *ProviderError
			if !errors.As(err, &pe) || pe.Code != ErrorCodeNetwork {
				t.Fatalf("expected network ProviderError, got %v", err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.retryable)
			}
			if !errors.Is(err, tt.err) {
				t.Error("transport cause must stay reachable")
			}
		})
	}

	if err := WrapTransportError(ProviderOpenRouter, context.Canceled); err != context.Canceled {
		t.Errorf("cancellation must pass through, got %v", err)
	}
	classified := NewStatusError(ProviderOpenRouter, 503, "", nil)
	if err := WrapTransportError(ProviderOpenRouter, classified); err != classified {
		t.Errorf("classified errors must pass through, got %v", err)
	}
	if WrapTransportError(ProviderOpenRouter, nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"rate limited", NewStatusError(ProviderLorem, 429, "", nil), ClassTransient},
		{"bare sentinel", ErrOverloaded, ClassTransient},
		{"auth", MissingCredentialError(ProviderLorem, "LOREM_KEY"), ClassFatal},
		{"canceled", context.Canceled, ClassFatal},
		{"schema", &SchemaError{Tool: "t", Parameter: "p", Type: "date"}, ClassFatal},
		{"partial", &PartialStreamError{Provider: ProviderLorem, Chunks: 2, Err: ErrRateLimited}, ClassPartial},
		{"decode", &DecodeWarning{ToolCallID: "t1", Err: errors.New("bad json")}, ClassDecoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExhaustedError(t *testing.T) {
	last := NewStatusError(ProviderGemini, 503, "down", nil)
	err := &ExhaustedError{Attempts: []Attempt{
		{Provider: ProviderAnthropic, Err: NewStatusError(ProviderAnthropic, 529, "busy", nil)},
		{Provider: ProviderGemini, Err: last},
	}}

	if !IsExhausted(err) {
		t.Error("expected ErrAllProvidersFailed")
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Error("expected last cause to be reachable")
	}
	if err.Last() != last {
		t.Error("Last() must return the final attempt")
	}
	if IsFallbackable(err) {
		t.Error("exhaustion is not fallbackable")
	}
}

func TestPartialStreamError(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := &PartialStreamError{Provider: ProviderAnthropic, Chunks: 4, Err: cause}

	if !IsPartialDelivery(err) || !errors.Is(err, cause) {
		t.Errorf("expected partial delivery wrapping cause, got %v", err)
	}
	if IsFallbackable(err) {
		t.Error("partial streams must never fall back")
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(NewStatusError(ProviderAnthropic, 401, "", nil)) {
		t.Error("401 is an auth error")
	}
	if !IsAuthError(MissingCredentialError(ProviderAnthropic, "ANTHROPIC_API_KEY")) {
		t.Error("missing credential is an auth error")
	}
	if IsAuthError(NewStatusError(ProviderAnthropic, 429, "", nil)) || IsAuthError(nil) {
		t.Error("unexpected auth error")
	}
}
