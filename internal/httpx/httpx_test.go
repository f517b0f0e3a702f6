package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	llmprovider "github.com/haowjy/meridian-relay"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"anthropic", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "Overloaded"},
		{"gemini array", `[{"error":{"code":429,"message":"Resource exhausted"}}]`, "Resource exhausted"},
		{"top-level message", `{"message":"bad key"}`, "bad key"},
		{"string error", `{"error":"nope"}`, "nope"},
		{"plain text", "  upstream connect error  ", "upstream connect error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", 2*maxErrorMessage)
	if got := ErrorMessage([]byte(long)); len(got) != maxErrorMessage+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated message, got %d bytes", len(got))
	}
}

func TestMergeOptions(t *testing.T) {
	body := []byte(`{"model":"m","generationConfig":{"maxOutputTokens":10}}`)

	merged, err := MergeOptions(body, map[string]any{
		"temperature":           0.3,
		"generationConfig.topK": 40,
	})
	if err != nil {
		t.Fatalf("MergeOptions() error = %v", err)
	}
	if gjson.GetBytes(merged, "temperature").Float() != 0.3 {
		t.Errorf("temperature not merged: %s", merged)
	}
	if gjson.GetBytes(merged, "generationConfig.topK").Int() != 40 || gjson.GetBytes(merged, "generationConfig.maxOutputTokens").Int() != 10 {
		t.Errorf("nested merge lost fields: %s", merged)
	}

	same, err := MergeOptions(body, nil)
	if err != nil || string(same) != string(body) {
		t.Errorf("empty options must leave the body as is")
	}

	if _, err := MergeOptions(body, map[string]any{"": 1}); !llmprovider.IsInvalidRequest(err) {
		t.Errorf("expected invalid request for bad path, got %v", err)
	}
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-Test") != "yes" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, `{"ok":true}`)
		case "/limited":
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"slow down"}}`)
		}
	}))
	defer server.Close()

	header := http.Header{"X-Test": {"yes"}}

	resp, err := PostJSON(context.Background(), server.Client(), llmprovider.ProviderGemini, server.URL+"/ok", []byte(`{}`), header)
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	body, err := ReadBody(llmprovider.ProviderGemini, resp)
	if err != nil || string(body) != `{"ok":true}` {
		t.Errorf("ReadBody() = %s, %v", body, err)
	}

	_, err = PostJSON(context.Background(), server.Client(), llmprovider.ProviderGemini, server.URL+"/limited", []byte(`{}`), header)
	var pe *llmprovider.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 429 || pe.Message != "slow down" {
		t.Fatalf("expected classified 429, got %v", err)
	}
	if hint, ok := llmprovider.RetryAfterOf(err); !ok || hint.Seconds() != 2 {
		t.Errorf("expected retry hint, got %v", hint)
	}
}

func TestPostJSON_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := PostJSON(context.Background(), nil, llmprovider.ProviderOpenRouter, url, []byte(`{}`), nil)
	if !llmprovider.IsFallbackable(err) {
		t.Errorf("connection refused should be fallbackable, got %v", err)
	}
}

func TestSSEScanner(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"",
		"event: message",
		"data: {\"a\":1}",
		"",
		"data: line one",
		"data: line two",
		"",
		"",
		"data: [DONE]",
		"",
		"data: never read",
		"",
	}, "\n")

	s := NewSSEScanner(strings.NewReader(input))

	want := []string{`{"a":1}`, "line one\nline two"}
	for _, w := range want {
		got, err := s.Next()
		if err != nil || got != w {
			t.Fatalf("Next() = %q, %v; want %q", got, err, w)
		}
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF at [DONE], got %v", err)
	}
}

func TestSSEScanner_TrailingEventWithoutBlankLine(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: last"))

	if got, err := s.Next(); err != nil || got != "last" {
		t.Fatalf("Next() = %q, %v", got, err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestSSEScanner_LongLines(t *testing.T) {
	payload := strings.Repeat("a", 200*1024)
	s := NewSSEScanner(strings.NewReader("data: " + payload + "\n\n"))

	got, err := s.Next()
	if err != nil || len(got) != len(payload) {
		t.Errorf("expected %d bytes, got %d (%v)", len(payload), len(got), err)
	}
}
