package lorem

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	llmprovider "github.com/haowjy/meridian-relay"
)

func chatOptions(text string) *llmprovider.ChatOptions {
	return &llmprovider.ChatOptions{
		Messages: []llmprovider.ProviderMessage{{Role: llmprovider.RoleUser, Content: text}},
	}
}

func TestProvider_ID(t *testing.T) {
	provider := NewProvider()
	if provider.ID() != "lorem" {
		t.Errorf("expected provider id 'lorem', got '%s'", provider.ID())
	}
}

func TestProvider_GetModels(t *testing.T) {
	provider := NewProvider(WithModels(map[llmprovider.Tier]string{llmprovider.TierOpus: "lorem-cutoff"}))

	models := provider.GetModels()
	tests := []struct {
		tier     llmprovider.Tier
		expected string
	}{
		{llmprovider.TierFlash, "lorem-fast"},
		{llmprovider.TierSonnet, "lorem-medium"},
		{llmprovider.TierOpus, "lorem-cutoff"},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			if models[tt.tier] != tt.expected {
				t.Errorf("GetModels()[%s] = %q, want %q", tt.tier, models[tt.tier], tt.expected)
			}
		})
	}
}

func TestProvider_Chat(t *testing.T) {
	provider := NewProvider(WithDelay(0), WithWords(12))

	res, err := provider.Chat(context.Background(), chatOptions("Hello, test!"))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got := len(strings.Fields(res.Text)); got != 12 {
		t.Errorf("expected 12 words, got %d", got)
	}
	if res.Provider != llmprovider.ProviderLorem || res.Model != "lorem-medium" {
		t.Errorf("unexpected provider/model %s/%s", res.Provider, res.Model)
	}
	if res.InputTokens != 2 || res.OutputTokens != 12 {
		t.Errorf("unexpected usage %d/%d", res.InputTokens, res.OutputTokens)
	}
	if res.StopReason != llmprovider.StopReasonEndTurn {
		t.Errorf("expected end_turn, got %s", res.StopReason)
	}
}

func TestProvider_ChatMaxTokensCutoff(t *testing.T) {
	provider := NewProvider(WithDelay(0), WithWords(50))

	opts := chatOptions("hi")
	opts.MaxOutputTokens = 5
	res, err := provider.Chat(context.Background(), opts)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.StopReason != llmprovider.StopReasonMaxTokens {
		t.Errorf("expected max_tokens, got %s", res.StopReason)
	}
	if got := len(strings.Fields(res.Text)); got != 5 {
		t.Errorf("expected 5 words, got %d", got)
	}
}

func TestProvider_ChatWithTools(t *testing.T) {
	provider := NewProvider(WithDelay(0), WithWords(3))

	opts := chatOptions("find it")
	opts.Tools = []llmprovider.ToolDefinition{{
		Name: "search_files",
		Parameters: []llmprovider.ToolParameter{
			{Name: "query", Type: llmprovider.ParamString, Required: true},
			{Name: "mode", Enum: []string{"fast", "deep"}},
		},
	}}

	res, err := provider.Chat(context.Background(), opts)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.StopReason != llmprovider.StopReasonToolUse {
		t.Fatalf("expected tool_use, got %s", res.StopReason)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "search_files" {
		t.Fatalf("unexpected tool calls %+v", res.ToolCalls)
	}
	if res.ToolCalls[0].Input["mode"] != "fast" {
		t.Errorf("expected first enum value, got %v", res.ToolCalls[0].Input["mode"])
	}
}

func TestProvider_ScriptedFailures(t *testing.T) {
	overloaded := llmprovider.NewStatusError(llmprovider.ProviderLorem, 529, "overloaded", nil)
	provider := NewProvider(WithDelay(0), WithFailures(overloaded))

	_, err := provider.Chat(context.Background(), chatOptions("hi"))
	if !errors.Is(err, llmprovider.ErrOverloaded) {
		t.Fatalf("expected scripted failure, got %v", err)
	}

	if _, err := provider.Chat(context.Background(), chatOptions("hi")); err != nil {
		t.Fatalf("second call should succeed, got %v", err)
	}
	if provider.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", provider.Calls())
	}
}

func TestProvider_ScriptedFailureRetried(t *testing.T) {
	unavailable := llmprovider.NewStatusError(llmprovider.ProviderLorem, 503, "unavailable", nil)
	provider := NewProvider(
		WithDelay(0),
		WithFailures(unavailable),
		WithRetryPolicy(llmprovider.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
	)

	if _, err := provider.Chat(context.Background(), chatOptions("hi")); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if provider.Calls() != 2 {
		t.Errorf("expected 2 attempts, got %d", provider.Calls())
	}
}

func TestProvider_ChatStream(t *testing.T) {
	provider := NewProvider(WithDelay(0), WithWords(10))

	stream, err := provider.ChatStream(context.Background(), chatOptions("stream please"))
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	defer stream.Close()

	if _, err := stream.Usage(); !errors.Is(err, llmprovider.ErrUsageUnavailable) {
		t.Errorf("expected usage unavailable before completion, got %v", err)
	}

	chunks := 0
	done := 0
	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Done {
			done++
			continue
		}
		chunks++
		text.WriteString(chunk.Text)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error = %v", err)
	}

	if chunks != 10 || done != 1 {
		t.Errorf("expected 10 chunks and 1 terminal chunk, got %d and %d", chunks, done)
	}
	if got := len(strings.Fields(text.String())); got != 10 {
		t.Errorf("expected 10 words, got %d", got)
	}
	usage, err := stream.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.OutputTokens != 10 {
		t.Errorf("expected 10 output tokens, got %d", usage.OutputTokens)
	}
}

func TestProvider_ChatStreamFailsBeforeFirstChunk(t *testing.T) {
	boom := llmprovider.NewStatusError(llmprovider.ProviderLorem, 502, "bad gateway", nil)
	provider := NewProvider(WithDelay(0), WithStreamFailure(0, boom))

	_, err := provider.ChatStream(context.Background(), chatOptions("hi"))
	if !errors.Is(err, llmprovider.ErrProviderUnavailable) {
		t.Fatalf("expected synchronous failure, got %v", err)
	}
}

func TestProvider_ChatStreamFailsMidway(t *testing.T) {
	boom := errors.New("connection reset by peer")
	provider := NewProvider(WithDelay(0), WithWords(10), WithStreamFailure(3, boom))

	stream, err := provider.ChatStream(context.Background(), chatOptions("hi"))
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	defer stream.Close()

	chunks := 0
	for stream.Next() {
		if stream.Current().Done {
			t.Fatal("failed stream must not emit a terminal chunk")
		}
		chunks++
	}
	if chunks != 3 {
		t.Errorf("expected 3 chunks before failure, got %d", chunks)
	}
	if !errors.Is(stream.Err(), boom) {
		t.Errorf("expected stream error, got %v", stream.Err())
	}
}

func TestProvider_ChatStreamCancellation(t *testing.T) {
	provider := NewProvider(WithDelay(50*time.Millisecond), WithWords(100))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := provider.ChatStream(ctx, chatOptions("hi"))
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	defer stream.Close()

	if !stream.Next() {
		t.Fatal("expected first chunk")
	}
	cancel()

	for stream.Next() {
	}
	if !errors.Is(stream.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", stream.Err())
	}
}

func TestProvider_SetAvailable(t *testing.T) {
	provider := NewProvider()
	if !provider.IsAvailable() {
		t.Fatal("expected available by default")
	}
	provider.SetAvailable(false)
	if provider.IsAvailable() {
		t.Fatal("expected unavailable after SetAvailable(false)")
	}
}

func TestProvider_Think(t *testing.T) {
	provider := NewProvider(WithDelay(0), WithWords(4))

	text, err := provider.Think(context.Background(), llmprovider.ThinkRequest{Prompt: "summarize"})
	if err != nil {
		t.Fatalf("Think() error = %v", err)
	}
	if got := len(strings.Fields(text)); got != 4 {
		t.Errorf("expected 4 words, got %d", got)
	}
}
