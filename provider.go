package llmprovider

import (
	"context"
	"strings"
)

// Provider defines the interface that all LLM providers must implement.
// The Manager depends only on this interface, never on a concrete vendor type.
//
// Types used by this interface:
//   - ChatOptions, ThinkRequest: defined in request.go
//   - ChatResult: defined in response.go
//   - ChatStream: defined in streaming.go
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "gemini", "lorem")
	ID() ProviderID

	// Chat generates a complete response (blocking).
	// Transient failures are retried inside the adapter before being returned.
	Chat(ctx context.Context, opts *ChatOptions) (*ChatResult, error)

	// ChatStream opens a streaming response.
	// It returns only once the first chunk is available, so a failure before any
	// output is returned here and the caller may still fall back. Failures after
	// that are surfaced through the stream itself.
	//
	// Usage:
	//   stream, err := provider.ChatStream(ctx, opts)
	//   if err != nil { return err }
	//   defer stream.Close()
	//   for stream.Next() {
	//     chunk := stream.Current()
	//   }
	//   if err := stream.Err(); err != nil { handle partial output }
	//   usage, _ := stream.Usage()
	ChatStream(ctx context.Context, opts *ChatOptions) (*ChatStream, error)

	// Think is a single-turn convenience wrapper over Chat returning only text.
	Think(ctx context.Context, req ThinkRequest) (string, error)

	// IsAvailable must be cheap and side-effect free (credential presence check).
	IsAvailable() bool

	// GetModels returns the tier→model table currently in effect.
	GetModels() map[Tier]string
}

// Think runs req through p.Chat and returns the trimmed text.
// Adapters use it to implement Provider.Think.
func Think(ctx context.Context, p Provider, req ThinkRequest) (string, error) {
	result, err := p.Chat(ctx, req.ChatOptions())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}
