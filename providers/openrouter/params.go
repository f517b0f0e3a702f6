package openrouter

import (
	"fmt"

	"github.com/bytedance/sonic"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/internal/httpx"
)

// ChatCompletionRequest represents an OpenRouter chat completion request.
// OpenRouter uses OpenAI-compatible format.
type ChatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`
}

// StreamOptions asks for a final usage chunk on streamed responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message represents a message in the conversation.
type Message struct {
	Role       string     `json:"role"`              // "system", "user", "assistant", "tool"
	Content    any        `json:"content,omitempty"` // string or []ContentPart
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For role:"tool" messages
}

// ContentPart represents a part of multimodal content.
type ContentPart struct {
	Type     string    `json:"type"` // "text", "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in content.
type ImageURL struct {
	URL string `json:"url"`
}

// ToolCall represents a function call in assistant messages.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // Streaming only - index of this tool call in the array
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function details of a tool call.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string
}

// Tool represents a function tool definition.
type Tool struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition represents a function tool definition.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ChatCompletionResponse represents an OpenRouter chat completion response (non-streaming).
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice in the response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
}

// Usage represents token usage in the response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// request is a fully built API call, shared between Chat and ChatStream.
type request struct {
	model string
	body  []byte
}

// buildRequest constructs the OpenRouter request body from ChatOptions.
// This function is shared between Chat and ChatStream to avoid duplication.
func (p *Provider) buildRequest(opts *llmprovider.ChatOptions, stream bool) (*request, error) {
	if opts == nil {
		return nil, &llmprovider.ValidationError{Field: "options", Reason: "chat options are required", Err: llmprovider.ErrInvalidRequest}
	}

	model, err := p.resolveModel(opts.Tier)
	if err != nil {
		return nil, err
	}

	payload, err := llmprovider.ToWireFormat(opts.SystemPrompt, opts.Messages, dialect)
	if err != nil {
		return nil, err
	}

	messages, err := convertMessages(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	tools, err := convertTools(opts.Tools)
	if err != nil {
		return nil, err
	}

	chatReq := ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: p.tiers.ClampMaxTokens(llmprovider.ProviderOpenRouter, model, opts.GetMaxOutputTokens()),
		Stream:    stream,
		Tools:     tools,
	}
	if stream {
		chatReq.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	body, err := sonic.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err = httpx.MergeOptions(body, opts.ProviderOptions)
	if err != nil {
		return nil, err
	}

	return &request{model: model, body: body}, nil
}
