package openrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/internal/httpx"
)

// ChatCompletionChunk represents a streaming chunk from OpenRouter.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta represents incremental updates in a chunk.
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   *string    `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// produce drives one OpenRouter SSE stream.
//
// Tool calls arrive as fragments keyed by their index in the tool_calls array;
// only the first fragment of a call carries its id and name. Calls are emitted
// once the finish reason arrives.
func (p *Provider) produce(apiKey string, req *request) llmprovider.ProduceFunc {
	return func(ctx context.Context, emit func(llmprovider.StreamChunk) error) (llmprovider.StreamSummary, error) {
		resp, err := httpx.PostJSON(ctx, p.httpClient, p.ID(), p.baseURL+"/chat/completions", req.body, p.header(apiKey, true))
		if err != nil {
			return llmprovider.StreamSummary{}, err
		}
		defer resp.Body.Close()

		summary := llmprovider.StreamSummary{Model: req.model}
		scanner := httpx.NewSSEScanner(resp.Body)
		tools := llmprovider.NewToolCallAccumulator(p.logger)
		toolIDs := make(map[int]string) // index -> call id
		finishReason := ""

		flushTools := func() error {
			for _, block := range tools.FinishAll() {
				if err := emit(llmprovider.StreamChunk{ToolUse: &block}); err != nil {
					return err
				}
			}
			return nil
		}

		for {
			data, err := scanner.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return summary, llmprovider.WrapTransportError(p.ID(), err)
			}

			// Errors after the response started arrive as an event
			if streamErr := gjson.Get(data, "error"); streamErr.Exists() {
				return summary, p.streamError(streamErr)
			}

			var chunk ChatCompletionChunk
			if err := sonic.UnmarshalString(data, &chunk); err != nil {
				// Ignore unparseable chunks (might be keep-alive or other messages)
				p.logger.Debug("skipping unparseable stream event", zap.Error(err))
				continue
			}

			if chunk.Model != "" {
				summary.Model = chunk.Model
			}
			if chunk.Usage != nil {
				summary.Usage.InputTokens = chunk.Usage.PromptTokens
				summary.Usage.OutputTokens = chunk.Usage.CompletionTokens
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != nil && *choice.Delta.Content != "" {
				if err := emit(llmprovider.StreamChunk{Text: *choice.Delta.Content}); err != nil {
					return summary, err
				}
			}

			for i, tc := range choice.Delta.ToolCalls {
				index := i
				if tc.Index != nil {
					index = *tc.Index
				}
				id, known := toolIDs[index]
				if !known {
					id = tc.ID
					if id == "" {
						id = "call_" + strconv.Itoa(index)
					}
					toolIDs[index] = id
				}
				tools.Start(id, tc.Function.Name)
				if tc.Function.Arguments != "" {
					tools.Append(id, tc.Function.Arguments)
				}
			}

			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finishReason = *choice.FinishReason
				if err := flushTools(); err != nil {
					return summary, err
				}
			}
		}

		if finishReason == "" {
			return summary, llmprovider.WrapTransportError(p.ID(),
				fmt.Errorf("openrouter stream ended without a finish reason: %w", io.ErrUnexpectedEOF))
		}

		summary.StopReason = mapFinishReason(finishReason, len(toolIDs) > 0)
		return summary, nil
	}
}

// streamError classifies an in-band error event. OpenRouter reports the
// upstream HTTP status in error.code.
func (p *Provider) streamError(event gjson.Result) error {
	message := event.Get("message").String()
	if message == "" {
		message = event.Raw
	}
	code := int(event.Get("code").Int())
	if code < 400 {
		code = 502
	}
	return llmprovider.NewStatusError(p.ID(), code, message, nil)
}
