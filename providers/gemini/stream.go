package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/internal/httpx"
)

// produce drives one Gemini SSE stream.
//
// Each event is a complete generateContentResponse whose parts are deltas
// relative to the previous event. Function calls arrive whole inside a single
// event; the finish reason and usage arrive with the last one.
func (p *Provider) produce(apiKey string, req *request) llmprovider.ProduceFunc {
	return func(ctx context.Context, emit func(llmprovider.StreamChunk) error) (llmprovider.StreamSummary, error) {
		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, req.model)

		resp, err := httpx.PostJSON(ctx, p.httpClient, p.ID(), url, req.body, authHeader(apiKey, true))
		if err != nil {
			return llmprovider.StreamSummary{}, err
		}
		defer resp.Body.Close()

		summary := llmprovider.StreamSummary{Model: req.model}
		scanner := httpx.NewSSEScanner(resp.Body)
		finishReason := ""
		sawToolCall := false

		for {
			data, err := scanner.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return summary, llmprovider.WrapTransportError(p.ID(), err)
			}

			var event generateContentResponse
			if err := unmarshal([]byte(data), &event); err != nil {
				return summary, fmt.Errorf("failed to parse Gemini stream event: %w", err)
			}

			if event.ModelVersion != "" {
				summary.Model = event.ModelVersion
			}
			if event.UsageMetadata != nil {
				summary.Usage.InputTokens = event.UsageMetadata.PromptTokenCount
				summary.Usage.OutputTokens = event.UsageMetadata.CandidatesTokenCount
			}

			if len(event.Candidates) == 0 {
				if event.PromptFeedback != nil && event.PromptFeedback.BlockReason != "" {
					return summary, blockedError(event.PromptFeedback.BlockReason)
				}
				continue
			}

			candidate := event.Candidates[0]
			if candidate.Content != nil {
				for _, pt := range candidate.Content.Parts {
					chunk := llmprovider.StreamChunk{Text: pt.Text}
					if pt.FunctionCall != nil {
						block := p.parseFunctionCall(pt.FunctionCall)
						chunk.ToolUse = &block
						sawToolCall = true
					}
					if chunk.Text == "" && chunk.ToolUse == nil {
						continue
					}
					if err := emit(chunk); err != nil {
						return summary, err
					}
				}
			}

			if candidate.FinishReason != "" {
				finishReason = candidate.FinishReason
			}
		}

		if finishReason == "" {
			return summary, llmprovider.WrapTransportError(p.ID(),
				fmt.Errorf("gemini stream ended without a finish reason: %w", io.ErrUnexpectedEOF))
		}

		summary.StopReason = convertFinishReason(finishReason, sawToolCall)
		return summary, nil
	}
}
