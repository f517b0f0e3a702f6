package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"

	llmprovider "github.com/haowjy/meridian-relay"
)

// produce drives one Anthropic stream.
//
// Anthropic stream events include:
// - MessageStart: message metadata and input token usage
// - ContentBlockStart: new block (text or tool_use with id and name)
// - ContentBlockDelta: text_delta or input_json_delta fragments
// - ContentBlockStop: block finished (tool calls are emitted here)
// - MessageDelta: stop_reason and output token usage
// - MessageStop: streaming complete
func (p *Provider) produce(client *anthropic.Client, req *request) llmprovider.ProduceFunc {
	return func(ctx context.Context, emit func(llmprovider.StreamChunk) error) (llmprovider.StreamSummary, error) {
		stream := client.Messages.NewStreaming(ctx, req.params, req.options...)
		defer stream.Close()

		var summary llmprovider.StreamSummary
		tools := llmprovider.NewToolCallAccumulator(p.logger)
		toolIDs := make(map[int64]string)
		finished := false

		for stream.Next() {
			event := stream.Current()

			switch e := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				summary.Model = string(e.Message.Model)
				summary.Usage.InputTokens = int(e.Message.Usage.InputTokens)

			case anthropic.ContentBlockStartEvent:
				if e.ContentBlock.Type == "tool_use" {
					toolIDs[e.Index] = e.ContentBlock.ID
					tools.Start(e.ContentBlock.ID, e.ContentBlock.Name)
				}

			case anthropic.ContentBlockDeltaEvent:
				switch e.Delta.Type {
				case "text_delta":
					if e.Delta.Text == "" {
						continue
					}
					if err := emit(llmprovider.StreamChunk{Text: e.Delta.Text}); err != nil {
						return summary, err
					}
				case "input_json_delta":
					if id, ok := toolIDs[e.Index]; ok {
						tools.Append(id, e.Delta.PartialJSON)
					}
				}

			case anthropic.ContentBlockStopEvent:
				id, ok := toolIDs[e.Index]
				if !ok {
					continue
				}
				delete(toolIDs, e.Index)
				if block, ok := tools.Finish(id); ok {
					if err := emit(llmprovider.StreamChunk{ToolUse: &block}); err != nil {
						return summary, err
					}
				}

			case anthropic.MessageDeltaEvent:
				if e.Delta.StopReason != "" {
					summary.StopReason = convertStopReason(e.Delta.StopReason)
					finished = true
				}
				summary.Usage.OutputTokens = int(e.Usage.OutputTokens)

			case anthropic.MessageStopEvent:
				finished = true
			}
		}

		if err := stream.Err(); err != nil {
			return summary, classifyError(err)
		}
		if !finished {
			return summary, llmprovider.WrapTransportError(p.ID(),
				fmt.Errorf("anthropic stream ended without message_stop: %w", io.ErrUnexpectedEOF))
		}

		// Blocks the server never closed
		for _, block := range tools.FinishAll() {
			if err := emit(llmprovider.StreamChunk{ToolUse: &block}); err != nil {
				return summary, err
			}
		}

		if summary.StopReason == "" {
			summary.StopReason = llmprovider.StopReasonEndTurn
		}
		if summary.Model == "" {
			summary.Model = req.model
		}
		return summary, nil
	}
}
