package lorem

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	llmprovider "github.com/haowjy/meridian-relay"
)

// plan is one generated response.
type plan struct {
	words      []string
	toolCall   *llmprovider.ToolUseBlock
	toolJSON   string
	stopReason llmprovider.StopReason
}

// outputTokens uses word count as a proxy, plus 1 token per 4 chars of tool JSON.
func (pl *plan) outputTokens() int {
	return len(pl.words) + len(pl.toolJSON)/4
}

// plan generates the words and, when tools are offered, a call to the first one.
func (p *Provider) plan(req *request) *plan {
	pl := &plan{stopReason: llmprovider.StopReasonEndTurn}

	n := p.words
	if n > req.maxTokens {
		n = req.maxTokens
		pl.stopReason = llmprovider.StopReasonMaxTokens
	}
	pl.words = p.generateWords(n)

	if len(req.tools) > 0 && pl.stopReason == llmprovider.StopReasonEndTurn {
		tool := req.tools[0]
		input := mockInput(tool.Parameters)
		pl.toolJSON, _ = sonic.ConfigStd.MarshalToString(input)
		pl.toolCall = &llmprovider.ToolUseBlock{
			ID:       fmt.Sprintf("toolu_%s_%d", tool.Name, p.Calls()),
			Name:     tool.Name,
			Input:    input,
			RawInput: pl.toolJSON,
		}
		pl.stopReason = llmprovider.StopReasonToolUse
	}

	return pl
}

// produce streams a plan: one chunk per word, then the tool call, whose JSON
// is fed through a ToolCallAccumulator in small fragments the way vendor
// streams deliver it.
func (p *Provider) produce(req *request) llmprovider.ProduceFunc {
	return func(ctx context.Context, emit func(llmprovider.StreamChunk) error) (llmprovider.StreamSummary, error) {
		pl := p.plan(req)
		delay := p.wordDelay(req.model)
		delivered := 0

		send := func(chunk llmprovider.StreamChunk) error {
			if p.streamErr != nil && delivered >= p.streamFailAfter {
				return p.streamErr
			}
			if err := emit(chunk); err != nil {
				return err
			}
			delivered++
			return nil
		}

		for i, word := range pl.words {
			if err := wait(ctx, delay); err != nil {
				return llmprovider.StreamSummary{}, err
			}
			if i > 0 {
				word = " " + word
			}
			if err := send(llmprovider.StreamChunk{Text: word}); err != nil {
				return llmprovider.StreamSummary{}, err
			}
		}

		if pl.toolCall != nil {
			acc := llmprovider.NewToolCallAccumulator(p.logger)
			acc.Start(pl.toolCall.ID, pl.toolCall.Name)
			for _, fragment := range fragments(pl.toolJSON, 8) {
				acc.Append(pl.toolCall.ID, fragment)
			}
			block, _ := acc.Finish(pl.toolCall.ID)
			if err := send(llmprovider.StreamChunk{ToolUse: &block}); err != nil {
				return llmprovider.StreamSummary{}, err
			}
		}

		// A failure scheduled after the last chunk still fails the stream
		if p.streamErr != nil && delivered >= p.streamFailAfter {
			return llmprovider.StreamSummary{}, p.streamErr
		}

		return llmprovider.StreamSummary{
			Usage: llmprovider.Usage{
				InputTokens:  req.inputTokens,
				OutputTokens: pl.outputTokens(),
			},
			StopReason: pl.stopReason,
			Model:      req.model,
		}, nil
	}
}

// generateWords generates exactly n lorem ipsum words.
func (p *Provider) generateWords(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	words := make([]string, 0, n)
	for len(words) < n {
		// Generate sentence with 5-15 words
		sentence := strings.Fields(p.generator.Sentence(5, 15))
		words = append(words, sentence...)
	}
	return words[:n]
}

// mockInput builds arguments that satisfy the tool's parameter schema.
func mockInput(params []llmprovider.ToolParameter) map[string]any {
	input := make(map[string]any, len(params))
	for _, param := range params {
		input[param.Name] = mockValue(param)
	}
	return input
}

func mockValue(param llmprovider.ToolParameter) any {
	if len(param.Enum) > 0 {
		return param.Enum[0]
	}
	switch param.Type {
	case llmprovider.ParamNumber:
		return 1.5
	case llmprovider.ParamInteger:
		return 3
	case llmprovider.ParamBoolean:
		return true
	case llmprovider.ParamArray:
		if param.Items != nil {
			return []any{mockValue(*param.Items)}
		}
		return []any{}
	case llmprovider.ParamObject:
		return mockInput(param.Properties)
	default:
		return "lorem ipsum"
	}
}

// fragments splits s into pieces of at most size bytes.
func fragments(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// estimateTokens estimates the input token count from the wire payload.
// Uses word count as a rough approximation.
func estimateTokens(payload *llmprovider.WirePayload) int {
	total := len(strings.Fields(payload.System))
	for _, msg := range payload.Messages {
		for _, part := range msg.Parts {
			switch part.Kind {
			case llmprovider.PartText:
				total += len(strings.Fields(part.Text))
			case llmprovider.PartToolResult:
				total += len(strings.Fields(part.ToolResult.Content))
			}
		}
	}
	return total
}
