package openrouter

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	llmprovider "github.com/haowjy/meridian-relay"
)

// dialect sends the system prompt as a system message and repeats it at the
// start of the first user turn. Many routed models ignore system messages.
var dialect = llmprovider.Dialect{
	Name:               "openai",
	UserRole:           "user",
	AssistantRole:      "assistant",
	InlineSystemPrompt: true,
}

// convertMessages converts a wire payload to OpenRouter messages.
//
// Tool results become separate role:"tool" messages placed before the rest of
// the user turn; tool uses become tool_calls on the assistant message.
func convertMessages(payload *llmprovider.WirePayload) ([]Message, error) {
	result := make([]Message, 0, len(payload.Messages)+1)
	if payload.System != "" {
		result = append(result, Message{Role: "system", Content: payload.System})
	}

	for i, msg := range payload.Messages {
		var parts []ContentPart
		var toolCalls []ToolCall
		hasImage := false

		for _, wp := range msg.Parts {
			switch wp.Kind {
			case llmprovider.PartText:
				parts = append(parts, ContentPart{Type: "text", Text: wp.Text})

			case llmprovider.PartImage:
				hasImage = true
				parts = append(parts, ContentPart{
					Type:     "image_url",
					ImageURL: &ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", wp.Image.MimeType, wp.Image.Base64())},
				})

			case llmprovider.PartToolUse:
				args, err := sonic.MarshalString(nonNil(wp.ToolUse.Input))
				if err != nil {
					return nil, fmt.Errorf("message %d: failed to marshal tool input: %w", i, err)
				}
				toolCalls = append(toolCalls, ToolCall{
					ID:   wp.ToolUse.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      wp.ToolUse.Name,
						Arguments: args,
					},
				})

			case llmprovider.PartToolResult:
				if wp.ToolResult.ToolUseID == "" {
					return nil, &llmprovider.ValidationError{
						Field:  fmt.Sprintf("messages[%d]", i),
						Reason: "tool result requires a tool_use_id",
						Err:    llmprovider.ErrInvalidRequest,
					}
				}
				content := wp.ToolResult.Content
				if wp.ToolResult.IsError {
					content = "Error: " + content
				}
				result = append(result, Message{
					Role:       "tool",
					Content:    content,
					ToolCallID: wp.ToolResult.ToolUseID,
				})
			}
		}

		if len(parts) == 0 && len(toolCalls) == 0 {
			continue
		}

		out := Message{Role: msg.Role, ToolCalls: toolCalls}
		switch {
		case hasImage:
			out.Content = parts
		case len(parts) > 0:
			out.Content = joinText(parts)
		}
		result = append(result, out)
	}

	return result, nil
}

// convertResponse converts an OpenRouter response to a ChatResult.
func (p *Provider) convertResponse(resp *ChatCompletionResponse, requestedModel string) (*llmprovider.ChatResult, error) {
	if len(resp.Choices) == 0 {
		return nil, &llmprovider.ProviderError{
			Code:     llmprovider.ErrorCodeServer,
			Provider: llmprovider.ProviderOpenRouter.String(),
			Message:  "response contained no choices",
			Err:      llmprovider.ErrProviderUnavailable,
		}
	}

	choice := resp.Choices[0]

	result := &llmprovider.ChatResult{
		Provider: llmprovider.ProviderOpenRouter,
		Model:    resp.Model,
	}
	if result.Model == "" {
		result.Model = requestedModel
	}
	if text, ok := choice.Message.Content.(string); ok {
		result.Text = text
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls,
			llmprovider.ParseToolUse(p.logger, tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	finish := ""
	if choice.FinishReason != nil {
		finish = *choice.FinishReason
	}
	result.StopReason = mapFinishReason(finish, len(result.ToolCalls) > 0)

	if resp.Usage != nil {
		result.InputTokens = resp.Usage.PromptTokens
		result.OutputTokens = resp.Usage.CompletionTokens
	}
	return result, nil
}

// mapFinishReason maps OpenAI-style finish reasons onto the shared codes.
func mapFinishReason(reason string, hasToolCalls bool) llmprovider.StopReason {
	switch reason {
	case "length":
		return llmprovider.StopReasonMaxTokens
	case "content_filter":
		return llmprovider.StopReasonContentFilter
	case "tool_calls", "function_call":
		return llmprovider.StopReasonToolUse
	}
	if hasToolCalls {
		return llmprovider.StopReasonToolUse
	}
	return llmprovider.StopReasonEndTurn
}

func joinText(parts []ContentPart) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n\n")
}

func nonNil(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	return input
}
