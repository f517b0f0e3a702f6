package anthropic

import (
	"fmt"
	"slices"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	llmprovider "github.com/haowjy/meridian-relay"
)

// request is a fully built API call, shared between Chat and ChatStream.
type request struct {
	model   string
	params  anthropic.MessageNewParams
	options []option.RequestOption
}

// buildRequest constructs Anthropic API parameters from ChatOptions.
// Alternation and tool schemas are checked here, before any network call.
func (p *Provider) buildRequest(opts *llmprovider.ChatOptions) (*request, error) {
	if opts == nil {
		return nil, &llmprovider.ValidationError{Field: "options", Reason: "chat options are required", Err: llmprovider.ErrInvalidRequest}
	}

	model, err := p.resolveModel(opts.Tier)
	if err != nil {
		return nil, err
	}

	payload, err := llmprovider.ToWireFormat(opts.SystemPrompt, opts.Messages, llmprovider.StrictDialect)
	if err != nil {
		return nil, err
	}

	messages, err := convertMessages(payload.Messages)
	if err != nil {
		return nil, err
	}

	tools, err := convertTools(opts.Tools)
	if err != nil {
		return nil, err
	}

	maxTokens := p.tiers.ClampMaxTokens(llmprovider.ProviderAnthropic, model, opts.GetMaxOutputTokens())

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	// System prompt travels out of band
	if payload.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: payload.System,
			},
		}
	}

	if len(tools) > 0 {
		params.Tools = tools
	}

	return &request{
		model:   model,
		params:  params,
		options: providerOptions(opts.ProviderOptions),
	}, nil
}

// providerOptions merges extra body fields (temperature, top_k, ...) verbatim.
func providerOptions(extra map[string]any) []option.RequestOption {
	if len(extra) == 0 {
		return nil
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	opts := make([]option.RequestOption, 0, len(keys))
	for _, key := range keys {
		opts = append(opts, option.WithJSONSet(key, extra[key]))
	}
	return opts
}

// convertMessages converts wire messages to Anthropic SDK format.
func convertMessages(messages []llmprovider.WireMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))

		for j, part := range msg.Parts {
			switch part.Kind {
			case llmprovider.PartText:
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))

			case llmprovider.PartImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(part.Image.MimeType, part.Image.Base64()))

			case llmprovider.PartToolUse:
				input := part.ToolUse.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolUse.ID, input, part.ToolUse.Name))

			case llmprovider.PartToolResult:
				if part.ToolResult.ToolUseID == "" {
					return nil, &llmprovider.ValidationError{
						Field:  fmt.Sprintf("messages[%d].parts[%d]", i, j),
						Reason: "tool result missing tool_use_id",
						Err:    llmprovider.ErrInvalidRequest,
					}
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(part.ToolResult.ToolUseID, part.ToolResult.Content, part.ToolResult.IsError))
			}
		}

		switch msg.Role {
		case string(llmprovider.RoleUser):
			result = append(result, anthropic.NewUserMessage(blocks...))
		case string(llmprovider.RoleAssistant):
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}
