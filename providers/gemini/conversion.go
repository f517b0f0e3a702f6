package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/internal/httpx"
)

// dialect is Gemini's turn format.
var dialect = llmprovider.Dialect{
	Name:               "gemini",
	UserRole:           "user",
	AssistantRole:      "model",
	InlineSystemPrompt: true,
}

func marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// request is a fully built API call body, shared between Chat and ChatStream.
type request struct {
	model string
	body  []byte
}

// buildRequest converts ChatOptions into a Gemini request body.
func (p *Provider) buildRequest(opts *llmprovider.ChatOptions) (*request, error) {
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

	contents, err := convertContents(payload.Messages)
	if err != nil {
		return nil, err
	}

	tools, err := convertTools(opts.Tools)
	if err != nil {
		return nil, err
	}

	apiReq := generateContentRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			MaxOutputTokens: p.tiers.ClampMaxTokens(llmprovider.ProviderGemini, model, opts.GetMaxOutputTokens()),
		},
		Tools: tools,
	}
	if payload.System != "" {
		apiReq.SystemInstruction = &systemInstruction{Parts: []part{{Text: payload.System}}}
	}

	body, err := marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Gemini request: %w", err)
	}

	body, err = httpx.MergeOptions(body, opts.ProviderOptions)
	if err != nil {
		return nil, err
	}

	return &request{model: model, body: body}, nil
}

// convertContents converts wire messages to Gemini contents.
func convertContents(messages []llmprovider.WireMessage) ([]content, error) {
	result := make([]content, 0, len(messages))

	for i, msg := range messages {
		parts := make([]part, 0, len(msg.Parts))

		for j, wp := range msg.Parts {
			switch wp.Kind {
			case llmprovider.PartText:
				parts = append(parts, part{Text: wp.Text})

			case llmprovider.PartImage:
				parts = append(parts, part{InlineData: &inlineData{
					MimeType: wp.Image.MimeType,
					Data:     wp.Image.Base64(),
				}})

			case llmprovider.PartToolUse:
				args, err := marshal(nonNil(wp.ToolUse.Input))
				if err != nil {
					return nil, fmt.Errorf("message %d, part %d: failed to marshal tool input: %w", i, j, err)
				}
				parts = append(parts, part{FunctionCall: &functionCall{
					ID:   wp.ToolUse.ID,
					Name: wp.ToolUse.Name,
					Args: args,
				}})

			case llmprovider.PartToolResult:
				if wp.ToolResult.Name == "" {
					return nil, &llmprovider.ValidationError{
						Field:  fmt.Sprintf("messages[%d].parts[%d]", i, j),
						Value:  wp.ToolResult.ToolUseID,
						Reason: "Gemini matches tool results by name; ToolResultBlock.Name is required",
						Err:    llmprovider.ErrInvalidRequest,
					}
				}
				response, err := toolResponse(wp.ToolResult)
				if err != nil {
					return nil, fmt.Errorf("message %d, part %d: %w", i, j, err)
				}
				parts = append(parts, part{FunctionResponse: &functionResponse{
					ID:       wp.ToolResult.ToolUseID,
					Name:     wp.ToolResult.Name,
					Response: response,
				}})
			}
		}

		result = append(result, content{Role: msg.Role, Parts: parts})
	}

	return result, nil
}

// toolResponse wraps a tool result in the object Gemini requires.
func toolResponse(result *llmprovider.ToolResultBlock) (json.RawMessage, error) {
	key := "output"
	if result.IsError {
		key = "error"
	}
	return marshal(map[string]any{key: result.Content})
}

// convertTools converts tool definitions to Gemini function declarations.
func convertTools(defs []llmprovider.ToolDefinition) ([]tool, error) {
	schemas, err := llmprovider.ToProviderSchema(defs, llmprovider.OpenAPIDialect)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, nil
	}

	declarations := make([]functionDeclaration, 0, len(schemas))
	for _, fn := range schemas {
		params, err := marshal(fn.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: failed to marshal parameters: %w", fn.Name, err)
		}
		declarations = append(declarations, functionDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  params,
		})
	}
	return []tool{{FunctionDeclarations: declarations}}, nil
}

// convertResponse converts a Gemini response to a ChatResult.
func (p *Provider) convertResponse(resp *generateContentResponse, requestedModel string) (*llmprovider.ChatResult, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, blockedError(resp.PromptFeedback.BlockReason)
		}
		return nil, &llmprovider.ProviderError{
			Code:     llmprovider.ErrorCodeServer,
			Provider: llmprovider.ProviderGemini.String(),
			Message:  "response contained no candidates",
			Err:      llmprovider.ErrProviderUnavailable,
		}
	}

	candidate := resp.Candidates[0]

	var text strings.Builder
	var toolCalls []llmprovider.ToolUseBlock
	if candidate.Content != nil {
		for _, pt := range candidate.Content.Parts {
			if pt.Text != "" {
				text.WriteString(pt.Text)
			}
			if pt.FunctionCall != nil {
				toolCalls = append(toolCalls, p.parseFunctionCall(pt.FunctionCall))
			}
		}
	}

	result := &llmprovider.ChatResult{
		Text:       text.String(),
		Provider:   llmprovider.ProviderGemini,
		Model:      modelName(resp.ModelVersion, requestedModel),
		ToolCalls:  toolCalls,
		StopReason: convertFinishReason(candidate.FinishReason, len(toolCalls) > 0),
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = resp.UsageMetadata.PromptTokenCount
		result.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return result, nil
}

// parseFunctionCall converts a Gemini function call into a ToolUseBlock.
// Gemini may omit call ids, so one is synthesized.
func (p *Provider) parseFunctionCall(call *functionCall) llmprovider.ToolUseBlock {
	id := call.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return llmprovider.ParseToolUse(p.logger, id, call.Name, string(call.Args))
}

// convertFinishReason maps Gemini finish reasons onto the shared codes.
func convertFinishReason(reason string, hasToolCalls bool) llmprovider.StopReason {
	switch reason {
	case "MAX_TOKENS":
		return llmprovider.StopReasonMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return llmprovider.StopReasonContentFilter
	}
	if hasToolCalls {
		return llmprovider.StopReasonToolUse
	}
	return llmprovider.StopReasonEndTurn
}

func blockedError(reason string) error {
	return &llmprovider.ProviderError{
		Code:     llmprovider.ErrorCodeContentPolicy,
		Provider: llmprovider.ProviderGemini.String(),
		Message:  "prompt blocked: " + reason,
		Err:      llmprovider.ErrContentPolicy,
	}
}

func modelName(version, requested string) string {
	if version != "" {
		return version
	}
	return requested
}

func nonNil(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	return input
}
