package anthropic

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	llmprovider "github.com/haowjy/meridian-relay"
)

// convertResponse converts an Anthropic message to a ChatResult.
func (p *Provider) convertResponse(msg *anthropic.Message, requestedModel string) *llmprovider.ChatResult {
	var text strings.Builder
	var toolCalls []llmprovider.ToolUseBlock

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, llmprovider.ParseToolUse(p.logger, block.ID, block.Name, string(block.Input)))
		}
	}

	model := string(msg.Model)
	if model == "" {
		model = requestedModel
	}

	return &llmprovider.ChatResult{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Provider:     llmprovider.ProviderAnthropic,
		Model:        model,
		ToolCalls:    toolCalls,
		StopReason:   convertStopReason(msg.StopReason),
	}
}

// convertStopReason maps Anthropic stop reasons onto the shared codes.
func convertStopReason(reason anthropic.StopReason) llmprovider.StopReason {
	switch reason {
	case anthropic.StopReasonEndTurn, "":
		return llmprovider.StopReasonEndTurn
	case anthropic.StopReasonToolUse:
		return llmprovider.StopReasonToolUse
	case anthropic.StopReasonMaxTokens:
		return llmprovider.StopReasonMaxTokens
	case anthropic.StopReasonStopSequence:
		return llmprovider.StopReasonStopSequence
	case anthropic.StopReasonRefusal:
		return llmprovider.StopReasonContentFilter
	default:
		return llmprovider.StopReason(reason)
	}
}

// classifyError converts SDK errors into classified provider errors.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}

		message := gjson.Get(apiErr.RawJSON(), "error.message").String()
		if message == "" {
			message = apiErr.Error()
		}

		providerErr := llmprovider.NewStatusError(llmprovider.ProviderAnthropic, apiErr.StatusCode, message, header)
		// Anthropic reports overload in the body of some 5xx responses
		if gjson.Get(apiErr.RawJSON(), "error.type").String() == "overloaded_error" && !providerErr.Retryable {
			providerErr.Code = llmprovider.ErrorCodeOverloaded
			providerErr.Retryable = true
			providerErr.Err = llmprovider.ErrOverloaded
		}
		return providerErr
	}

	if body, ok := strings.CutPrefix(err.Error(), streamErrorPrefix); ok {
		return streamError(body)
	}

	return llmprovider.WrapTransportError(llmprovider.ProviderAnthropic, err)
}

// streamErrorPrefix marks an in-band `event: error` reported by the SDK stream.
const streamErrorPrefix = "received error while streaming: "

// streamError classifies an in-band stream error by its error.type.
func streamError(body string) *llmprovider.ProviderError {
	status := http.StatusBadRequest
	switch gjson.Get(body, "error.type").String() {
	case "overloaded_error":
		status = 529
	case "rate_limit_error":
		status = http.StatusTooManyRequests
	case "api_error":
		status = http.StatusInternalServerError
	case "authentication_error":
		status = http.StatusUnauthorized
	case "permission_error":
		status = http.StatusForbidden
	case "not_found_error":
		status = http.StatusNotFound
	}

	message := gjson.Get(body, "error.message").String()
	if message == "" {
		message = body
	}
	return llmprovider.NewStatusError(llmprovider.ProviderAnthropic, status, message, nil)
}
