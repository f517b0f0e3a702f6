package llmprovider

import (
	"encoding/base64"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Tier is a logical quality/cost level that each provider resolves to a
// concrete model identifier (see TierRegistry).
type Tier string

const (
	TierFlash  Tier = "flash"  // Fast and cheap
	TierSonnet Tier = "sonnet" // Balanced default
	TierOpus   Tier = "opus"   // Highest quality
)

// StopReason is the provider-supplied code explaining why generation ended.
// Adapters map vendor codes onto these values.
type StopReason string

const (
	StopReasonEndTurn       StopReason = "end_turn"
	StopReasonToolUse       StopReason = "tool_use"
	StopReasonMaxTokens     StopReason = "max_tokens"
	StopReasonStopSequence  StopReason = "stop_sequence"
	StopReasonContentFilter StopReason = "content_filter"
)

// Image is binary image content attached to a message.
type Image struct {
	Data     []byte
	MimeType string // e.g. "image/png"
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ProviderMessage is one turn of a canonical conversation.
//
// After normalization a message is never empty: it has text, at least one
// image, or tool blocks. ToolUses only appear on assistant turns and
// ToolResults only on user turns.
type ProviderMessage struct {
	Role    Role
	Content string
	Images  []Image

	// ToolUses are tool invocations previously requested by the assistant.
	ToolUses []ToolUseBlock

	// ToolResults answer earlier ToolUses, matched by correlation id.
	ToolResults []ToolResultBlock
}

// IsEmpty reports whether the message carries nothing worth sending.
func (m ProviderMessage) IsEmpty() bool {
	return m.Content == "" &&
		len(m.Images) == 0 &&
		len(m.ToolUses) == 0 &&
		len(m.ToolResults) == 0
}

// HasImages reports whether any message in the conversation carries images.
func HasImages(messages []ProviderMessage) bool {
	for _, msg := range messages {
		if len(msg.Images) > 0 {
			return true
		}
	}
	return false
}

// StreamChunk is one element of a streamed response.
//
// A successful stream ends with exactly one chunk whose Done is true. Usage is
// not carried inline; read it from ChatStream.Usage after the terminal chunk.
type StreamChunk struct {
	// Text is the incremental text delta (may be empty)
	Text string

	// Done marks the terminal chunk
	Done bool

	// ToolUse is set when a tool call finished accumulating
	ToolUse *ToolUseBlock

	// StopReason is only set on the terminal chunk
	StopReason StopReason
}
