package llmprovider

import (
	"fmt"
	"strings"
)

// mergeSeparator joins the text of merged same-role messages.
const mergeSeparator = "\n\n"

// RawMessage is loosely typed conversation history as emitted by upstream callers.
//
// Content may be a string, []string, []RawPart, a fmt.Stringer or nil.
// Role accepts "user"/"human" and "assistant"/"model"/"ai"; anything else
// (including "system") is dropped by Normalize.
type RawMessage struct {
	Role        string
	Content     any
	Images      []Image
	ToolUses    []ToolUseBlock
	ToolResults []ToolResultBlock
}

// RawPart is one element of a multi-part RawMessage content.
type RawPart struct {
	Type     string // "text" or "image"
	Text     string
	Data     []byte
	MimeType string
}

// Normalize converts loosely typed history into a canonical message sequence:
// unknown roles and empty messages are dropped, then consecutive same-role
// messages are merged. Normalizing an already normalized sequence is a no-op.
func Normalize(raw []RawMessage) []ProviderMessage {
	messages := make([]ProviderMessage, 0, len(raw))
	for _, r := range raw {
		role, ok := parseRole(r.Role)
		if !ok {
			continue
		}

		text, images := flattenContent(r.Content)
		messages = append(messages, ProviderMessage{
			Role:        role,
			Content:     text,
			Images:      append(images, r.Images...),
			ToolUses:    r.ToolUses,
			ToolResults: r.ToolResults,
		})
	}
	return NormalizeMessages(messages)
}

// NormalizeMessages applies Normalize to already typed messages.
func NormalizeMessages(messages []ProviderMessage) []ProviderMessage {
	kept := make([]ProviderMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			continue
		}
		if msg.IsEmpty() {
			continue
		}
		kept = append(kept, msg)
	}
	return MergeConsecutiveSameRole(kept)
}

// MergeConsecutiveSameRole merges runs of messages sharing a role into one message.
// Text is joined with a blank line; images and tool blocks are concatenated in order.
// The input slice is not modified.
func MergeConsecutiveSameRole(messages []ProviderMessage) []ProviderMessage {
	merged := make([]ProviderMessage, 0, len(messages))
	for _, msg := range messages {
		if n := len(merged); n > 0 && merged[n-1].Role == msg.Role {
			last := &merged[n-1]
			last.Content = joinText(last.Content, msg.Content)
			last.Images = append(last.Images, msg.Images...)
			last.ToolUses = append(last.ToolUses, msg.ToolUses...)
			last.ToolResults = append(last.ToolResults, msg.ToolResults...)
			continue
		}

		// Copy slices so later merges never write into the caller's arrays
		merged = append(merged, ProviderMessage{
			Role:        msg.Role,
			Content:     msg.Content,
			Images:      append([]Image(nil), msg.Images...),
			ToolUses:    append([]ToolUseBlock(nil), msg.ToolUses...),
			ToolResults: append([]ToolResultBlock(nil), msg.ToolResults...),
		})
	}
	return merged
}

// ValidateAlternation checks that the conversation starts with a user message
// and that roles strictly alternate afterwards.
func ValidateAlternation(messages []ProviderMessage) error {
	if len(messages) == 0 {
		return &AlternationError{Index: 0, Expected: RoleUser}
	}

	expected := RoleUser
	for i, msg := range messages {
		if msg.Role != expected {
			return &AlternationError{Index: i, Got: msg.Role, Expected: expected}
		}
		if expected == RoleUser {
			expected = RoleAssistant
		} else {
			expected = RoleUser
		}
	}
	return nil
}

// Dialect describes how a provider wants conversation turns on the wire.
type Dialect struct {
	Name string

	// Strict providers reject non-alternating turns; validation runs before sending
	Strict bool

	// UserRole and AssistantRole are the provider's names for the two roles
	UserRole      string
	AssistantRole string

	// InlineSystemPrompt repeats the system prompt as the leading instruction
	// of the first user turn
	InlineSystemPrompt bool
}

// StrictDialect is used by providers that require alternation (Anthropic).
var StrictDialect = Dialect{
	Name:          "strict",
	Strict:        true,
	UserRole:      string(RoleUser),
	AssistantRole: string(RoleAssistant),
}

// PartKind tags the payload of a WirePart.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
)

// WirePart is one content element of a wire message.
type WirePart struct {
	Kind       PartKind
	Text       string
	Image      *Image
	ToolUse    *ToolUseBlock
	ToolResult *ToolResultBlock
}

// WireMessage is one turn in a provider's role naming.
type WireMessage struct {
	Role  string
	Parts []WirePart
}

// WirePayload is the transport shape adapters convert into vendor request types.
type WirePayload struct {
	// System is the out-of-band system prompt (empty when unset)
	System   string
	Messages []WireMessage
}

// ToWireFormat normalizes messages and shapes them for dialect.
// Strict dialects fail with an *AlternationError before any network call.
func ToWireFormat(system string, messages []ProviderMessage, dialect Dialect) (*WirePayload, error) {
	normalized := NormalizeMessages(messages)
	if dialect.Strict {
		if err := ValidateAlternation(normalized); err != nil {
			return nil, err
		}
	}

	payload := &WirePayload{
		System:   system,
		Messages: make([]WireMessage, 0, len(normalized)+1),
	}

	for _, msg := range normalized {
		role := dialect.UserRole
		if msg.Role == RoleAssistant {
			role = dialect.AssistantRole
		}
		payload.Messages = append(payload.Messages, WireMessage{
			Role:  role,
			Parts: messageParts(msg),
		})
	}

	if dialect.InlineSystemPrompt && system != "" {
		inlineSystemPrompt(payload, system, dialect.UserRole)
	}

	return payload, nil
}

// messageParts orders content the way tool-calling providers expect it:
// tool results first, then text, images, and finally tool invocations.
func messageParts(msg ProviderMessage) []WirePart {
	parts := make([]WirePart, 0, 1+len(msg.Images)+len(msg.ToolUses)+len(msg.ToolResults))
	for i := range msg.ToolResults {
		parts = append(parts, WirePart{Kind: PartToolResult, ToolResult: &msg.ToolResults[i]})
	}
	if msg.Content != "" {
		parts = append(parts, WirePart{Kind: PartText, Text: msg.Content})
	}
	for i := range msg.Images {
		parts = append(parts, WirePart{Kind: PartImage, Image: &msg.Images[i]})
	}
	for i := range msg.ToolUses {
		parts = append(parts, WirePart{Kind: PartToolUse, ToolUse: &msg.ToolUses[i]})
	}
	return parts
}

func inlineSystemPrompt(payload *WirePayload, system, userRole string) {
	instruction := WirePart{Kind: PartText, Text: system}
	for i := range payload.Messages {
		if payload.Messages[i].Role == userRole {
			payload.Messages[i].Parts = append([]WirePart{instruction}, payload.Messages[i].Parts...)
			return
		}
	}
	payload.Messages = append([]WireMessage{{Role: userRole, Parts: []WirePart{instruction}}}, payload.Messages...)
}

func parseRole(role string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return RoleUser, true
	case "assistant", "model", "ai":
		return RoleAssistant, true
	default:
		return "", false
	}
}

func flattenContent(content any) (string, []Image) {
	switch c := content.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	case []string:
		text := ""
		for _, s := range c {
			text = joinText(text, s)
		}
		return text, nil
	case []RawPart:
		text := ""
		var images []Image
		for _, part := range c {
			switch {
			case part.Type == "image" || len(part.Data) > 0:
				if len(part.Data) > 0 {
					images = append(images, Image{Data: part.Data, MimeType: part.MimeType})
				}
			default:
				text = joinText(text, part.Text)
			}
		}
		return text, images
	case fmt.Stringer:
		return c.String(), nil
	default:
		return fmt.Sprint(c), nil
	}
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + mergeSeparator + b
	}
}
