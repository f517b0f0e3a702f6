package llmprovider

// DefaultMaxOutputTokens is used when ChatOptions.MaxOutputTokens is not set.
const DefaultMaxOutputTokens = 4096

// ChatOptions contains the parameters of a chat request.
//
// The same options can be replayed against any provider: Tier is resolved to a
// concrete model per provider, so callers never name vendor models.
type ChatOptions struct {
	// SystemPrompt is passed out of band (or inlined for tolerant providers)
	SystemPrompt string

	// Messages contains the conversation history, oldest first
	Messages []ProviderMessage

	// Tier selects the model quality/cost level. Empty means the registry default.
	Tier Tier

	// MaxOutputTokens caps the generated tokens. Zero means DefaultMaxOutputTokens.
	MaxOutputTokens int

	// Tools lists the functions the model may call
	Tools []ToolDefinition

	// ProviderOptions are merged verbatim into the request body of providers
	// that accept raw JSON extensions (keys are sjson paths, e.g. "temperature").
	ProviderOptions map[string]any
}

// GetMaxOutputTokens returns MaxOutputTokens or the default when unset.
func (o *ChatOptions) GetMaxOutputTokens() int {
	if o == nil || o.MaxOutputTokens <= 0 {
		return DefaultMaxOutputTokens
	}
	return o.MaxOutputTokens
}

// withMessages returns a shallow copy of the options with replaced messages.
func (o *ChatOptions) withMessages(messages []ProviderMessage) *ChatOptions {
	clone := *o
	clone.Messages = messages
	return &clone
}

// ThinkRequest is a single-turn convenience request.
type ThinkRequest struct {
	Prompt       string
	SystemPrompt string
	Tier         Tier
	MaxTokens    int
}

// ChatOptions expands the request into a one-message chat.
func (r ThinkRequest) ChatOptions() *ChatOptions {
	return &ChatOptions{
		SystemPrompt:    r.SystemPrompt,
		Messages:        []ProviderMessage{{Role: RoleUser, Content: r.Prompt}},
		Tier:            r.Tier,
		MaxOutputTokens: r.MaxTokens,
	}
}
