package llmprovider

// Usage is the token accounting for one exchange.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResult is the immutable record of a completed exchange.
type ChatResult struct {
	// Text is the concatenated text output
	Text string

	// InputTokens is the number of tokens in the input
	InputTokens int

	// OutputTokens is the number of tokens in the output
	OutputTokens int

	// Provider is the provider that actually served the request
	Provider ProviderID

	// Model is the concrete model that was used (may differ from the tier table if aliased)
	Model string

	// ToolCalls lists tool invocations requested by the model, in response order
	ToolCalls []ToolUseBlock

	// StopReason indicates why generation stopped
	StopReason StopReason
}

// Usage returns the token usage of the result.
func (r *ChatResult) Usage() Usage {
	return Usage{InputTokens: r.InputTokens, OutputTokens: r.OutputTokens}
}
