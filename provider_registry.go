package llmprovider

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderGemini is Google's Gemini API
	ProviderGemini ProviderID = "gemini"

	// ProviderOpenRouter is OpenRouter's OpenAI-compatible API
	ProviderOpenRouter ProviderID = "openrouter"

	// ProviderLorem is the mock Lorem provider for testing
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderAnthropic, ProviderGemini, ProviderOpenRouter, ProviderLorem:
		return true
	default:
		return false
	}
}

// Capabilities are the static feature flags of a provider.
type Capabilities struct {
	Vision      bool `yaml:"vision"`
	NativeTools bool `yaml:"tools"`
}

// Supports reports whether the provider can serve a request with the given options.
func (c Capabilities) Supports(opts *ChatOptions) bool {
	if opts == nil {
		return true
	}
	if len(opts.Tools) > 0 && !c.NativeTools {
		return false
	}
	if HasImages(opts.Messages) && !c.Vision {
		return false
	}
	return true
}

// Registration describes a provider to the Manager.
// Identity is fixed at construction; only the fallback order changes at runtime.
type Registration struct {
	ID           ProviderID
	Capabilities Capabilities

	// Priority orders the initial fallback list (lower goes first)
	Priority int
}

// ProviderStatus is the ops view of a registered provider.
type ProviderStatus struct {
	ID           ProviderID
	Available    bool
	Capabilities Capabilities

	// InFallbackOrder is false for registered providers dropped from the order
	InFallbackOrder bool
}
