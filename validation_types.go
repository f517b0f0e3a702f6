package llmprovider

// Severity indicates how serious a validation warning is
type Severity string

const (
	SeverityInfo    Severity = "info"    // Informational (might be expected)
	SeverityWarning Severity = "warning" // Potentially problematic
	SeverityError   Severity = "error"   // Likely to cause API failure
)

// WarningCode is a machine-readable identifier for validation warnings
type WarningCode string

const (
	// Tier warnings
	WarningCodeTierUnmapped WarningCode = "TIER_UNMAPPED"

	// Capability warnings
	WarningCodeToolsUnsupported  WarningCode = "TOOLS_UNSUPPORTED"
	WarningCodeVisionUnsupported WarningCode = "VISION_UNSUPPORTED"

	// Parameter warnings
	WarningCodeMaxTokensClamped      WarningCode = "MAX_TOKENS_CLAMPED"
	WarningCodeTemperatureOutOfRange WarningCode = "TEMPERATURE_OUT_OF_RANGE"
	WarningCodeTopPOutOfRange        WarningCode = "TOP_P_OUT_OF_RANGE"
)

// ValidationWarning represents a potential issue with a request for one provider.
// These are informational - the Manager never blocks requests on warnings;
// provider APIs and the normalizer remain the source of truth.
type ValidationWarning struct {
	Code     WarningCode // Machine-readable code
	Category string      // "tier", "capability", "parameter"
	Field    string      // Field that might cause issues
	Value    any         // The potentially problematic value
	Message  string      // Human-readable warning
	Severity Severity    // How serious this warning is
}

// ValidationRule interface allows adding custom validation logic
type ValidationRule interface {
	// Name returns a human-readable name for this rule
	Name() string

	// Check validates a request against one provider and returns warnings
	Check(provider ProviderID, opts *ChatOptions) []ValidationWarning
}
