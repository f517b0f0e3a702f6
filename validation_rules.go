package llmprovider

import (
	"fmt"
)

// TierValidationRule checks that the requested tier maps to a model
type TierValidationRule struct {
	registry *TierRegistry
}

func (r *TierValidationRule) Name() string {
	return "Tier Validation"
}

func (r *TierValidationRule) Check(provider ProviderID, opts *ChatOptions) []ValidationWarning {
	if _, err := r.registry.Resolve(provider, opts.Tier); err != nil {
		return []ValidationWarning{{
			Code:     WarningCodeTierUnmapped,
			Category: "tier",
			Field:    "tier",
			Value:    opts.Tier,
			Message:  fmt.Sprintf("Tier %q has no model for %s", opts.Tier, provider),
			Severity: SeverityError,
		}}
	}
	return nil
}

// CapabilityValidationRule checks tools and images against provider capabilities
type CapabilityValidationRule struct {
	registry *TierRegistry
}

func (r *CapabilityValidationRule) Name() string {
	return "Capability Validation"
}

func (r *CapabilityValidationRule) Check(provider ProviderID, opts *ChatOptions) []ValidationWarning {
	var warnings []ValidationWarning

	caps, ok := r.registry.Capabilities(provider)
	if !ok {
		// Can't check without capabilities
		return warnings
	}

	if len(opts.Tools) > 0 && !caps.NativeTools {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeToolsUnsupported,
			Category: "capability",
			Field:    "tools",
			Value:    len(opts.Tools),
			Message:  fmt.Sprintf("%s does not support native tool calling", provider),
			Severity: SeverityError,
		})
	}

	if HasImages(opts.Messages) && !caps.Vision {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeVisionUnsupported,
			Category: "capability",
			Field:    "messages",
			Value:    "contains images",
			Message:  fmt.Sprintf("%s does not accept image input", provider),
			Severity: SeverityError,
		})
	}

	return warnings
}

// MaxTokensValidationRule reports output limits that will be clamped
type MaxTokensValidationRule struct {
	registry *TierRegistry
}

func (r *MaxTokensValidationRule) Name() string {
	return "Max Tokens Validation"
}

func (r *MaxTokensValidationRule) Check(provider ProviderID, opts *ChatOptions) []ValidationWarning {
	model, err := r.registry.Resolve(provider, opts.Tier)
	if err != nil {
		return nil
	}

	requested := opts.GetMaxOutputTokens()
	if limit := r.registry.ClampMaxTokens(provider, model, requested); limit < requested {
		return []ValidationWarning{{
			Code:     WarningCodeMaxTokensClamped,
			Category: "parameter",
			Field:    "max_output_tokens",
			Value:    requested,
			Message:  fmt.Sprintf("MaxOutputTokens %d exceeds the %s limit of %d and will be clamped", requested, model, limit),
			Severity: SeverityInfo,
		}}
	}
	return nil
}

// ParameterValidationRule checks sampling parameter ranges in ProviderOptions
type ParameterValidationRule struct{}

func (r *ParameterValidationRule) Name() string {
	return "Parameter Validation"
}

func (r *ParameterValidationRule) Check(provider ProviderID, opts *ChatOptions) []ValidationWarning {
	var warnings []ValidationWarning

	if temp, ok := numberOption(opts.ProviderOptions, "temperature"); ok && (temp < 0 || temp > 2) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeTemperatureOutOfRange,
			Category: "parameter",
			Field:    "temperature",
			Value:    temp,
			Message:  fmt.Sprintf("Temperature %.2f outside recommended range [0.00, 2.00]", temp),
			Severity: SeverityWarning,
		})
	}

	if topP, ok := numberOption(opts.ProviderOptions, "top_p"); ok && (topP < 0 || topP > 1) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeTopPOutOfRange,
			Category: "parameter",
			Field:    "top_p",
			Value:    topP,
			Message:  fmt.Sprintf("TopP %.2f outside recommended range [0.00, 1.00]", topP),
			Severity: SeverityWarning,
		})
	}

	return warnings
}

func numberOption(options map[string]any, key string) (float64, bool) {
	switch v := options[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
