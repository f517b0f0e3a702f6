package llmprovider

import (
	"slices"
	"sync"
)

// ValidationEngine manages validation rules and executes them
type ValidationEngine struct {
	rules []ValidationRule
	mu    sync.RWMutex
}

var (
	globalValidationEngine     *ValidationEngine
	globalValidationEngineOnce sync.Once
)

// GetValidationEngine returns the global validation engine (singleton), with
// the default rules bound to the global tier registry.
func GetValidationEngine() *ValidationEngine {
	globalValidationEngineOnce.Do(func() {
		globalValidationEngine = NewValidationEngine(GetTierRegistry())
	})
	return globalValidationEngine
}

// NewValidationEngine creates an engine with the default rules bound to registry.
func NewValidationEngine(registry *TierRegistry) *ValidationEngine {
	ve := &ValidationEngine{}
	ve.AddRule(&TierValidationRule{registry: registry})
	ve.AddRule(&CapabilityValidationRule{registry: registry})
	ve.AddRule(&MaxTokensValidationRule{registry: registry})
	ve.AddRule(&ParameterValidationRule{})
	return ve
}

// AddRule adds a validation rule to the engine
func (ve *ValidationEngine) AddRule(rule ValidationRule) {
	ve.mu.Lock()
	defer ve.mu.Unlock()
	ve.rules = append(ve.rules, rule)
}

// RemoveRule removes a validation rule by name
func (ve *ValidationEngine) RemoveRule(name string) bool {
	ve.mu.Lock()
	defer ve.mu.Unlock()

	for i, rule := range ve.rules {
		if rule.Name() == name {
			ve.rules = slices.Delete(ve.rules, i, i+1)
			return true
		}
	}
	return false
}

// Validate runs all validation rules and returns warnings
func (ve *ValidationEngine) Validate(provider ProviderID, opts *ChatOptions) []ValidationWarning {
	if opts == nil {
		return nil
	}

	ve.mu.RLock()
	defer ve.mu.RUnlock()

	var warnings []ValidationWarning
	for _, rule := range ve.rules {
		warnings = append(warnings, rule.Check(provider, opts)...)
	}
	return warnings
}

// GetValidationWarnings returns potential issues with a request.
// These are INFORMATIONAL - callers can choose to show warnings or ignore them.
//
// This is the main entry point for validation. It uses the global validation engine.
func GetValidationWarnings(provider ProviderID, opts *ChatOptions) []ValidationWarning {
	return GetValidationEngine().Validate(provider, opts)
}

// FilterWarningsBySeverity returns warnings matching the specified severities
func FilterWarningsBySeverity(warnings []ValidationWarning, severities ...Severity) []ValidationWarning {
	return filterWarnings(warnings, func(w ValidationWarning) bool {
		return slices.Contains(severities, w.Severity)
	})
}

// FilterWarningsByCategory returns warnings matching the specified categories
func FilterWarningsByCategory(warnings []ValidationWarning, categories ...string) []ValidationWarning {
	return filterWarnings(warnings, func(w ValidationWarning) bool {
		return slices.Contains(categories, w.Category)
	})
}

// FilterWarningsByCode returns warnings matching the specified codes
func FilterWarningsByCode(warnings []ValidationWarning, codes ...WarningCode) []ValidationWarning {
	return filterWarnings(warnings, func(w ValidationWarning) bool {
		return slices.Contains(codes, w.Code)
	})
}

func filterWarnings(warnings []ValidationWarning, keep func(ValidationWarning) bool) []ValidationWarning {
	filtered := make([]ValidationWarning, 0)
	for _, w := range warnings {
		if keep(w) {
			filtered = append(filtered, w)
		}
	}
	return filtered
}
