package llmprovider

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/models.yaml
var modelsYAML []byte

// Tier tables are metadata, not enforcement: provider APIs remain the source of
// truth for what a model accepts. Library users can override the embedded table:
//  1. Calling LoadTiersFromFile() with custom YAML
//  2. Calling RegisterProviderTiers() programmatically

// ModelCatalog is the full tier configuration file.
type ModelCatalog struct {
	Version     string                        `yaml:"version"`
	LastUpdated string                        `yaml:"last_updated"`
	DefaultTier Tier                          `yaml:"default_tier"`
	Providers   map[ProviderID]*ProviderTiers `yaml:"providers"`
}

// ProviderTiers is one provider's tier table and static capabilities.
type ProviderTiers struct {
	Capabilities Capabilities         `yaml:"capabilities"`
	Tiers        map[Tier]string      `yaml:"tiers"`
	Models       map[string]ModelInfo `yaml:"models"`
}

// ModelInfo is informational metadata about a concrete model.
type ModelInfo struct {
	ContextWindow   int         `yaml:"context_window"`
	MaxOutputTokens int         `yaml:"max_output_tokens"`
	Pricing         PricingInfo `yaml:"pricing"`
}

// PricingInfo contains model pricing information
type PricingInfo struct {
	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`
}

// TierRegistry resolves tiers to concrete models per provider.
type TierRegistry struct {
	defaultTier Tier
	providers   map[ProviderID]*ProviderTiers
	mu          sync.RWMutex
}

var (
	globalTiers     *TierRegistry
	globalTiersOnce sync.Once
)

// GetTierRegistry returns the global tier registry (singleton) seeded from the
// embedded table.
func GetTierRegistry() *TierRegistry {
	globalTiersOnce.Do(func() {
		registry, err := NewTierRegistry(modelsYAML)
		if err != nil {
			panic(fmt.Sprintf("llmprovider: embedded model table: %v", err))
		}
		globalTiers = registry
	})
	return globalTiers
}

// NewTierRegistry parses a YAML catalog into a standalone registry.
func NewTierRegistry(data []byte) (*TierRegistry, error) {
	catalog, err := parseCatalog(data)
	if err != nil {
		return nil, err
	}

	r := &TierRegistry{
		defaultTier: TierSonnet,
		providers:   make(map[ProviderID]*ProviderTiers, len(catalog.Providers)),
	}
	r.merge(catalog)
	return r, nil
}

func parseCatalog(data []byte) (*ModelCatalog, error) {
	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model table: %w", err)
	}
	return &catalog, nil
}

func (r *TierRegistry) merge(catalog *ModelCatalog) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if catalog.DefaultTier != "" {
		r.defaultTier = catalog.DefaultTier
	}
	for id, tiers := range catalog.Providers {
		if tiers == nil {
			continue
		}
		r.providers[id] = tiers
	}
}

// DefaultTier returns the tier used when a request leaves Tier empty.
func (r *TierRegistry) DefaultTier() Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultTier
}

// Resolve returns the concrete model for provider at tier. An empty tier means
// the default tier.
func (r *TierRegistry) Resolve(provider ProviderID, tier Tier) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tier == "" {
		tier = r.defaultTier
	}

	tiers, ok := r.providers[provider]
	if !ok {
		return "", &ModelError{
			Model:    string(tier),
			Provider: provider.String(),
			Reason:   "provider has no tier table",
			Err:      ErrInvalidModel,
		}
	}

	model, ok := tiers.Tiers[tier]
	if !ok || model == "" {
		return "", &ModelError{
			Model:    string(tier),
			Provider: provider.String(),
			Reason:   "tier not configured",
			Err:      ErrInvalidModel,
		}
	}
	return model, nil
}

// Models returns a copy of provider's tier table.
func (r *TierRegistry) Models(provider ProviderID) map[Tier]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tiers, ok := r.providers[provider]
	if !ok {
		return map[Tier]string{}
	}
	return maps.Clone(tiers.Tiers)
}

// Capabilities returns provider's static capabilities.
func (r *TierRegistry) Capabilities(provider ProviderID) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tiers, ok := r.providers[provider]
	if !ok {
		return Capabilities{}, false
	}
	return tiers.Capabilities, true
}

// ModelInfo returns metadata for a concrete model.
func (r *TierRegistry) ModelInfo(provider ProviderID, model string) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tiers, ok := r.providers[provider]
	if !ok {
		return ModelInfo{}, false
	}
	info, ok := tiers.Models[model]
	return info, ok
}

// ClampMaxTokens caps requested at the model's output limit when one is known.
func (r *TierRegistry) ClampMaxTokens(provider ProviderID, model string, requested int) int {
	info, ok := r.ModelInfo(provider, model)
	if !ok || info.MaxOutputTokens <= 0 || requested <= info.MaxOutputTokens {
		return requested
	}
	return info.MaxOutputTokens
}

// EstimateCost returns the USD cost of usage on model, or false when the
// model has no pricing.
func (r *TierRegistry) EstimateCost(provider ProviderID, model string, usage Usage) (float64, bool) {
	info, ok := r.ModelInfo(provider, model)
	if !ok || (info.Pricing.InputPer1M == 0 && info.Pricing.OutputPer1M == 0) {
		return 0, false
	}
	cost := float64(usage.InputTokens)/1e6*info.Pricing.InputPer1M +
		float64(usage.OutputTokens)/1e6*info.Pricing.OutputPer1M
	return cost, true
}

// LoadTiersFromFile merges a YAML catalog file over the registry.
// Providers present in the file replace their existing entries.
func (r *TierRegistry) LoadTiersFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model table: %w", err)
	}

	catalog, err := parseCatalog(data)
	if err != nil {
		return err
	}
	r.merge(catalog)
	return nil
}

// RegisterProviderTiers programmatically registers a provider's tier table.
func (r *TierRegistry) RegisterProviderTiers(provider ProviderID, tiers *ProviderTiers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = tiers
}

// OverrideTier replaces a single tier mapping, creating the provider entry if needed.
func (r *TierRegistry) OverrideTier(provider ProviderID, tier Tier, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tiers, ok := r.providers[provider]
	if !ok {
		tiers = &ProviderTiers{}
	}
	// Copy so tables shared through RegisterProviderTiers are not mutated.
	updated := maps.Clone(tiers.Tiers)
	if updated == nil {
		updated = make(map[Tier]string)
	}
	updated[tier] = model
	r.providers[provider] = &ProviderTiers{
		Capabilities: tiers.Capabilities,
		Tiers:        updated,
		Models:       tiers.Models,
	}
}

// LoadTiersFromFile is a convenience function that calls the global registry's LoadTiersFromFile.
func LoadTiersFromFile(path string) error {
	return GetTierRegistry().LoadTiersFromFile(path)
}

// RegisterProviderTiers is a convenience function that calls the global registry's RegisterProviderTiers.
func RegisterProviderTiers(provider ProviderID, tiers *ProviderTiers) {
	GetTierRegistry().RegisterProviderTiers(provider, tiers)
}
