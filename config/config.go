// Package config loads process configuration for the relay: logging, the
// fallback order, retry tuning, per-provider endpoints and the credential
// store. Values come from a YAML file, a .env file and MERIDIAN_* environment
// variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
)

// EnvPrefix is the prefix of environment overrides (MERIDIAN_LOG_LEVEL, ...).
const EnvPrefix = "MERIDIAN"

// Config is the process configuration.
type Config struct {
	LogLevel      string                    `mapstructure:"log_level"`
	FallbackOrder []string                  `mapstructure:"fallback_order"`
	ModelsFile    string                    `mapstructure:"models_file"`
	Retry         RetryConfig               `mapstructure:"retry"`
	Providers     map[string]ProviderConfig `mapstructure:"providers"`
	Credentials   CredentialsConfig         `mapstructure:"credentials"`
}

// RetryConfig tunes the adapters' retry policy. Zero values use the defaults.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	Jitter        float64       `mapstructure:"jitter"`
	MaxRetryAfter time.Duration `mapstructure:"max_retry_after"`
}

// ProviderConfig configures one adapter.
type ProviderConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BaseURL  string            `mapstructure:"base_url"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Priority int               `mapstructure:"priority"`
	Tiers    map[string]string `mapstructure:"tiers"` // tier → model overrides
}

// CredentialsConfig points at the persisted credential store.
type CredentialsConfig struct {
	File     string        `mapstructure:"file"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() llmprovider.RetryPolicy {
	return llmprovider.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      c.Retry.BaseDelay,
		MaxDelay:       c.Retry.MaxDelay,
		JitterFraction: c.Retry.Jitter,
		MaxRetryAfter:  c.Retry.MaxRetryAfter,
	}
}

// Order returns the configured fallback order as provider ids.
func (c *Config) Order() []llmprovider.ProviderID {
	order := make([]llmprovider.ProviderID, 0, len(c.FallbackOrder))
	for _, id := range c.FallbackOrder {
		if id = strings.TrimSpace(id); id != "" {
			order = append(order, llmprovider.ProviderID(id))
		}
	}
	return order
}

// Provider returns the section for id.
func (c *Config) Provider(id llmprovider.ProviderID) ProviderConfig {
	return c.Providers[id.String()]
}

// Loader reads configuration into a private viper instance.
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger
}

// NewLoader prepares a loader. An empty cfgFile searches ./configs and the
// working directory for config.yaml.
func NewLoader(cfgFile string, logger *zap.Logger) *Loader {
	// Load .env file (ignore if not exists)
	_ = godotenv.Load()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &Loader{v: v, logger: llmprovider.OrNop(logger)}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("fallback_order", []string{"anthropic", "gemini", "openrouter"})

	for i, id := range []llmprovider.ProviderID{
		llmprovider.ProviderAnthropic,
		llmprovider.ProviderGemini,
		llmprovider.ProviderOpenRouter,
	} {
		v.SetDefault("providers."+id.String()+".enabled", true)
		v.SetDefault("providers."+id.String()+".priority", i)
	}
	v.SetDefault("providers.lorem.enabled", false)
	v.SetDefault("providers.lorem.priority", 99)

	v.SetDefault("credentials.cache_ttl", 30*time.Second)
}

// Load reads the config file (a missing default file is not an error) and
// decodes it.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// WatchFallbackOrder re-reads the config file on change and applies the new
// fallback order to m. In-flight requests keep the order they started with.
func (l *Loader) WatchFallbackOrder(m *llmprovider.Manager) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("config reload failed", zap.String("path", e.Name), zap.Error(err))
			return
		}
		m.SetFallbackOrder(cfg.Order())
	})
	l.v.WatchConfig()
}

// Load is a convenience wrapper around NewLoader(cfgFile, nil).Load().
func Load(cfgFile string) (*Config, error) {
	return NewLoader(cfgFile, nil).Load()
}
