// Package credentials resolves provider API keys.
//
// Resolution order is short-lived in-memory cache, then a persisted store,
// then the process environment.
package credentials

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Well-known credential keys.
const (
	AnthropicAPIKey  = "ANTHROPIC_API_KEY"
	GeminiAPIKey     = "GEMINI_API_KEY"
	OpenRouterAPIKey = "OPENROUTER_API_KEY"
)

// DefaultCacheTTL is how long a resolved credential is reused.
const DefaultCacheTTL = 30 * time.Second

// Source supplies secrets by key. Implementations must be safe for concurrent use.
type Source interface {
	Get(key string) (string, bool)
}

// EnvSource reads the process environment.
type EnvSource struct{}

func (EnvSource) Get(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// MapSource is a fixed in-memory source.
type MapSource map[string]string

func (m MapSource) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok && v != ""
}

// Static returns a Source that always yields secret for key.
func Static(key, secret string) Source {
	return MapSource{key: secret}
}

type cachedSecret struct {
	value   string
	found   bool
	expires time.Time
}

// Resolver looks up credentials through a TTL cache, a persisted store and
// the environment, in that order.
type Resolver struct {
	store  Source
	env    Source
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStore sets the persisted store consulted before the environment.
func WithStore(store Source) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

// WithEnv replaces the environment source.
func WithEnv(env Source) Option {
	return func(r *Resolver) {
		r.env = env
	}
}

// WithTTL sets the cache lifetime. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithClock sets the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver reading the environment with DefaultCacheTTL.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		env:    EnvSource{},
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		logger: zap.NewNop(),
		cache:  make(map[string]cachedSecret),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Get resolves key. Misses are cached too so a missing key does not hit the
// store on every availability check.
func (r *Resolver) Get(key string) (string, bool) {
	now := r.now()

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.value, entry.found
	}

	value, found, origin := r.lookup(key)
	r.logger.Debug("credential resolved",
		zap.String("key", key),
		zap.Bool("found", found),
		zap.String("origin", origin),
	)

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[key] = cachedSecret{value: value, found: found, expires: now.Add(r.ttl)}
		r.mu.Unlock()
	}
	return value, found
}

func (r *Resolver) lookup(key string) (string, bool, string) {
	if r.store != nil {
		if v, ok := r.store.Get(key); ok {
			return v, true, "store"
		}
	}
	if r.env != nil {
		if v, ok := r.env.Get(key); ok {
			return v, true, "env"
		}
	}
	return "", false, "none"
}

// Invalidate drops cached entries for keys, or every entry when none are given.
func (r *Resolver) Invalidate(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(keys) == 0 {
		r.cache = make(map[string]cachedSecret)
		return
	}
	for _, key := range keys {
		delete(r.cache, key)
	}
}
