package llmprovider

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry registers a provider with the Manager.
type Entry struct {
	Registration
	Provider Provider
}

// Manager dispatches requests across providers in fallback order.
//
// Transient failures move on to the next provider; fatal failures are returned
// at once. A stream that has delivered a chunk is never moved to another
// provider. Manager is safe for concurrent use.
type Manager struct {
	logger     *zap.Logger
	entries    map[ProviderID]Entry
	validation atomic.Pointer[ValidationEngine]

	// order is replaced wholesale by SetFallbackOrder; in-flight requests keep
	// the snapshot they started with.
	order atomic.Pointer[[]ProviderID]
}

// NewManager creates a Manager. The initial fallback order follows
// Registration.Priority, then registration order.
func NewManager(logger *zap.Logger, entries ...Entry) (*Manager, error) {
	m := &Manager{
		logger:  orNop(logger),
		entries: make(map[ProviderID]Entry, len(entries)),
	}
	m.validation.Store(GetValidationEngine())

	registered := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Provider == nil {
			return nil, fmt.Errorf("provider %q: implementation is required", entry.ID)
		}
		if entry.ID == "" {
			entry.ID = entry.Provider.ID()
		}
		if entry.ID != entry.Provider.ID() {
			return nil, fmt.Errorf("provider %q: registration id does not match implementation %q", entry.ID, entry.Provider.ID())
		}
		if _, exists := m.entries[entry.ID]; exists {
			return nil, fmt.Errorf("provider %q is already registered", entry.ID)
		}
		m.entries[entry.ID] = entry
		registered = append(registered, entry)
	}

	slices.SortStableFunc(registered, func(a, b Entry) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	order := make([]ProviderID, 0, len(registered))
	for _, entry := range registered {
		order = append(order, entry.ID)
	}
	m.order.Store(&order)

	return m, nil
}

// SetValidationEngine replaces the engine used for preflight warnings.
// Requests already dispatching keep the engine they loaded.
func (m *Manager) SetValidationEngine(engine *ValidationEngine) {
	m.validation.Store(engine)
}

// Preflight reports validation warnings for opts against every provider in
// fallback order. Warnings never block a request.
func (m *Manager) Preflight(opts *ChatOptions) map[ProviderID][]ValidationWarning {
	report := make(map[ProviderID][]ValidationWarning)
	engine := m.validation.Load()
	for _, id := range *m.order.Load() {
		if warnings := engine.Validate(id, opts); len(warnings) > 0 {
			report[id] = warnings
		}
	}
	return report
}

// FallbackOrder returns a copy of the current fallback order.
func (m *Manager) FallbackOrder() []ProviderID {
	return slices.Clone(*m.order.Load())
}

// SetFallbackOrder replaces the fallback order. Unknown and repeated ids are
// dropped; registered providers left out are not tried.
func (m *Manager) SetFallbackOrder(ids []ProviderID) {
	order := make([]ProviderID, 0, len(ids))
	seen := make(map[ProviderID]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.entries[id]; !ok || seen[id] {
			m.logger.Debug("ignoring fallback order entry", zap.String("provider", id.String()))
			continue
		}
		seen[id] = true
		order = append(order, id)
	}
	m.order.Store(&order)

	m.logger.Info("fallback order updated", zap.Stringers("order", order))
}

// ListProviders reports every registered provider, in fallback order first.
// Availability comes from IsAvailable; no network call is made.
func (m *Manager) ListProviders() []ProviderStatus {
	order := *m.order.Load()
	statuses := make([]ProviderStatus, 0, len(m.entries))
	listed := make(map[ProviderID]bool, len(m.entries))

	for _, id := range order {
		entry := m.entries[id]
		statuses = append(statuses, m.status(entry, true))
		listed[id] = true
	}

	var rest []Entry
	for id, entry := range m.entries {
		if !listed[id] {
			rest = append(rest, entry)
		}
	}
	slices.SortFunc(rest, func(a, b Entry) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	for _, entry := range rest {
		statuses = append(statuses, m.status(entry, false))
	}

	return statuses
}

func (m *Manager) status(entry Entry, inOrder bool) ProviderStatus {
	return ProviderStatus{
		ID:              entry.ID,
		Available:       entry.Provider.IsAvailable(),
		Capabilities:    entry.Capabilities,
		InFallbackOrder: inOrder,
	}
}

// GetActiveProviderID returns the first available provider in fallback order.
func (m *Manager) GetActiveProviderID() (ProviderID, bool) {
	for _, id := range *m.order.Load() {
		if m.entries[id].Provider.IsAvailable() {
			return id, true
		}
	}
	return "", false
}

// Provider returns the registered provider with the given id.
func (m *Manager) Provider(id ProviderID) (Provider, bool) {
	entry, ok := m.entries[id]
	return entry.Provider, ok
}

// Chat sends opts to the first provider that can serve it.
func (m *Manager) Chat(ctx context.Context, opts *ChatOptions) (*ChatResult, error) {
	prepared, err := prepareOptions(opts)
	if err != nil {
		return nil, err
	}

	var result *ChatResult
	err = m.dispatch(ctx, "chat", prepared, func(entry Entry) error {
		res, err := entry.Provider.Chat(ctx, prepared)
		if err != nil {
			return err
		}
		res.Provider = entry.ID
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Think runs a single-turn request with the same fallback rules as Chat.
func (m *Manager) Think(ctx context.Context, req ThinkRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &ValidationError{Field: "prompt", Value: req.Prompt, Reason: "prompt is required", Err: ErrInvalidRequest}
	}

	var text string
	err := m.dispatch(ctx, "think", nil, func(entry Entry) error {
		out, err := entry.Provider.Think(ctx, req)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// ChatStream opens a stream on the first provider that can serve opts.
//
// Providers that fail before their first chunk are skipped like in Chat. Once a
// stream is returned the Manager is committed to its provider: a later failure
// ends the stream with a *PartialStreamError.
func (m *Manager) ChatStream(ctx context.Context, opts *ChatOptions) (*ChatStream, error) {
	prepared, err := prepareOptions(opts)
	if err != nil {
		return nil, err
	}

	var (
		inner  *ChatStream
		server ProviderID
	)
	err = m.dispatch(ctx, "chat_stream", prepared, func(entry Entry) error {
		stream, err := entry.Provider.ChatStream(ctx, prepared)
		if err != nil {
			return err
		}
		inner = stream
		server = entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("stream committed",
		zap.String("provider", server.String()),
		zap.String("model", inner.Model()),
	)

	return OpenStream(ctx, server, inner.Model(), m.relay(server, inner))
}

// relay forwards a committed provider stream, converting any failure into a
// partial-delivery error.
func (m *Manager) relay(provider ProviderID, inner *ChatStream) ProduceFunc {
	return func(ctx context.Context, emit func(StreamChunk) error) (StreamSummary, error) {
		// inner was opened with the caller's context; closing the outer
		// stream must release the vendor connection too.
		stop := context.AfterFunc(ctx, func() { inner.Close() })
		defer stop()
		defer inner.Close()

		for inner.Next() {
			chunk := inner.Current()
			if chunk.Done {
				usage, _ := inner.Usage()
				return StreamSummary{Usage: usage, StopReason: chunk.StopReason, Model: inner.Model()}, nil
			}
			if err := emit(chunk); err != nil {
				return StreamSummary{}, err
			}
		}

		if ctx.Err() != nil {
			return StreamSummary{}, ctx.Err()
		}

		cause := inner.Err()
		if cause == nil {
			cause = ErrStreamClosed
		}
		m.logger.Error("stream failed after partial delivery",
			zap.String("provider", provider.String()),
			zap.Int("chunks", inner.Delivered()),
			zap.Error(cause),
		)
		return StreamSummary{}, &PartialStreamError{Provider: provider, Chunks: inner.Delivered(), Err: cause}
	}
}

// dispatch walks the fallback order and calls call on each provider that is
// available and able to serve opts (nil opts needs no capabilities).
func (m *Manager) dispatch(ctx context.Context, op string, opts *ChatOptions, call func(Entry) error) error {
	var attempts []Attempt
	logger := m.logger.With(zap.String("op", op), zap.String("request_id", uuid.NewString()))

	for _, id := range *m.order.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry := m.entries[id]
		if !entry.Provider.IsAvailable() {
			logger.Debug("skipping unavailable provider", zap.String("provider", id.String()))
			continue
		}
		if !entry.Capabilities.Supports(opts) {
			logger.Debug("skipping provider lacking capability", zap.String("provider", id.String()))
			continue
		}
		m.logWarnings(logger, id, opts)

		err := call(entry)
		if err == nil {
			if len(attempts) > 0 {
				logger.Info("served after fallback",
					zap.String("provider", id.String()),
					zap.Int("failed_attempts", len(attempts)),
				)
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		class := Classify(err)
		if class != ClassTransient {
			logger.Error("provider failed",
				zap.String("provider", id.String()),
				zap.Stringer("class", class),
				zap.Error(err),
			)
			return err
		}

		logger.Warn("falling back to next provider",
			zap.String("provider", id.String()),
			zap.Stringer("class", class),
			zap.Error(err),
		)
		attempts = append(attempts, Attempt{Provider: id, Err: err})
	}

	if len(attempts) == 0 {
		return ErrNoProvidersAvailable
	}
	return &ExhaustedError{Attempts: attempts}
}

func (m *Manager) logWarnings(logger *zap.Logger, provider ProviderID, opts *ChatOptions) {
	if opts == nil {
		return
	}
	for _, w := range m.validation.Load().Validate(provider, opts) {
		level := zap.WarnLevel
		if w.Severity == SeverityInfo {
			level = zap.DebugLevel
		}
		logger.Log(level, w.Message,
			zap.String("provider", provider.String()),
			zap.String("code", string(w.Code)),
			zap.String("field", w.Field),
		)
	}
}

// prepareOptions normalizes the conversation once for every provider tried.
func prepareOptions(opts *ChatOptions) (*ChatOptions, error) {
	if opts == nil {
		return nil, &ValidationError{Field: "options", Value: nil, Reason: "chat options are required", Err: ErrInvalidRequest}
	}

	messages := NormalizeMessages(opts.Messages)
	if len(messages) == 0 {
		return nil, &ValidationError{Field: "messages", Value: len(opts.Messages), Reason: "at least one non-empty message is required", Err: ErrInvalidRequest}
	}
	return opts.withMessages(messages), nil
}
