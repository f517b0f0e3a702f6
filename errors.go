package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrInvalidModel indicates the requested model is not supported by the provider.
	ErrInvalidModel = errors.New("llmprovider: invalid or unsupported model")

	// ErrInvalidAPIKey indicates the API key is missing, malformed, or unauthorized.
	ErrInvalidAPIKey = errors.New("llmprovider: invalid API key")

	// ErrRateLimited indicates the provider's rate limit has been exceeded.
	ErrRateLimited = errors.New("llmprovider: rate limit exceeded")

	// ErrUnsupportedFeature indicates the requested feature is not available.
	// Examples: a tool parameter type the provider schema cannot express.
	ErrUnsupportedFeature = errors.New("llmprovider: unsupported feature")

	// ErrInvalidRequest indicates the request parameters are invalid.
	ErrInvalidRequest = errors.New("llmprovider: invalid request")

	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("llmprovider: provider unavailable")

	// ErrOverloaded indicates the provider is temporarily overloaded (HTTP 529).
	ErrOverloaded = errors.New("llmprovider: provider overloaded")

	// ErrTimeout indicates the request timed out at the transport or gateway.
	ErrTimeout = errors.New("llmprovider: request timed out")

	// ErrContentPolicy indicates the provider refused the content.
	ErrContentPolicy = errors.New("llmprovider: content policy rejection")

	// ErrAlternation indicates the conversation does not alternate user/assistant.
	ErrAlternation = fmt.Errorf("%w: roles must alternate starting with user", ErrInvalidRequest)

	// ErrNoProvidersAvailable is returned when no provider could be attempted.
	ErrNoProvidersAvailable = errors.New("llmprovider: no providers available")

	// ErrAllProvidersFailed is wrapped by ExhaustedError.
	ErrAllProvidersFailed = errors.New("llmprovider: all providers failed")

	// ErrPartialDelivery is wrapped by PartialStreamError.
	ErrPartialDelivery = errors.New("llmprovider: stream failed after partial delivery")

	// ErrUsageUnavailable is returned by ChatStream.Usage before the terminal chunk.
	ErrUsageUnavailable = errors.New("llmprovider: usage not available before stream completion")

	// ErrStreamClosed is returned by a stream closed before completion.
	ErrStreamClosed = errors.New("llmprovider: stream closed")
)

// ErrorCode is a machine-readable classification attached to ProviderError.
type ErrorCode string

const (
	ErrorCodeInvalidRequest      ErrorCode = "invalid_request"
	ErrorCodeAuthentication      ErrorCode = "authentication"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeRateLimited         ErrorCode = "rate_limited"
	ErrorCodeOverloaded          ErrorCode = "overloaded"
	ErrorCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrorCodeTimeout             ErrorCode = "timeout"
	ErrorCodeContentPolicy       ErrorCode = "content_policy"
	ErrorCodeServer              ErrorCode = "server_error"
	ErrorCodeNetwork             ErrorCode = "network"
)

// ErrorClass is how the Manager acts on an error.
type ErrorClass int

const (
	// ClassNone is the class of a nil error.
	ClassNone ErrorClass = iota

	// ClassTransient errors are retried in the adapter, then trigger fallback.
	ClassTransient

	// ClassFatal errors are surfaced immediately: retrying cannot fix them.
	ClassFatal

	// ClassPartial is a stream failure after output reached the caller.
	ClassPartial

	// ClassDecoding is a non-fatal decoding problem (malformed tool arguments).
	ClassDecoding
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	case ClassPartial:
		return "partial"
	case ClassDecoding:
		return "decoding"
	default:
		return "unknown"
	}
}

// ModelError represents an error related to model validation or availability.
type ModelError struct {
	Model    string // The model that was requested
	Provider string // The provider name
	Reason   string // Human-readable explanation
	Err      error  // Wrapped error (usually ErrInvalidModel or ErrUnsupportedFeature)
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model '%s' for provider '%s': %s (%v)", e.Model, e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("model '%s' for provider '%s': %s", e.Model, e.Provider, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ValidationError represents an error in request parameter validation.
type ValidationError struct {
	Field  string // The parameter field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for '%s' (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for '%s' (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// AlternationError reports the first message that breaks user/assistant alternation.
type AlternationError struct {
	Index    int  // Position of the offending message (0 for an empty conversation)
	Got      Role // Role found at Index (empty when the conversation is empty)
	Expected Role // Role required at Index
}

func (e *AlternationError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("%v: conversation is empty", ErrAlternation)
	}
	return fmt.Sprintf("%v: message %d has role %q, expected %q", ErrAlternation, e.Index, e.Got, e.Expected)
}

func (e *AlternationError) Unwrap() error {
	return ErrAlternation
}

// SchemaError reports a tool parameter that the target schema dialect cannot express.
type SchemaError struct {
	Tool      string // Tool name
	Parameter string // Dotted path of the parameter
	Type      ParamType
	Dialect   string
	Reason    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool '%s' parameter '%s' (type %q) not expressible in %s schema: %s",
		e.Tool, e.Parameter, e.Type, e.Dialect, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return ErrUnsupportedFeature
}

// ProviderError represents an error from the underlying provider API.
type ProviderError struct {
	Code       ErrorCode     // Machine-readable code
	Provider   string        // The provider name
	StatusCode int           // HTTP status code (if applicable)
	Message    string        // Error message from provider
	Retryable  bool          // Whether this error is transient (retry, then fall back)
	RetryAfter time.Duration // Vendor-supplied retry hint (zero if absent)
	Err        error         // Wrapped sentinel error (ErrRateLimited, ErrProviderUnavailable, etc.)
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider '%s' error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider '%s' error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Attempt records one provider tried by the Manager.
type Attempt struct {
	Provider ProviderID
	Err      error
}

// ExhaustedError means every available provider was tried and each failed transiently.
// It unwraps to ErrAllProvidersFailed and to the last provider error.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("%v (%s)", ErrAllProvidersFailed, strings.Join(parts, "; "))
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *ExhaustedError) Unwrap() []error {
	if last := e.Last(); last != nil {
		return []error{ErrAllProvidersFailed, last}
	}
	return []error{ErrAllProvidersFailed}
}

// PartialStreamError is a terminal stream failure after at least one chunk was delivered.
type PartialStreamError struct {
	Provider ProviderID
	Chunks   int // Chunks delivered before the failure
	Err      error
}

func (e *PartialStreamError) Error() string {
	return fmt.Sprintf("%v: provider '%s' failed after %d chunks: %v", ErrPartialDelivery, e.Provider, e.Chunks, e.Err)
}

func (e *PartialStreamError) Unwrap() []error {
	return []error{ErrPartialDelivery, e.Err}
}

// DecodeWarning reports malformed tool-call arguments. The stream continues and the
// tool call is emitted with empty arguments.
type DecodeWarning struct {
	ToolCallID string
	Raw        string
	Err        error
}

func (e *DecodeWarning) Error() string {
	return fmt.Sprintf("malformed arguments for tool call '%s' (%d bytes): %v", e.ToolCallID, len(e.Raw), e.Err)
}

func (e *DecodeWarning) Unwrap() error {
	return e.Err
}

// Classify returns the class an error belongs to.
// This is the single classification entry point used by the Manager.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var partialErr *PartialStreamError
	if errors.As(err, &partialErr) {
		return ClassPartial
	}

	// Exhaustion wraps transient causes but ends the fallback walk
	if errors.Is(err, ErrAllProvidersFailed) {
		return ClassFatal
	}

	var decodeWarn *DecodeWarning
	if errors.As(err, &decodeWarn) {
		return ClassDecoding
	}

	if IsRetryable(err) {
		return ClassTransient
	}

	return ClassFatal
}

// IsRetryable checks if an error is transient.
// Returns true for rate limits, overload, bad gateway, timeouts and connection resets.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancellation is never transient
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Check for ProviderError with Retryable flag
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}

	if errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrOverloaded) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderUnavailable) {
		return true
	}

	return isTransportTransient(err) || isOverloadMessage(err)
}

// IsFallbackable reports whether the Manager may try the next provider after err.
func IsFallbackable(err error) bool {
	return Classify(err) == ClassTransient
}

// IsInvalidRequest checks if an error indicates invalid request parameters.
// These errors are not retryable and require request changes.
func IsInvalidRequest(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidRequest) {
		return true
	}

	if errors.Is(err, ErrInvalidModel) {
		return true
	}

	if errors.Is(err, ErrUnsupportedFeature) {
		return true
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return true
	}

	return false
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		// HTTP 401/403 indicate auth issues
		return providerErr.StatusCode == 401 || providerErr.StatusCode == 403
	}

	return false
}

// IsPartialDelivery reports whether a stream failed after delivering output.
func IsPartialDelivery(err error) bool {
	return errors.Is(err, ErrPartialDelivery)
}

// IsExhausted reports whether every provider was tried without success.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrAllProvidersFailed)
}

// isTransportTransient recognizes network-level timeouts, resets and truncation.
func isTransportTransient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "connection reset")
}

// isOverloadMessage matches bare overload errors from clients that report no
// status. Errors carrying a ProviderError are classified by their status only.
func isOverloadMessage(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "overloaded")
}

// NewStatusError maps an HTTP status from provider to a classified ProviderError.
// header may be nil; when present its Retry-After hint is recorded.
func NewStatusError(provider ProviderID, statusCode int, message string, header http.Header) *ProviderError {
	pe := &ProviderError{
		Provider:   provider.String(),
		StatusCode: statusCode,
		Message:    message,
	}
	if retryAfter, ok := ParseRetryAfter(header, time.Now()); ok {
		pe.RetryAfter = retryAfter
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		pe.Code = ErrorCodeInvalidRequest
		pe.Err = ErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		pe.Code = ErrorCodeAuthentication
		pe.Err = ErrInvalidAPIKey
	case http.StatusNotFound:
		pe.Code = ErrorCodeNotFound
		pe.Err = ErrInvalidModel
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		pe.Code = ErrorCodeTimeout
		pe.Retryable = true
		pe.Err = ErrTimeout
	case http.StatusTooManyRequests:
		pe.Code = ErrorCodeRateLimited
		pe.Retryable = true
		pe.Err = ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		pe.Code = ErrorCodeProviderUnavailable
		pe.Retryable = true
		pe.Err = ErrProviderUnavailable
	case 529:
		pe.Code = ErrorCodeOverloaded
		pe.Retryable = true
		pe.Err = ErrOverloaded
	default:
		pe.Code = ErrorCodeServer
		pe.Err = ErrProviderUnavailable
		if statusCode < 500 {
			pe.Code = ErrorCodeInvalidRequest
			pe.Err = ErrInvalidRequest
		}
	}

	if !pe.Retryable && statusCode < 500 && isContentPolicyMessage(message) {
		pe.Code = ErrorCodeContentPolicy
		pe.Retryable = false
		pe.Err = ErrContentPolicy
	}

	return pe
}

func isContentPolicyMessage(message string) bool {
	msg := strings.ToLower(message)
	return strings.Contains(msg, "content policy") || strings.Contains(msg, "safety")
}

// ParseRetryAfter reads a vendor retry hint: "retry-after-ms", then the
// RFC 9110 Retry-After header (delay-seconds or HTTP-date).
func ParseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	if v := strings.TrimSpace(header.Get("Retry-After-Ms")); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms >= 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// RetryAfterOf returns the retry hint carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.RetryAfter > 0 {
		return providerErr.RetryAfter, true
	}
	return 0, false
}

// WrapTransportError classifies a failure that happened before an HTTP status
// was received. Cancellation and already classified errors pass through.
func WrapTransportError(provider ProviderID, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}
	return &ProviderError{
		Code:      ErrorCodeNetwork,
		Provider:  provider.String(),
		Message:   err.Error(),
		Retryable: isTransportTransient(err),
		Err:       err,
	}
}

// MissingCredentialError reports an unset API key for provider.
func MissingCredentialError(provider ProviderID, key string) *ProviderError {
	return &ProviderError{
		Code:     ErrorCodeAuthentication,
		Provider: provider.String(),
		Message:  key + " is not set",
		Err:      ErrInvalidAPIKey,
	}
}
