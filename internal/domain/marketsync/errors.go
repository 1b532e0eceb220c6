package marketsync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. The typed errors below match their sentinel through errors.Is,
// so callers can branch on the class without caring about the concrete type.
var (
	ErrAuth                = errors.New("marketsync: marketplace authentication failed")
	ErrRateLimited         = errors.New("marketsync: marketplace rate limit exceeded")
	ErrValidation          = errors.New("marketsync: marketplace rejected payload")
	ErrTransport           = errors.New("marketsync: marketplace transport failure")
	ErrRemoteServer        = errors.New("marketsync: marketplace server error")
	ErrMappingNotFound     = errors.New("marketsync: entity mapping not found")
	ErrStatusNotConfigured = errors.New("marketsync: status mapping not configured")
	ErrUnsupported         = errors.New("marketsync: operation not supported by marketplace")

	ErrQueueItemNotFound   = errors.New("marketsync: queue item not found")
	ErrInvalidTransition   = errors.New("marketsync: invalid queue item transition")
	ErrInvalidQueueKey     = errors.New("marketsync: invalid queue key")
	ErrMarketplaceNotFound = errors.New("marketsync: marketplace not found")
	ErrMarketplaceDisabled = errors.New("marketsync: marketplace disabled")
	ErrClientNotRegistered = errors.New("marketsync: no client registered for marketplace")
	ErrTierAlreadyRunning  = errors.New("marketsync: tier run already in progress")
	ErrOrderNotFound       = errors.New("marketsync: marketplace order not found")
	ErrChangeNotFound      = errors.New("marketsync: local change not found")
)

// ErrorKind is the persisted classification of a failure
type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindAuth                ErrorKind = "auth"
	ErrorKindRateLimited         ErrorKind = "rate_limited"
	ErrorKindValidation          ErrorKind = "validation"
	ErrorKindTransport           ErrorKind = "transport"
	ErrorKindRemoteServer        ErrorKind = "remote_server"
	ErrorKindMappingNotFound     ErrorKind = "mapping_not_found"
	ErrorKindStatusNotConfigured ErrorKind = "status_not_configured"
	ErrorKindUnsupported         ErrorKind = "unsupported"
	ErrorKindUnknown             ErrorKind = "unknown"
)

// ---------------------------------------------------------------------------
// Typed marketplace errors
// ---------------------------------------------------------------------------

// AuthError means the marketplace rejected the credentials. Never retried automatically.
type AuthError struct {
	Marketplace MarketplaceCode
	Message     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Marketplace, e.Message)
}

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// RateLimitedError means the marketplace throttled the call.
// RetryAfter is the wait the caller must honor before calling the marketplace again.
type RateLimitedError struct {
	Marketplace MarketplaceCode
	RetryAfter  time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Marketplace, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// FieldError describes one rejected field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError means the payload was malformed for the marketplace. Not retryable.
type ValidationError struct {
	Marketplace MarketplaceCode
	Message     string
	Fields      []FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Marketplace != "" {
		b.WriteString(string(e.Marketplace))
		b.WriteString(": ")
	}
	b.WriteString("validation failed")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransportError wraps network failures and timeouts. Retryable up to the bound.
type TransportError struct {
	Marketplace MarketplaceCode
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Marketplace, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RemoteServerError is a 5xx answer from the marketplace. Retryable up to the bound.
type RemoteServerError struct {
	Marketplace MarketplaceCode
	StatusCode  int
	Body        string
}

func (e *RemoteServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: remote server error: HTTP %d", e.Marketplace, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote server error: HTTP %d: %s", e.Marketplace, e.StatusCode, e.Body)
}

func (e *RemoteServerError) Is(target error) bool { return target == ErrRemoteServer }

// MappingNotFoundError means an update arrived for an entity that was never pushed.
type MappingNotFoundError struct {
	EntityType    EntityType
	LocalEntityID string
	MarketplaceID int64
}

func (e *MappingNotFoundError) Error() string {
	return fmt.Sprintf("marketsync: no mapping for %s %s on marketplace %d",
		e.EntityType, e.LocalEntityID, e.MarketplaceID)
}

func (e *MappingNotFoundError) Is(target error) bool { return target == ErrMappingNotFound }

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

// KindOf classifies an error for persistence and metrics
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrAuth):
		return ErrorKindAuth
	case errors.Is(err, ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrTransport):
		return ErrorKindTransport
	case errors.Is(err, ErrRemoteServer):
		return ErrorKindRemoteServer
	case errors.Is(err, ErrMappingNotFound):
		return ErrorKindMappingNotFound
	case errors.Is(err, ErrStatusNotConfigured):
		return ErrorKindStatusNotConfigured
	case errors.Is(err, ErrUnsupported):
		return ErrorKindUnsupported
	default:
		return ErrorKindUnknown
	}
}

// IsRetryable reports whether a failure may return the item to pending.
// Unclassified errors are treated like transport failures.
func IsRetryable(err error) bool {
	return KindOf(err).IsRetryable()
}

// IsRetryable reports whether failures of this kind may succeed on a later attempt
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrorKindRateLimited, ErrorKindTransport, ErrorKindRemoteServer, ErrorKindUnknown:
		return true
	default:
		return false
	}
}

// RetryableErrorKinds lists the kinds for which IsRetryable is true
func RetryableErrorKinds() []ErrorKind {
	return []ErrorKind{ErrorKindRateLimited, ErrorKindTransport, ErrorKindRemoteServer, ErrorKindUnknown}
}

// RetryAfterOf returns the wait carried by a RateLimitedError, or zero
func RetryAfterOf(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
