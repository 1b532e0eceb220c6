package marketsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		kind      ErrorKind
		retryable bool
	}{
		{"auth", &AuthError{Marketplace: MarketplaceTrendyol, Message: "bad key"}, ErrAuth, ErrorKindAuth, false},
		{"rate limited", &RateLimitedError{RetryAfter: time.Second}, ErrRateLimited, ErrorKindRateLimited, true},
		{"validation", &ValidationError{Message: "barcode"}, ErrValidation, ErrorKindValidation, false},
		{"transport", &TransportError{Err: context.DeadlineExceeded}, ErrTransport, ErrorKindTransport, true},
		{"remote server", &RemoteServerError{StatusCode: 503}, ErrRemoteServer, ErrorKindRemoteServer, true},
		{"mapping not found", &MappingNotFoundError{EntityType: EntityOrder, LocalEntityID: "7"}, ErrMappingNotFound, ErrorKindMappingNotFound, false},
		{"status not configured", fmt.Errorf("lookup: %w", ErrStatusNotConfigured), ErrStatusNotConfigured, ErrorKindStatusNotConfigured, false},
		{"unknown", errors.New("something odd"), nil, ErrorKindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("push: %w", tt.err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, wrapped, tt.sentinel)
			}
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
		})
	}

	assert.Equal(t, ErrorKindNone, KindOf(nil))
}

func TestRetryAfterOf(t *testing.T) {
	err := fmt.Errorf("stock: %w", &RateLimitedError{Marketplace: MarketplaceN11, RetryAfter: 30 * time.Second})
	assert.Equal(t, 30*time.Second, RetryAfterOf(err))
	assert.Zero(t, RetryAfterOf(errors.New("x")))
}

func TestTransportError_UnwrapsCause(t *testing.T) {
	err := &TransportError{Marketplace: MarketplaceEbay, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "ebay")
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{
		Marketplace: MarketplaceHepsiburada,
		Message:     "listing rejected",
		Fields:      []FieldError{{Field: "price", Message: "must be positive"}},
	}
	assert.Equal(t, "hepsiburada: validation failed: listing rejected (price: must be positive)", err.Error())
}

func TestFailureFromError(t *testing.T) {
	f := FailureFromError(&RateLimitedError{Marketplace: MarketplaceAmazon, RetryAfter: 5 * time.Second})
	assert.True(t, f.Retryable)
	assert.Equal(t, ErrorKindRateLimited, f.Kind)
	assert.Equal(t, 5*time.Second, f.RetryAfter)
}
