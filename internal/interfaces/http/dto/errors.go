package dto

import (
	"errors"
	"net/http"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// Error codes. Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal         = "ERR_INTERNAL"
	ErrCodeValidation       = "ERR_VALIDATION"
	ErrCodeBadRequest       = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON      = "ERR_INVALID_JSON"
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeForbidden        = "ERR_FORBIDDEN"
	ErrCodeTokenExpired     = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid     = "ERR_TOKEN_INVALID"
	ErrCodeTokenRevoked     = "ERR_TOKEN_REVOKED"
	ErrCodeSignatureInvalid = "ERR_SIGNATURE_INVALID"
	ErrCodeNotFound         = "ERR_NOT_FOUND"
	ErrCodeConflict         = "ERR_CONFLICT"
	ErrCodeInvalidState     = "ERR_INVALID_STATE"
	ErrCodeUnsupported      = "ERR_UNSUPPORTED"
	ErrCodeTooLarge         = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInvalidJSON:      http.StatusBadRequest,
	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,
	ErrCodeTokenRevoked:     http.StatusUnauthorized,
	ErrCodeSignatureInvalid: http.StatusUnauthorized,
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeConflict:         http.StatusConflict,
	ErrCodeInvalidState:     http.StatusConflict,
	ErrCodeUnsupported:      http.StatusUnprocessableEntity,
	ErrCodeTooLarge:         http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:      http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeFor classifies a service error. Internal errors keep a generic message
// so storage details never reach the caller.
func CodeFor(err error) (code, message string) {
	var verr *marketsync.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrCodeValidation, verr.Error()
	case errors.Is(err, marketsync.ErrInvalidQueueKey), errors.Is(err, marketsync.ErrValidation):
		return ErrCodeValidation, err.Error()
	case errors.Is(err, appsync.ErrSignatureMissing), errors.Is(err, appsync.ErrSignatureInvalid):
		return ErrCodeSignatureInvalid, "Webhook signature verification failed"
	case errors.Is(err, marketsync.ErrQueueItemNotFound),
		errors.Is(err, marketsync.ErrMarketplaceNotFound),
		errors.Is(err, marketsync.ErrMappingNotFound),
		errors.Is(err, marketsync.ErrStatusNotConfigured):
		return ErrCodeNotFound, err.Error()
	case errors.Is(err, marketsync.ErrInvalidTransition):
		return ErrCodeInvalidState, err.Error()
	case errors.Is(err, marketsync.ErrMarketplaceDisabled):
		return ErrCodeConflict, err.Error()
	case errors.Is(err, marketsync.ErrUnsupported), errors.Is(err, marketsync.ErrClientNotRegistered):
		return ErrCodeUnsupported, err.Error()
	}
	return ErrCodeInternal, "Internal server error"
}
