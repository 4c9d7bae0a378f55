package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput            = "INTEGRATIONS_BAD_INPUT"
	ErrorAdapterNotFound     = "INTEGRATIONS_ADAPTER_NOT_FOUND"
	ErrorProviderNotFound    = "INTEGRATIONS_PROVIDER_NOT_FOUND"
	ErrorCredentialsNotFound = "INTEGRATIONS_CREDENTIALS_NOT_FOUND"
	ErrorOAuthStateInvalid   = "INTEGRATIONS_OAUTH_STATE_INVALID"
	ErrorRateLimited         = "INTEGRATIONS_RATE_LIMITED"
	ErrorCircuitOpen         = "INTEGRATIONS_CIRCUIT_OPEN"
	ErrorAuthFailed          = "INTEGRATIONS_AUTH_FAILED"
	ErrorUpstreamFailed      = "INTEGRATIONS_UPSTREAM_FAILED"
	ErrorInternal            = "INTEGRATIONS_INTERNAL_ERROR"
)

// ErrNotFound is the sentinel stores return when a record is absent.
var ErrNotFound = errors.New("core: record not found")

func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, ErrNotFound):
		return newError(err.Error(), goerrors.CategoryNotFound, ErrorCredentialsNotFound)
	case strings.Contains(msg, "adapter") && strings.Contains(msg, "not registered"):
		return newError(err.Error(), goerrors.CategoryNotFound, ErrorAdapterNotFound)
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"),
		strings.Contains(msg, "unknown oauth provider"):
		return newError(err.Error(), goerrors.CategoryNotFound, ErrorProviderNotFound)
	case strings.Contains(msg, "oauth state"):
		return newError(err.Error(), goerrors.CategoryAuth, ErrorOAuthStateInvalid)
	case strings.Contains(msg, "circuit"):
		return newError(err.Error(), goerrors.CategoryExternal, ErrorCircuitOpen)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

// envelopeDefaults supplies the http code and text code for a category
// when the error carries neither.
var envelopeDefaults = map[goerrors.Category]struct {
	status   int
	textCode string
}{
	goerrors.CategoryBadInput:   {http.StatusBadRequest, ErrorBadInput},
	goerrors.CategoryValidation: {http.StatusBadRequest, ErrorBadInput},
	goerrors.CategoryNotFound:   {http.StatusNotFound, ErrorAdapterNotFound},
	goerrors.CategoryAuth:       {http.StatusUnauthorized, ErrorAuthFailed},
	goerrors.CategoryAuthz:      {http.StatusForbidden, ErrorAuthFailed},
	goerrors.CategoryRateLimit:  {http.StatusTooManyRequests, ErrorRateLimited},
	goerrors.CategoryExternal:   {http.StatusBadGateway, ErrorUpstreamFailed},
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	defaults, ok := envelopeDefaults[err.Category]
	if !ok {
		defaults.status = http.StatusInternalServerError
		defaults.textCode = ErrorInternal
	}
	if err.Code == 0 {
		err.Code = defaults.status
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaults.textCode
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}
