package tts

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// providerErrorCodes maps vendor-specific error codes onto the canonical
// taxonomy. Codes take precedence over the HTTP status class because some
// vendors reuse one status for several distinct failures.
var providerErrorCodes = map[string]map[string]ErrorKind{
	ProviderElevenLabs: {
		"voice_not_found":         KindInvalidInput,
		"invalid_api_key":         KindUnauthorized,
		"quota_exceeded":          KindRateLimited,
		"max_character_limit":     KindInvalidInput,
		"system_busy":             KindProviderUnavailable,
		"voice_limit_reached":     KindInvalidInput,
		"invalid_voice_settings":  KindInvalidInput,
		"only_for_creator_plus":   KindUnauthorized,
		"sound_generation_failed": KindInternal,
	},
	ProviderPolly: {
		"ThrottlingException":             KindRateLimited,
		"InvalidSsmlException":            KindInvalidInput,
		"TextLengthExceededException":     KindInvalidInput,
		"LexiconNotFoundException":        KindInvalidInput,
		"InvalidSampleRateException":      KindInvalidInput,
		"ServiceFailureException":         KindProviderUnavailable,
		"UnsupportedPlsLanguageException": KindInvalidInput,
		"SynthesisTaskNotFoundException":  KindInvalidInput,
	},
	ProviderGoogle: {
		"UNAUTHENTICATED":    KindUnauthorized,
		"PERMISSION_DENIED":  KindUnauthorized,
		"RESOURCE_EXHAUSTED": KindRateLimited,
		"INVALID_ARGUMENT":   KindInvalidInput,
		"NOT_FOUND":          KindInvalidInput,
		"UNAVAILABLE":        KindProviderUnavailable,
		"DEADLINE_EXCEEDED":  KindTimeout,
	},
	ProviderDeepgram: {
		"INVALID_AUTH":             KindUnauthorized,
		"INSUFFICIENT_PERMISSIONS": KindUnauthorized,
		"RATE_LIMIT_EXCEEDED":      KindRateLimited,
		"INVALID_MODEL":            KindInvalidInput,
		"PAYLOAD_TOO_LARGE":        KindInvalidInput,
	},
}

// Normalize folds an adapter-reported failure into the canonical taxonomy.
// Already-canonical errors pass through with the provider filled in.
func Normalize(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var canonical *Error
	if errors.As(err, &canonical) {
		if canonical.Provider == "" {
			canonical.Provider = provider
		}
		return canonical
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, "", "operation timed out", err)
	}
	if errors.Is(err, ErrEmptyText) {
		return NewError(KindInvalidInput, provider, "", ErrEmptyText.Error(), err)
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionClosed) {
		return NewError(KindInternal, provider, "", err.Error(), err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return normalizeHTTP(provider, httpErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(KindTimeout, provider, "", "network timeout", err)
		}
		return NewError(KindProviderUnavailable, provider, "", "network error", err)
	}

	return NewError(KindInternal, provider, "", err.Error(), err)
}

func normalizeHTTP(provider string, httpErr *HTTPError) *Error {
	if httpErr.Provider != "" {
		provider = httpErr.Provider
	}

	if codes, ok := providerErrorCodes[provider]; ok && httpErr.Code != "" {
		if kind, ok := codes[httpErr.Code]; ok {
			return NewError(kind, provider, httpErr.Code, httpErr.Message, httpErr)
		}
	}

	return NewError(kindForStatus(httpErr.Status), provider, httpErr.Code, httpErr.Message, httpErr)
}

// kindForStatus is the shared HTTP status-class fallback used when a
// vendor code is absent or unrecognized.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadRequest, http.StatusNotFound,
		http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return KindInvalidInput
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusNotImplemented:
		return KindUnsupportedOperation
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindProviderUnavailable
	}
	if status >= http.StatusInternalServerError {
		return KindInternal
	}
	return KindInternal
}
