package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/printforge/pkg/entitlement"
	"github.com/dmitrymomot/printforge/pkg/firebase"
	"github.com/dmitrymomot/printforge/pkg/importjob"
)

var (
	ErrUnauthorized   = errors.New("authentication required")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrBodyTooLarge   = errors.New("request body too large")
	ErrStreaming      = errors.New("streaming unsupported")
	ErrRateLimited    = errors.New("too many requests")
)

// apiError is the wire form of a failed request.
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps service sentinels to a status and a stable error code.
// Unknown errors are reported as internal without leaking their text.
func classify(err error) apiError {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, ErrBodyTooLarge):
		return apiError{http.StatusRequestEntityTooLarge, "body_too_large", ErrBodyTooLarge.Error()}
	case errors.Is(err, ErrInvalidRequest):
		return apiError{http.StatusBadRequest, "invalid_request", err.Error()}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, firebase.ErrMissingToken),
		errors.Is(err, firebase.ErrInvalidToken),
		errors.Is(err, firebase.ErrTokenRevoked),
		errors.Is(err, firebase.ErrUserDisabled):
		return apiError{http.StatusUnauthorized, "unauthorized", ErrUnauthorized.Error()}
	case errors.Is(err, ErrRateLimited):
		return apiError{http.StatusTooManyRequests, "rate_limited", "too many job requests, retry later"}
	case errors.Is(err, ErrNotFound), errors.Is(err, importjob.ErrJobNotFound):
		return apiError{http.StatusNotFound, "not_found", "resource not found"}

	case errors.Is(err, entitlement.ErrQuotaExhausted):
		return apiError{http.StatusPaymentRequired, "quota_exhausted", "monthly generation quota exhausted"}
	case errors.Is(err, entitlement.ErrTrialAlreadyUsed):
		return apiError{http.StatusConflict, "trial_already_used", "trial already used"}
	case errors.Is(err, entitlement.ErrTrialNotAvailable):
		return apiError{http.StatusConflict, "trial_not_available", "trial not available while subscribed"}
	case errors.Is(err, entitlement.ErrAlreadySubscribed):
		return apiError{http.StatusConflict, "already_subscribed", "an active subscription already exists"}
	case errors.Is(err, entitlement.ErrCheckoutIncomplete):
		return apiError{http.StatusConflict, "checkout_incomplete", "checkout session is not paid"}
	case errors.Is(err, entitlement.ErrCheckoutMismatch):
		return apiError{http.StatusForbidden, "checkout_mismatch", "checkout session belongs to another user"}
	case errors.Is(err, entitlement.ErrUnknownPlan):
		return apiError{http.StatusBadRequest, "unknown_plan", "unknown plan"}
	case errors.Is(err, entitlement.ErrInvalidSignature):
		return apiError{http.StatusBadRequest, "invalid_signature", "invalid webhook signature"}
	case errors.Is(err, entitlement.ErrProviderUnavailable):
		return apiError{http.StatusBadGateway, "provider_unavailable", "billing provider unavailable"}
	case errors.Is(err, entitlement.ErrConflict), errors.Is(err, importjob.ErrConflict):
		return apiError{http.StatusConflict, "conflict", "concurrent update, retry"}

	case errors.Is(err, importjob.ErrInvalidSource):
		return apiError{http.StatusBadRequest, "invalid_source", "source must be an http(s) URL"}
	case errors.Is(err, importjob.ErrEmptyUpload):
		return apiError{http.StatusBadRequest, "empty_upload", "uploaded file is empty"}
	}
	return apiError{http.StatusInternalServerError, "internal", "internal server error"}
}
