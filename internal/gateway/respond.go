package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/auth"
	"github.com/fjod/chibi-storefront/internal/cart"
	"github.com/fjod/chibi-storefront/internal/catalog"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleError maps client errors to gateway statuses. Backend 4xx answers
// pass through with their normalised message.
func handleError(w http.ResponseWriter, err error) {
	var (
		apiErr *apiclient.APIError
		urlErr *url.Error
	)
	switch {
	case errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, auth.ErrSessionExpired):
		respondError(w, http.StatusUnauthorized, "session_expired", "session expired, please log in again")
	case errors.Is(err, auth.ErrNotAuthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "not logged in")
	case errors.Is(err, catalog.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, cart.ErrSessionInvalid):
		respondError(w, http.StatusNotFound, "session_invalid", err.Error())
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			respondError(w, http.StatusNotFound, "not_found", apiErr.Message)
		case apiErr.StatusCode == http.StatusUnauthorized:
			respondError(w, http.StatusUnauthorized, "unauthenticated", apiErr.Message)
		case apiErr.StatusCode == http.StatusForbidden:
			respondError(w, http.StatusForbidden, "permission_denied", apiErr.Message)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", apiErr.Message)
		case apiErr.StatusCode >= 500:
			respondError(w, http.StatusBadGateway, "upstream_error", apiErr.Message)
		default:
			respondError(w, http.StatusBadRequest, "invalid_argument", apiErr.Message)
		}
	case errors.Is(err, apiclient.ErrServiceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", apiclient.Message(err))
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", apiclient.Message(err))
	case errors.As(err, &urlErr):
		respondError(w, http.StatusBadGateway, "upstream_unreachable", apiclient.Message(err))
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
