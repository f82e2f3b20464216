package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/timeline"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Upgrade bool   `json:"upgrade,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// classify maps a service error to its HTTP status and response body.
func classify(err error) (int, errorResponse) {
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		limit, count := exceeded.Limit, exceeded.Count
		return http.StatusPaymentRequired, errorResponse{
			Error:   "You have reached the pet limit of your plan. Upgrade to add more pets.",
			Code:    "quota_exceeded",
			Upgrade: true,
			Tier:    string(exceeded.Tier),
			Limit:   &limit,
			Count:   &count,
		}
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusPaymentRequired, errorResponse{Error: err.Error(), Code: "quota_exceeded", Upgrade: true}
	case errors.Is(err, quota.ErrFeatureUnavailable):
		return http.StatusPaymentRequired, errorResponse{Error: err.Error(), Code: "premium_required", Upgrade: true}
	case errors.Is(err, quota.ErrTierLookupFailed):
		return http.StatusServiceUnavailable, errorResponse{Error: quota.ErrTierLookupFailed.Error() + ", please try again", Code: "try_again"}
	case errors.Is(err, quota.ErrCountLookupFailed):
		return http.StatusServiceUnavailable, errorResponse{Error: quota.ErrCountLookupFailed.Error() + ", please try again", Code: "try_again"}
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "email_taken"}
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: "unauthenticated"}
	case errors.Is(err, auth.ErrResetTokenInvalid):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_token"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"}
	case errors.Is(err, domain.ErrInvalid),
		errors.Is(err, timeline.ErrEmptySet),
		errors.Is(err, records.ErrUnsupportedFormat):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}
