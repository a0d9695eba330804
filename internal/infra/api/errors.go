package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/infra/logging"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Debug   string         `json:"debug,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errorKinds = []struct {
	kind   error
	status int
	code   string
	msg    string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found", "Not found."},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", "Invalid request."},
	{domain.ErrInvalidState, http.StatusBadRequest, "invalid_state", "Request cannot be completed."},
	{domain.ErrSignatureInvalid, http.StatusBadRequest, "invalid_signature", "Invalid signature."},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Unauthorized."},
	{domain.ErrAlreadyPaid, http.StatusConflict, "already_paid", "Purchase already paid."},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists", "Already exists."},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many requests."},
	{domain.ErrGateway, http.StatusBadGateway, "gateway_error", "Payment provider error."},
	{domain.ErrUnavailable, http.StatusInternalServerError, "unavailable", "Service unavailable."},
}

// statusOf maps a domain error onto an HTTP status and a default body.
func statusOf(err error) (int, errorBody) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status, errorBody{Code: k.code, Message: k.msg}
		}
	}
	return http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal error."}
}

// writeError renders err as {code,message,details,debug}. debug carries the
// raw error chain and is only filled in dev.
func writeError(w http.ResponseWriter, r *http.Request, err error, dev bool, logger *zerolog.Logger) {
	status, body := statusOf(err)
	if re, ok := domain.AsReason(err); ok {
		if re.Reason != "" {
			body.Code = re.Reason
		}
		if re.Hint != "" {
			body.Message = re.Hint
		}
		body.Details = re.Details
	}
	if dev {
		body.Debug = err.Error()
	}
	if status >= 500 && logger != nil {
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, body)
}
