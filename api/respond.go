package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/production"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the machine-readable half of a failed response.
type ErrorBody struct {
	Kind   production.Kind `json:"kind"`
	Detail string          `json:"detail"`
	Field  string          `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Named("http").Error().Err(err).Msg("failed to encode response")
	}
}

func respondOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// respondError maps err's Kind to a status. Internal errors are logged
// and their detail is not echoed to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := production.KindOf(err)
	status := statusOf(kind)

	body := &ErrorBody{Kind: kind, Detail: production.DetailOf(err)}
	var perr *production.Error
	if errors.As(err, &perr) {
		body.Field = perr.Field
	}

	log := logger.C(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Detail = "internal error"
	} else {
		log.Debug().Err(err).Str("kind", string(kind)).Msg("request rejected")
	}

	writeJSON(w, status, Envelope{Success: false, Message: body.Detail, Error: body})
}

func statusOf(kind production.Kind) int {
	switch kind {
	case production.KindValidation, production.KindShiftWindow:
		return http.StatusBadRequest
	case production.KindReferential, production.KindNotFound:
		return http.StatusNotFound
	case production.KindComputation:
		return http.StatusUnprocessableEntity
	case production.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
