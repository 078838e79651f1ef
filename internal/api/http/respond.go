package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

const maxBody = 1 << 20

// envelope is the shape of every API response body.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func ok(w http.ResponseWriter, data any, msg string) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: msg})
}

func fail(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, envelope{Success: false, Message: msg, Code: code})
}

// respondError maps the engine's error taxonomy onto HTTP. Internal causes
// are logged with the request id and never shown to the learner.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *clinical.ValidationError
		me *clinical.ConfigurationError
		ne *clinical.NotFoundError
		ce *clinical.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		fail(w, http.StatusBadRequest, "invalid_request", ve.Error())
	case errors.As(err, &me):
		slog.Warn("case misconfigured",
			"case", me.CaseID, "err", me.Message, "request_id", middleware.GetReqID(r.Context()))
		fail(w, http.StatusUnprocessableEntity, "case_misconfigured",
			"This case is not set up correctly. Please contact the instructor.")
	case errors.As(err, &ne):
		fail(w, http.StatusNotFound, "not_found", ne.Error())
	case errors.As(err, &ce):
		fail(w, http.StatusConflict, ce.Code, ce.Message)
	default:
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "err", err, "request_id", middleware.GetReqID(r.Context()))
		fail(w, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.")
	}
}

// decode reads a JSON body of at most maxBody bytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			fail(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return false
		}
		fail(w, http.StatusBadRequest, "invalid_request", "bad json")
		return false
	}
	return true
}

// idList accepts a single id field, a list field, or both.
func idList(one *int64, many []int64) []int64 {
	if one == nil {
		return many
	}
	return append([]int64{*one}, many...)
}
