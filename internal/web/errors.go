package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/store"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs err with the request ID and writes a JSON error.
// Storage errors are reported by kind only.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	code := errorCode(err, status)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNoRuns):
		return http.StatusNotFound
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case core.KindOf(err) == core.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error, status int) string {
	if kind := core.KindOf(err); kind != core.KindNone {
		return kind.String()
	}
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}
