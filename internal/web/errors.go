package web

// errors.go centralizes error responses. Technical errors are logged
// with the request ID for correlation; clients only ever see sanitized
// messages from the classifier.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mberg/product-importer/internal/importer"
	"github.com/mberg/product-importer/internal/logging"
	"github.com/mberg/product-importer/internal/store"
)

// ErrorResponse is the JSON body for every error status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError maps an error to its status code and sanitized message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := ""
	code := ""

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		msg = "not found"
	case store.IsUniqueViolation(err):
		status = http.StatusConflict
		msg = "a record with this SKU already exists"
		code = string(importer.CatDuplicateKey)
	case errors.Is(err, importer.ErrTooManyImports):
		status = http.StatusTooManyRequests
		msg = err.Error()
	default:
		um := importer.Classify(err)
		msg = um.Message
		code = string(um.Category)
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Code: code})
}

// writeError writes a JSON error with a literal message, for request
// validation failures where no classification is needed.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logging.FromContext(r.Context()).Warn("request rejected",
		"path", r.URL.Path,
		"status", status,
		"reason", message,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// writeJSON encodes v with the given status. Encoding errors are logged
// since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
