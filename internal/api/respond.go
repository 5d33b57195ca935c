package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, retryable bool, format string, args ...any) {
	writeJSON(w, code, ErrorResponse{Error: fmt.Sprintf(format, args...), Retryable: retryable})
}

// writeError maps err onto a status code and a client-safe message. The full
// chain goes to the log only.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", apperr.KindOf(err),
			"request_id", RequestIDFrom(r.Context()),
			"error", err,
		)
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "kind", apperr.KindOf(err), "error", err)
	}
	writeJSON(w, code, ErrorResponse{
		Error:     apperr.PublicMessage(err),
		Retryable: apperr.IsRetryable(err),
	})
}

// decodeBody reads a JSON body of at most maxRequestBodySize into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.NewValidation("invalid request body: %v", err)
	}
	return nil
}

func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

type statusResponse struct {
	Status string `json:"status"`
}
