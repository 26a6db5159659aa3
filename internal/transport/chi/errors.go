package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	logpkg "github.com/kailas-cloud/vecmatch/internal/logger"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// errorHandlers are tried in order. ErrCollectionNotFound precedes ErrRetrieval
// because an unknown index matches both.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, CodeCollectionNotFound),
	sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
	sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrInvalidSchema, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrRetrieval, http.StatusBadGateway, CodeIndexUnavailable),
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Validation errors carry their full message since it only describes the request.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidQuery) || errors.Is(err, domain.ErrInvalidSchema) ||
		errors.Is(err, domain.ErrVectorDimMismatch) {
		return err.Error()
	}
	sentinels := []error{domain.ErrCollectionNotFound, domain.ErrRetrieval}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
