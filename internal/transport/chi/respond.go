package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
)

// errorCode is the machine-readable error identifier in API responses.
type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeUnauthorized      errorCode = "unauthorized"
	codeValidationFailed  errorCode = "validation_failed"
	codeDocumentNotFound  errorCode = "document_not_found"
	codeUnsupportedFormat errorCode = "unsupported_format"
	codePayloadTooLarge   errorCode = "payload_too_large"
	codeVectorDimMismatch errorCode = "vector_dim_mismatch"
	codeRateLimited       errorCode = "rate_limited"
	codeQuotaExceeded     errorCode = "embedding_quota_exceeded"
	codeEmbeddingProvider errorCode = "embedding_provider_error"
	codeVectorStoreFailed errorCode = "vector_store_error"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// embeddingProviderHandler maps provider failures that no sentinel covers.
func embeddingProviderHandler(w http.ResponseWriter, err error, _ string) bool {
	var ee *domain.EmbeddingError
	if !errors.As(err, &ee) {
		return false
	}
	writeError(w, http.StatusBadGateway, codeEmbeddingProvider, "embedding provider error")
	return true
}

// vectorStoreHandler maps backend failures that no sentinel covers.
func vectorStoreHandler(w http.ResponseWriter, err error, _ string) bool {
	var ve *domain.VectorStoreError
	if !errors.As(err, &ve) {
		return false
	}
	writeError(w, http.StatusBadGateway, codeVectorStoreFailed, "vector store error")
	return true
}

// domainErrorHandlers is ordered: specific sentinels first, typed
// catch-alls last.
func domainErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, codeUnsupportedFormat),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		documentErrorHandler,
		embeddingProviderHandler,
		vectorStoreHandler,
	}
}

// documentErrorHandler maps parse/chunk failures to 422: the request was
// well-formed but the document itself could not be processed.
func documentErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var de *domain.DocumentError
	if !errors.As(err, &de) {
		return false
	}
	writeError(w, http.StatusUnprocessableEntity, codeValidationFailed, msg)
	return true
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrDocumentNotFound,
		domain.ErrUnsupportedFormat,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	var de *domain.DocumentError
	if errors.As(err, &de) {
		return de.Error()
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
