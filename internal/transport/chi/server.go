// Package chi exposes the knowledge pipeline over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
	healthuc "github.com/corpora-dev/corpora/internal/usecase/health"
	knowledgeuc "github.com/corpora-dev/corpora/internal/usecase/knowledge"
	usageuc "github.com/corpora-dev/corpora/internal/usecase/usage"
)

// uploadFileField is the multipart form field carrying the document.
const uploadFileField = "file"

// Server hosts the knowledge API handlers.
type Server struct {
	knowledge      *knowledgeuc.Service
	usage          *usageuc.Service
	health         *healthuc.Service
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	knowledge *knowledgeuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Server {
	return &Server{
		knowledge:      knowledge,
		usage:          usage,
		health:         health,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		errorHandlers:  domainErrorHandlers(),
	}
}

// Register declares the API routes on the router.
func (s *Server) Register(r gochi.Router) {
	r.Route("/api/v1/knowledge", func(r gochi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/search", s.handleSearch)
		r.Post("/context", s.handleContext)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/stats", s.handleStats)
		r.Get("/usage", s.handleUsage)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
}

// handleUpload handles POST /api/v1/knowledge/upload (multipart). Every
// form field other than the file becomes custom document metadata.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"upload exceeds "+strconv.FormatInt(s.maxUploadBytes, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile(uploadFileField)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read upload: "+err.Error())
		return
	}

	custom := make(map[string]string)
	for key, vals := range r.MultipartForm.Value {
		if len(vals) > 0 {
			custom[key] = vals[0]
		}
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	doc, err := s.knowledge.Upload(ctx, UserIDFromContext(r.Context()), header.Filename, content, custom)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusCreated, doc)
}

type searchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	MinScore    float64  `json:"min_score"`
	DocumentIDs []string `json:"document_ids"`
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
	Total   int                   `json:"total"`
}

// handleSearch handles POST /api/v1/knowledge/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.knowledge.Search(ctx, UserIDFromContext(r.Context()),
		req.Query, req.TopK, req.MinScore, req.DocumentIDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if results == nil {
		results = []domain.SearchResult{}
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Total: len(results)})
}

type contextRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
	MaxTokens int    `json:"max_tokens"`
}

// handleContext handles POST /api/v1/knowledge/context.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	kc, err := s.knowledge.GenerationContext(ctx, UserIDFromContext(r.Context()),
		req.Query, req.TopK, req.MaxTokens)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, kc)
}

type documentListResponse struct {
	Documents []domain.Document `json:"documents"`
	Total     int               `json:"total"`
}

// handleListDocuments handles GET /api/v1/knowledge/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.knowledge.List(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, documentListResponse{Documents: docs, Total: len(docs)})
}

// handleGetDocument handles GET /api/v1/knowledge/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.knowledge.Get(r.Context(), UserIDFromContext(r.Context()), gochi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument handles DELETE /api/v1/knowledge/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.knowledge.Delete(r.Context(), UserIDFromContext(r.Context()), gochi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats handles GET /api/v1/knowledge/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.knowledge.Stats(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUsage handles GET /api/v1/knowledge/usage?period=day|month.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = usageuc.PeriodMonth
	}
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}
