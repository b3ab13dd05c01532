package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
	documentrepo "github.com/corpora-dev/corpora/internal/repository/document"
	memstore "github.com/corpora-dev/corpora/internal/vectorstore/memory"
	healthuc "github.com/corpora-dev/corpora/internal/usecase/health"
	knowledgeuc "github.com/corpora-dev/corpora/internal/usecase/knowledge"
	usageuc "github.com/corpora-dev/corpora/internal/usecase/usage"
)

// Handler-level fakes for the pipeline stages that would otherwise need
// real files and provider credentials.

type stubParser struct{}

func (stubParser) DetectType(string, []byte) (domain.FileType, error) {
	return domain.FileTypeTXT, nil
}

func (stubParser) Parse(_ context.Context, content []byte, _ domain.FileType, filename string) (string, domain.DocumentMetadata, error) {
	return string(content), domain.DocumentMetadata{Title: filename, FileType: domain.FileTypeTXT}, nil
}

type stubChunker struct{}

func (stubChunker) ChunkDocument(documentID, text string, _ domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	return []domain.DocumentChunk{{
		ID:      documentID + "-0",
		Content: text,
		Metadata: domain.ChunkMetadata{
			DocumentID: documentID,
			TokenCount: domain.EstimateTokens(text),
		},
	}}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedChunks(ctx context.Context, chunks []domain.DocumentChunk) ([]domain.DocumentChunk, error) {
	for i := range chunks {
		chunks[i].Embedding = []float32{1, 0}
	}
	domain.UsageFromContext(ctx).AddTokens(7)
	return chunks, nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	domain.UsageFromContext(ctx).AddTokens(2)
	return []float32{1, 0}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *documentrepo.MemoryRepo) {
	t.Helper()

	repo := documentrepo.NewMemory()
	svc := knowledgeuc.New(
		stubParser{}, stubChunker{}, stubEmbedder{},
		memstore.New(2), repo,
		knowledgeuc.Config{ChunkStrategy: "recursive"}, zap.NewNop(),
	)
	health := healthuc.New()
	server := NewServer(svc, usageuc.New(nil), health, 1<<20, zap.NewNop())

	r := gochi.NewRouter()
	r.Use(BearerAuthMiddleware(map[string]string{"key-1": "u1"}))
	server.Register(r)
	return r, repo
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(uploadFileField, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err = mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err = mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer key-1")
	return req
}

func TestUploadEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "notes.txt", "redis is an in-memory store", map[string]string{"team": "infra"})
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", body))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Embedding-Tokens"); got != "7" {
		t.Errorf("X-Embedding-Tokens = %q, want 7", got)
	}

	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Status != domain.StatusReady || doc.ChunkCount != 1 {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Metadata.Custom["team"] != "infra" {
		t.Errorf("custom metadata = %v", doc.Metadata.Custom)
	}
}

func TestUploadEndpoint_MissingFile(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("team", "infra")
	_ = mw.Close()

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", &buf))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != codeValidationFailed {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	// Ingest first so the memory store has a vector to return.
	body, contentType := multipartUpload(t, "notes.txt", "redis is an in-memory store", nil)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}

	searchBody := strings.NewReader(`{"query": "what is redis?", "top_k": 3}`)
	req = authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", searchBody))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[0].DocumentTitle != "notes.txt" {
		t.Errorf("title = %q", resp.Results[0].DocumentTitle)
	}
	if got := rec.Header().Get("X-Embedding-Tokens"); got != "2" {
		t.Errorf("X-Embedding-Tokens = %q, want 2", got)
	}
}

func TestSearchEndpoint_EmptyQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", strings.NewReader(`{"query": ""}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestContextEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "notes.txt", "redis is an in-memory store", nil)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}

	req = authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/context",
		strings.NewReader(`{"query": "what is redis?"}`)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var kc domain.KnowledgeContext
	if err := json.Unmarshal(rec.Body.Bytes(), &kc); err != nil {
		t.Fatal(err)
	}
	if len(kc.Citations) != 1 || kc.Citations[0].ID != "citation_1" {
		t.Errorf("citations = %+v", kc.Citations)
	}
	if !strings.Contains(kc.FormattedContext, "Source References:") {
		t.Errorf("formatted context missing references:\n%s", kc.FormattedContext)
	}
}

func TestDocumentLifecycleEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "notes.txt", "content", nil)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}

	// List
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/documents", nil)))
	var list documentListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 {
		t.Errorf("list total = %d, want 1", list.Total)
	}

	// Get
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/knowledge/documents/%s", doc.ID), nil)))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	// Delete
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/v1/knowledge/documents/%s", doc.ID), nil)))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}

	// Get after delete → 404 document_not_found
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/knowledge/documents/%s", doc.ID), nil)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != codeDocumentNotFound {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "notes.txt", "content", nil)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/stats", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats knowledgeuc.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("total documents = %d, want 1", stats.TotalDocuments)
	}
	if stats.VectorStore.Vectors != 1 {
		t.Errorf("vector stats = %+v", stats.VectorStore)
	}
}

func TestUsageEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/usage?period=day", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report usageuc.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Period != usageuc.PeriodDay {
		t.Errorf("period = %q, want day", report.Period)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var report healthuc.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Status != healthuc.Healthy {
		t.Errorf("status = %q", report.Status)
	}
}
