package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/knowledge/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("auth = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if got := r.MultipartForm.Value["team"]; len(got) != 1 || got[0] != "infra" {
			t.Errorf("team field = %v", got)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Document{ID: "d1", Status: "ready", ChunkCount: 2})
	}))
	defer srv.Close()

	client := New(srv.URL, WithAPIKey("key-1"))
	doc, err := client.Upload(context.Background(), "notes.txt", []byte("hello"), map[string]string{"team": "infra"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.ID != "d1" || doc.ChunkCount != 2 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Query != "what is redis?" || req.TopK != 3 {
			t.Errorf("req = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{
			Results: []SearchResult{{ChunkID: "c1", Score: 0.91}},
			Total:   1,
		})
	}))
	defer srv.Close()

	results, err := New(srv.URL).Search(context.Background(), SearchRequest{Query: "what is redis?", TopK: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Errorf("results = %+v", results)
	}
}

func TestGenerationContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/knowledge/context" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(KnowledgeContext{
			Query:            "q",
			FormattedContext: "[citation_1] hello\n\nSource References:\n[citation_1] notes.txt\n",
			Citations:        []Citation{{ID: "citation_1"}},
			TotalTokens:      12,
		})
	}))
	defer srv.Close()

	kc, err := New(srv.URL).GenerationContext(context.Background(), ContextRequest{Query: "q"})
	if err != nil {
		t.Fatalf("GenerationContext: %v", err)
	}
	if len(kc.Citations) != 1 || kc.TotalTokens != 12 {
		t.Errorf("kc = %+v", kc)
	}
}

func TestDeleteDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/knowledge/documents/d1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL).DeleteDocument(context.Background(), "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code": "document_not_found", "message": "document not found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Document(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v", err)
	}
}

func TestQuotaErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"code": "embedding_quota_exceeded", "message": "embedding quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestStatsAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/knowledge/stats":
			_ = json.NewEncoder(w).Encode(Stats{
				TotalDocuments: 4,
				VectorStore:    VectorStoreStats{Backend: "qdrant", Vectors: 40},
			})
		case "/api/v1/knowledge/usage":
			if got := r.URL.Query().Get("period"); got != "day" {
				t.Errorf("period = %q", got)
			}
			_ = json.NewEncoder(w).Encode(UsageReport{Period: "day", TokensUsed: 123})
		default:
			t.Errorf("path = %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := New(srv.URL)
	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalDocuments != 4 || stats.VectorStore.Vectors != 40 {
		t.Errorf("stats = %+v", stats)
	}

	report, err := client.Usage(context.Background(), "day")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if report.TokensUsed != 123 {
		t.Errorf("report = %+v", report)
	}
}

func TestHealthDegradedWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthReport{
			Status: "degraded",
			Checks: map[string]string{"redis": "error"},
		})
	}))
	defer srv.Close()

	report, err := New(srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != "degraded" || report.Checks["redis"] != "error" {
		t.Errorf("report = %+v", report)
	}
}
