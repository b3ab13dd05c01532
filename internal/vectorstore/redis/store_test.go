package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/db"
	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

// fakeDB implements the database slice used by the store.
type fakeDB struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	sets    map[string]map[string]bool
	indexes map[string]*db.IndexDefinition

	knnQueries []*db.KNNQuery
	knnResult  *db.SearchResult
	knnErr     error
	countValue int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		hashes:  map[string]map[string]string{},
		sets:    map[string]map[string]bool{},
		indexes: map[string]*db.IndexDefinition{},
	}
}

func (f *fakeDB) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[key] = fields
	return nil
}

func (f *fakeDB) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for _, it := range items {
		if err := f.HSet(ctx, it.Key, it.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDB) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return h, nil
}

func (f *fakeDB) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		h, err := f.HGetAll(ctx, k)
		if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (f *fakeDB) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hashes, key)
	delete(f.sets, key)
	return nil
}

func (f *fakeDB) DelMulti(_ context.Context, keys []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
			continue
		}
		if _, ok := f.sets[k]; ok {
			delete(f.sets, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeDB) Scan(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range f.sets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeDB) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sets[key]
	if set == nil {
		set = map[string]bool{}
		f.sets[key] = set
	}
	for _, m := range members {
		set[m] = true
	}
	return nil
}

func (f *fakeDB) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *fakeDB) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeDB) SCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[key])), nil
}

func (f *fakeDB) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	f.indexes[def.Name] = def
	return nil
}

func (f *fakeDB) DropIndex(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexes, name)
	return nil
}

func (f *fakeDB) IndexExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indexes[name]
	return ok, nil
}

func (f *fakeDB) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.knnQueries = append(f.knnQueries, q)
	if f.knnErr != nil {
		return nil, f.knnErr
	}
	if f.knnResult != nil {
		return f.knnResult, nil
	}
	return &db.SearchResult{}, nil
}

func (f *fakeDB) SearchCount(_ context.Context, _, _ string) (int, error) {
	return f.countValue, nil
}

func newTestStore(f *fakeDB) *Store {
	return New(f, &Config{
		IndexName:  "chunks",
		Dimensions: 3,
		HNSWM:      16,
		HNSWEF:     200,
		Logger:     zap.NewNop(),
	})
}

func chunk(id, docID string, vec []float32) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:        id,
		Content:   "content of " + id,
		Embedding: vec,
		Metadata:  domain.ChunkMetadata{DocumentID: docID, PageNumber: 2},
	}
}

func TestInitCreatesIndexOnce(t *testing.T) {
	f := newFakeDB()
	s := newTestStore(f)
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}

	def, ok := f.indexes["chunks"]
	if !ok {
		t.Fatal("index not created")
	}
	var vecField *db.IndexField
	for i := range def.Fields {
		if def.Fields[i].Type == db.IndexFieldVector {
			vecField = &def.Fields[i]
		}
	}
	if vecField == nil {
		t.Fatal("no vector field in index definition")
	}
	if vecField.VectorDim != 3 || vecField.VectorAlgo != db.VectorHNSW || vecField.VectorDistance != db.DistanceCosine {
		t.Errorf("vector field = %+v", vecField)
	}
}

func TestUpsertWritesHashesAndDocSets(t *testing.T) {
	f := newFakeDB()
	s := newTestStore(f)

	n, err := s.Upsert(context.Background(), "user_1", []domain.DocumentChunk{
		chunk("c1", "d1", []float32{1, 0, 0}),
		chunk("c2", "d1", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Upsert() = %d, want 2", n)
	}

	h, ok := f.hashes[chunkKey("user_1", "c1")]
	if !ok {
		t.Fatal("chunk hash missing")
	}
	if h[fieldNamespace] != "user_1" || h[fieldDocumentID] != "d1" {
		t.Errorf("hash fields = %v", h)
	}
	if len(h[fieldVector]) != 12 {
		t.Errorf("vector blob length = %d, want 12", len(h[fieldVector]))
	}

	members, _ := f.SMembers(context.Background(), docSetKey("user_1", "d1"))
	if len(members) != 2 {
		t.Errorf("doc set members = %v, want 2 keys", members)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	f := newFakeDB()
	s := newTestStore(f)

	_, err := s.Upsert(context.Background(), "user_1", []domain.DocumentChunk{
		chunk("c1", "d1", []float32{1, 0}),
	})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("Upsert() error = %v, want ErrVectorDimMismatch", err)
	}
}

func TestSearchBuildsTagFilter(t *testing.T) {
	f := newFakeDB()
	s := newTestStore(f)

	_, err := s.Search(context.Background(), "user_1", []float32{1, 0, 0},
		vectorstore.Query{TopK: 5, DocumentIDs: []string{"doc-a", "doc-b"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(f.knnQueries) != 1 {
		t.Fatalf("knn queries = %d", len(f.knnQueries))
	}
	q := f.knnQueries[0]
	if q.K != 5 || q.IndexName != "chunks" {
		t.Errorf("query = %+v", q)
	}
	wantFilter := `@namespace:{user_1} @document_id:{doc\-a|doc\-b}`
	if q.Filter != wantFilter {
		t.Errorf("filter = %q, want %q", q.Filter, wantFilter)
	}
}

func TestSearchDropsForeignHits(t *testing.T) {
	f := newFakeDB()
	f.knnResult = &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{
				Key:   chunkKey("user_1", "c1"),
				Score: 0.95,
				Fields: map[string]string{
					fieldNamespace:  "user_1",
					fieldDocumentID: "d1",
					fieldContent:    "mine",
					fieldPage:       "3",
				},
			},
			{
				Key:   chunkKey("user_2", "c9"),
				Score: 0.93,
				Fields: map[string]string{
					fieldNamespace:  "user_2",
					fieldDocumentID: "d9",
					fieldContent:    "not mine",
				},
			},
		},
	}
	s := newTestStore(f)

	results, err := s.Search(context.Background(), "user_1", []float32{1, 0, 0}, vectorstore.Query{TopK: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (foreign hit dropped)", len(results))
	}
	r := results[0]
	if r.ChunkID != "c1" || r.DocumentID != "d1" || r.PageNumber != 3 || r.Score != 0.95 {
		t.Errorf("result = %+v", r)
	}
}

func TestDeleteDocumentUsesKeySet(t *testing.T) {
	f := newFakeDB()
	s := newTestStore(f)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "user_1", []domain.DocumentChunk{
		chunk("c1", "d1", []float32{1, 0, 0}),
		chunk("c2", "d1", []float32{0, 1, 0}),
		chunk("c3", "d2", []float32{0, 0, 1}),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	n, err := s.Delete(ctx, "user_1", vectorstore.Selector{DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Delete() = %d, want 2", n)
	}

	if _, ok := f.hashes[chunkKey("user_1", "c1")]; ok {
		t.Error("c1 hash still present")
	}
	if _, ok := f.hashes[chunkKey("user_1", "c3")]; !ok {
		t.Error("c3 hash removed, should remain")
	}
	if _, ok := f.sets[docSetKey("user_1", "d1")]; ok {
		t.Error("doc key set still present")
	}
}

func TestDeleteAllScansNamespace(t *testing.T) {
	f := newFakeDB()
	s := newTestStore(f)
	ctx := context.Background()

	s.Upsert(ctx, "user_1", []domain.DocumentChunk{chunk("c1", "d1", []float32{1, 0, 0})})
	s.Upsert(ctx, "user_2", []domain.DocumentChunk{chunk("c2", "d2", []float32{1, 0, 0})})

	n, err := s.Delete(ctx, "user_1", vectorstore.Selector{All: true})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Delete() = %d, want 1", n)
	}
	if _, ok := f.hashes[chunkKey("user_2", "c2")]; !ok {
		t.Error("other namespace affected by delete")
	}
}

func TestStats(t *testing.T) {
	f := newFakeDB()
	f.countValue = 42
	s := newTestStore(f)

	stats, err := s.Stats(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Vectors != 42 || stats.Dimensions != 3 || stats.Backend != "redis" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEscapeTag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"user_42", "user_42"},
		{"doc-id", `doc\-id`},
		{"a.b:c", `a\.b\:c`},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := escapeTag(tt.in); got != tt.want {
			t.Errorf("escapeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
