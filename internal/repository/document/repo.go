// Package document persists document metadata. The redis repository keeps
// one hash per document plus a per-user set of document IDs; an in-memory
// variant backs development and tests.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/corpora-dev/corpora/internal/db"
	"github.com/corpora-dev/corpora/internal/domain"
)

// store is the consumer interface for document persistence.
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo is the redis-backed document repository.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func docKey(userID, docID string) string {
	return domain.KeyPrefix + "doc:" + userID + ":" + docID
}

func userSetKey(userID string) string {
	return domain.KeyPrefix + "docs:" + userID
}

// Save creates or replaces a document record.
func (r *Repo) Save(ctx context.Context, doc *domain.Document) error {
	fields, err := toFields(doc)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, docKey(doc.UserID, doc.ID), fields); err != nil {
		return fmt.Errorf("hset document %s: %w", doc.ID, err)
	}
	if err := r.store.SAdd(ctx, userSetKey(doc.UserID), doc.ID); err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns one document owned by the user.
func (r *Repo) Get(ctx context.Context, userID, docID string) (domain.Document, error) {
	fields, err := r.store.HGetAll(ctx, docKey(userID, docID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("hgetall document %s: %w", docID, err)
	}
	if len(fields) == 0 {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return fromFields(fields)
}

// List returns all of a user's documents, newest first.
func (r *Repo) List(ctx context.Context, userID string) ([]domain.Document, error) {
	ids, err := r.store.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return nil, fmt.Errorf("list document ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(userID, id)
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}

	docs := make([]domain.Document, 0, len(hashes))
	for _, fields := range hashes {
		if len(fields) == 0 {
			continue // id in the set but hash expired or removed
		}
		doc, err := fromFields(fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// Delete removes the document record and its index entry.
func (r *Repo) Delete(ctx context.Context, userID, docID string) error {
	key := docKey(userID, docID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check document %s: %w", docID, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del document %s: %w", docID, err)
	}
	if err := r.store.SRem(ctx, userSetKey(userID), docID); err != nil {
		return fmt.Errorf("unindex document %s: %w", docID, err)
	}
	return nil
}

// CountByStatus returns per-status document counts for a user.
func (r *Repo) CountByStatus(ctx context.Context, userID string) (map[domain.DocumentStatus]int, error) {
	docs, err := r.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.DocumentStatus]int, 4)
	for _, doc := range docs {
		counts[doc.Status]++
	}
	return counts, nil
}
