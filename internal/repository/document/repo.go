package document

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Haoxincode/coursechat/internal/domain"
	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
)

// store is the consumer interface for documents (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, member string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// Repo implements usecase/document.Repository.
// Each document is a hash at <prefix>doc:<id>; <prefix>docs is a sorted set
// of ids scored by creation time and serves as the listing index.
type Repo struct {
	store  store
	prefix string
}

// New creates a document repository. An empty prefix uses domain.KeyPrefix.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.KeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

// Create stores a new document. Returns domain.ErrAlreadyExists if the id is taken.
func (r *Repo) Create(ctx context.Context, doc *domdoc.Document) error {
	key := r.docKey(doc.ID())

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if exists {
		return fmt.Errorf("document %s: %w", doc.ID(), domain.ErrAlreadyExists)
	}

	if err := r.store.HSet(ctx, key, buildHashFields(doc)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if err := r.store.ZAdd(ctx, r.indexKey(), float64(doc.CreatedAt()), doc.ID()); err != nil {
		return fmt.Errorf("zadd %s: %w", doc.ID(), err)
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	key := r.docKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return parseHashFields(id, m), nil
}

// GetMany returns the documents with the given ids in input order. Missing ids are skipped.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]domdoc.Document, error) {
	return r.load(ctx, ids)
}

// All returns every document ordered by creation time, then id.
func (r *Repo) All(ctx context.Context) ([]domdoc.Document, error) {
	ids, err := r.store.ZRange(ctx, r.indexKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("zrange all: %w", err)
	}
	return r.load(ctx, ids)
}

// List returns documents with offset-cursor pagination over the creation-time index.
func (r *Repo) List(ctx context.Context, cursor string, limit int) ([]domdoc.Document, string, error) {
	if limit <= 0 {
		limit = 20
	}

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, domain.ErrInvalidCursor)
		}
		offset = parsed
	}

	// One extra entry tells whether another page exists.
	ids, err := r.store.ZRange(ctx, r.indexKey(), int64(offset), int64(offset+limit))
	if err != nil {
		return nil, "", fmt.Errorf("zrange list: %w", err)
	}

	var nextCursor string
	if len(ids) > limit {
		ids = ids[:limit]
		nextCursor = strconv.Itoa(offset + limit)
	}

	docs, err := r.load(ctx, ids)
	if err != nil {
		return nil, "", err
	}
	return docs, nextCursor, nil
}

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.ZCard(ctx, r.indexKey())
	if err != nil {
		return 0, fmt.Errorf("zcard: %w", err)
	}
	return int(n), nil
}

// Delete removes a document and its index entry.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.docKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	if err := r.store.ZRem(ctx, r.indexKey(), id); err != nil {
		return fmt.Errorf("zrem %s: %w", id, err)
	}
	return nil
}

// load hydrates ids in order. Index entries whose hash is gone are skipped.
func (r *Repo) load(ctx context.Context, ids []string) ([]domdoc.Document, error) {
	if len(ids) == 0 {
		return []domdoc.Document{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w", err)
	}

	docs := make([]domdoc.Document, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		docs = append(docs, parseHashFields(ids[i], m))
	}
	return docs, nil
}

func (r *Repo) docKey(id string) string {
	return r.prefix + "doc:" + id
}

func (r *Repo) indexKey() string {
	return r.prefix + "docs"
}
