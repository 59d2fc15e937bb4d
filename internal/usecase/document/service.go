package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Haoxincode/coursechat/internal/domain"
	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
)

// Service handles course document management.
type Service struct {
	repo            Repository
	defaultPageSize int
	maxPageSize     int
	now             func() time.Time
	newID           func() string
}

// New creates a document service.
func New(repo Repository) *Service {
	return &Service{
		repo:            repo,
		defaultPageSize: 20,
		maxPageSize:     100,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Create validates and stores a new document. An empty id gets a UUID.
func (s *Service) Create(ctx context.Context, id, name, content string) (domdoc.Document, error) {
	if id == "" {
		id = s.newID()
	}

	doc, err := domdoc.New(id, name, content, s.now().UnixMilli())
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}

	if err := s.repo.Create(ctx, &doc); err != nil {
		return domdoc.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id string) (domdoc.Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns a page of documents. limit is clamped to the configured bounds.
func (s *Service) List(ctx context.Context, cursor string, limit int) ([]domdoc.Document, string, error) {
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	docs, next, err := s.repo.List(ctx, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}
	return docs, next, nil
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ForChat returns the documents a conversation is grounded on: the given ids in
// order, or every document when ids is empty. An empty result is ErrNoDocuments.
func (s *Service) ForChat(ctx context.Context, ids []string) ([]domdoc.Document, error) {
	var docs []domdoc.Document
	var err error
	if len(ids) > 0 {
		docs, err = s.repo.GetMany(ctx, ids)
	} else {
		docs, err = s.repo.All(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load course documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	return docs, nil
}

// EnsureDefault seeds the demo guide when no document exists.
// Returns true if the document was created.
func (s *Service) EnsureDefault(ctx context.Context) (bool, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count documents: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	doc := domdoc.Reconstruct(DefaultDocumentID, DefaultDocumentName, DefaultDocumentContent, s.now().UnixMilli())
	if err := s.repo.Create(ctx, &doc); err != nil {
		// Another replica won the race.
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("seed default document: %w", err)
	}
	return true, nil
}
