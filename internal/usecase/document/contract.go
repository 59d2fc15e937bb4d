package document

import (
	"context"

	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
)

// Repository defines the storage contract for course documents.
type Repository interface {
	Create(ctx context.Context, doc *domdoc.Document) error
	Get(ctx context.Context, id string) (domdoc.Document, error)
	GetMany(ctx context.Context, ids []string) ([]domdoc.Document, error)
	All(ctx context.Context) ([]domdoc.Document, error)
	List(ctx context.Context, cursor string, limit int) (docs []domdoc.Document, nextCursor string, err error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}
