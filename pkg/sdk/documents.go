package coursechat

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Document is a course document.
type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentSummary is a listed document; content is omitted.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListResult is a page of documents. NextCursor is empty on the last page.
type ListResult struct {
	Documents  []DocumentSummary
	NextCursor string
}

// NewDocument is the input of CreateDocument. An empty ID is assigned by the server.
type NewDocument struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// CreateDocument uploads a course document.
func (c *Client) CreateDocument(ctx context.Context, doc NewDocument) (out Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("create_document", start, err) }()

	err = c.doJSON(ctx, http.MethodPost, "/api/documents", nil, doc, &out, http.StatusCreated)
	return out, err
}

// GetDocument retrieves a document by ID.
func (c *Client) GetDocument(ctx context.Context, id string) (out Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get_document", start, err) }()

	err = c.doJSON(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// ListDocuments returns a page of documents. limit <= 0 uses the server default.
func (c *Client) ListDocuments(ctx context.Context, cursor string, limit int) (res ListResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list_documents", start, err) }()

	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page struct {
		Items      []DocumentSummary `json:"items"`
		NextCursor *string           `json:"nextCursor"`
	}
	if err = c.doJSON(ctx, http.MethodGet, "/api/documents", q, nil, &page); err != nil {
		return ListResult{}, err
	}
	res.Documents = page.Items
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	return res, nil
}

// DeleteDocument removes a document by ID.
func (c *Client) DeleteDocument(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete_document", start, err) }()

	return c.doJSON(ctx, http.MethodDelete, "/api/documents/"+url.PathEscape(id), nil, nil, nil, http.StatusNoContent)
}
