package document

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	// MaxContentSize is the maximum document content size in bytes.
	MaxContentSize = 163840 // 160KB
	// MaxNameLength is the maximum document name length in bytes.
	MaxNameLength = 256
	// MaxIDLength is the maximum document id length.
	MaxIDLength = 128
)

// Document is a course document the assistant grounds its answers on (immutable value object).
type Document struct {
	id        string
	name      string
	content   string
	createdAt int64 // unix millis
}

// New validates and creates a Document.
// ID: ^[a-zA-Z0-9_-]+$, 1-128 chars. Name: non-empty, max 256 bytes. Content: non-empty, max 160KB.
func New(id, name, content string, createdAt int64) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document ID too long (max %d)", MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID must be alphanumeric with underscores and hyphens")
	}
	if name == "" {
		return Document{}, fmt.Errorf("name is required")
	}
	if len(name) > MaxNameLength || !utf8.ValidString(name) {
		return Document{}, fmt.Errorf("name must be valid UTF-8 of at most %d bytes", MaxNameLength)
	}
	if content == "" {
		return Document{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}

	return Document{id: id, name: name, content: content, createdAt: createdAt}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, name, content string, createdAt int64) Document {
	return Document{id: id, name: name, content: content, createdAt: createdAt}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Name returns the human-readable title.
func (d *Document) Name() string { return d.name }

// Content returns the document text.
func (d *Document) Content() string { return d.content }

// CreatedAt returns the creation time in unix millis.
func (d *Document) CreatedAt() int64 { return d.createdAt }
