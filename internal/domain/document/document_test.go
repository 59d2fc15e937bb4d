package document

import (
	"strings"
	"testing"
)

func TestNew_Valid(t *testing.T) {
	doc, err := New("default-course-001", "Project-Based Learning Guide", "# Chapter 1", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID() != "default-course-001" {
		t.Errorf("ID() = %q", doc.ID())
	}
	if doc.Name() != "Project-Based Learning Guide" {
		t.Errorf("Name() = %q", doc.Name())
	}
	if doc.Content() != "# Chapter 1" {
		t.Errorf("Content() = %q", doc.Content())
	}
	if doc.CreatedAt() != 42 {
		t.Errorf("CreatedAt() = %d", doc.CreatedAt())
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		docName string
		content string
		wantErr string
	}{
		{"empty id", "", "n", "c", "required"},
		{"id too long", strings.Repeat("a", MaxIDLength+1), "n", "c", "too long"},
		{"id with spaces", "has space", "n", "c", "alphanumeric"},
		{"id with colon", "a:b", "n", "c", "alphanumeric"},
		{"empty name", "id", "", "c", "name is required"},
		{"name too long", "id", strings.Repeat("n", MaxNameLength+1), "c", "at most"},
		{"invalid utf8 name", "id", "\xff\xfe", "c", "UTF-8"},
		{"empty content", "id", "n", "", "content is required"},
		{"content too large", "id", "n", strings.Repeat("x", MaxContentSize+1), "too large"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.id, tc.docName, tc.content, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestNew_ContentAtMaxSize(t *testing.T) {
	_, err := New("doc-1", "n", strings.Repeat("x", MaxContentSize), 0)
	if err != nil {
		t.Fatalf("unexpected error for content at max size: %v", err)
	}
}

func TestReconstruct_SkipsValidation(t *testing.T) {
	doc := Reconstruct("bad id", "", "", 0)
	if doc.ID() != "bad id" {
		t.Errorf("Reconstruct should skip validation")
	}
}
