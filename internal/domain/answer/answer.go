// Package answer holds the structured answer the LLM produces and its
// normalised, client-facing form.
package answer

import "strconv"

// Confidence is the model's self-reported confidence.
type Confidence string

const (
	// ConfidenceHigh means the answer is directly supported by the documents.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means the answer is partly supported.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means the answer is weakly supported or speculative.
	ConfidenceLow Confidence = "low"
)

// Valid reports whether c is one of the known levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Source is a citation as the model emits it: document_id is the integer
// placeholder from the prompt, not the real document id.
type Source struct {
	DocumentID   *int    `json:"document_id"`
	DocumentName *string `json:"document_name"`
	Section      *string `json:"section"`
}

// Answer is a snapshot of the model output. Partial snapshots and the final
// one share this shape; every field may still be missing mid-stream.
// A snapshot always replaces the previous one, it is never a delta.
type Answer struct {
	Reasoning  *string     `json:"reasoning"`
	Answer     *string     `json:"answer"`
	Sources    []Source    `json:"sources"`
	Confidence *Confidence `json:"confidence"`
}

// ResolvedSource is a citation mapped back to the real document id.
type ResolvedSource struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"documentId"`
	DocumentName string  `json:"documentName"`
	Section      *string `json:"section"`
}

// Response is the normalised payload sent to clients.
type Response struct {
	Reasoning  string           `json:"reasoning"`
	Answer     string           `json:"answer"`
	Sources    []ResolvedSource `json:"sources"`
	Confidence *Confidence      `json:"confidence"`
}

// DocResolver resolves integer placeholders to document ids.
type DocResolver interface {
	FromInt(n int) (string, bool)
}

// Normalize null-coalesces the snapshot and resolves its citations.
// docs may be nil, in which case every citation resolves to an empty document id.
func (a Answer) Normalize(docs DocResolver) Response {
	return Response{
		Reasoning:  deref(a.Reasoning),
		Answer:     deref(a.Answer),
		Sources:    ResolveSources(a.Sources, docs),
		Confidence: validConfidence(a.Confidence),
	}
}

// ResolveSources drops citations without a document reference or name and maps
// the rest to real document ids. Unknown references resolve to "".
func ResolveSources(sources []Source, docs DocResolver) []ResolvedSource {
	out := make([]ResolvedSource, 0, len(sources))
	for _, s := range sources {
		if s.DocumentID == nil || s.DocumentName == nil || *s.DocumentName == "" {
			continue
		}
		ref := *s.DocumentID

		var docID string
		if docs != nil {
			docID, _ = docs.FromInt(ref)
		}

		var section *string
		if s.Section != nil {
			v := *s.Section
			section = &v
		}

		out = append(out, ResolvedSource{
			ID:           "source-" + strconv.Itoa(ref),
			DocumentID:   docID,
			DocumentName: *s.DocumentName,
			Section:      section,
		})
	}
	return out
}

func validConfidence(c *Confidence) *Confidence {
	if c == nil || !c.Valid() {
		return nil
	}
	v := *c
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
