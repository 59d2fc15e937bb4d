package document

import (
	"strconv"

	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
)

// Hash field names.
const (
	fieldName      = "name"
	fieldContent   = "content"
	fieldCreatedAt = "created_at"
)

// buildHashFields converts a domain Document into a flat map[string]string for HSET.
func buildHashFields(doc *domdoc.Document) map[string]string {
	return map[string]string{
		fieldName:      doc.Name(),
		fieldContent:   doc.Content(),
		fieldCreatedAt: strconv.FormatInt(doc.CreatedAt(), 10),
	}
}

// parseHashFields converts a flat hash map back into a domain Document.
// An unparseable created_at hydrates as 0.
func parseHashFields(id string, m map[string]string) domdoc.Document {
	createdAt, _ := strconv.ParseInt(m[fieldCreatedAt], 10, 64)
	return domdoc.Reconstruct(id, m[fieldName], m[fieldContent], createdAt)
}
