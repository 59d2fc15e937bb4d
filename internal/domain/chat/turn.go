package chat

import (
	"fmt"
	"regexp"

	"github.com/Haoxincode/coursechat/internal/domain/answer"
)

var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Turn is one completed question/answer exchange within a session.
type Turn struct {
	MessageID string          `json:"messageId"`
	Question  string          `json:"question"`
	Response  answer.Response `json:"response"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt int64           `json:"createdAt"` // unix millis
}

// ValidateSessionID checks that id is safe to embed in a storage key.
func ValidateSessionID(id string) error {
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("session id must be 1-128 alphanumeric characters, underscores or hyphens")
	}
	return nil
}
