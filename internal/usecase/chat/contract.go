package chat

import (
	"context"

	"github.com/Haoxincode/coursechat/internal/domain/chat"
	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
)

// DocumentSource provides the documents a conversation is grounded on.
type DocumentSource interface {
	ForChat(ctx context.Context, ids []string) ([]domdoc.Document, error)
}

// HistoryWriter stores completed turns.
type HistoryWriter interface {
	Append(ctx context.Context, sessionID string, turn chat.Turn) error
}

// Request is a chat turn as posted by the client.
type Request struct {
	Messages    []chat.UIMessage
	ChatID      string
	SessionID   string
	DocumentIDs []string
}

// Session returns the key the turn is stored under: SessionID, else ChatID.
func (r Request) Session() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.ChatID
}
