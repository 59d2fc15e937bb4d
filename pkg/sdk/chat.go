package coursechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/stream"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part is one element of a chat message.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a transcript entry in the chat UI format.
type Message struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// UserMessage builds a user message with a single text part.
func UserMessage(text string) Message {
	return Message{
		ID:    uuid.NewString(),
		Role:  RoleUser,
		Parts: []Part{{Type: "text", Text: text}},
	}
}

// AssistantMessage turns a reply into a transcript entry so the next question
// carries the conversation so far.
func AssistantMessage(r Reply) Message {
	data, _ := json.Marshal(r.Response)
	return Message{
		ID:    r.MessageID,
		Role:  RoleAssistant,
		Parts: []Part{{Type: "data-" + stream.KindResponse, ID: stream.ResponseID, Data: data}},
	}
}

// ChatRequest is one chat turn. Messages is the whole transcript, oldest first.
// With SessionID set, the server stores the completed turn.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	ChatID      string    `json:"chatId,omitempty"`
	SessionID   string    `json:"sessionId,omitempty"`
	DocumentIDs []string  `json:"documentIds,omitempty"`
}

// Source is a citation resolved to a course document.
type Source struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"documentId"`
	DocumentName string  `json:"documentName"`
	Section      *string `json:"section"`
}

// Response is an answer snapshot. Mid-stream snapshots may be incomplete.
type Response struct {
	Reasoning  string   `json:"reasoning"`
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence *string  `json:"confidence"`
}

// Reply is a completed chat turn.
type Reply struct {
	MessageID string
	Response  Response
	// Metadata holds confidence, sourcesCount and totalTokens.
	Metadata map[string]any
}

// Chat sends a turn and reads the answer stream. onUpdate (optional) is called
// with the latest snapshot after every response update. Errors reported before
// streaming are *APIError; an error event during streaming is *StreamError.
func (c *Client) Chat(ctx context.Context, req ChatRequest, onUpdate func(Response)) (reply Reply, err error) {
	start := time.Now()
	defer func() { c.obs.observe("chat", start, err) }()

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/chat/stream", nil, req)
	if err != nil {
		return Reply{}, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Reply{}, decodeAPIError(resp)
	}

	rec := stream.NewReconciler()
	err = stream.ReadEvents(resp.Body, func(ev stream.Event) error {
		c.obs.event(ev.Type)
		if err := rec.Apply(ev); err != nil {
			return fmt.Errorf("apply %s event: %w", ev.Type, err)
		}
		if onUpdate == nil || ev.Key() != (stream.Key{Type: "data-" + stream.KindResponse, ID: stream.ResponseID}) {
			return nil
		}
		r, _, err := rec.Response()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		onUpdate(fromAnswer(r))
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat: %w", err)
	}

	if text, failed := rec.Err(); failed {
		return Reply{MessageID: rec.MessageID()}, &StreamError{MessageID: rec.MessageID(), Text: text}
	}
	if !rec.Finished() {
		return Reply{MessageID: rec.MessageID()}, ErrIncompleteStream
	}

	final, _, err := rec.Response()
	if err != nil {
		return Reply{}, fmt.Errorf("chat: decode response: %w", err)
	}
	meta, _, err := rec.Metadata()
	if err != nil {
		return Reply{}, fmt.Errorf("chat: decode metadata: %w", err)
	}
	return Reply{MessageID: rec.MessageID(), Response: fromAnswer(final), Metadata: meta}, nil
}

func fromAnswer(r answer.Response) Response {
	out := Response{
		Reasoning: r.Reasoning,
		Answer:    r.Answer,
		Sources:   make([]Source, len(r.Sources)),
	}
	for i, s := range r.Sources {
		out.Sources[i] = Source{
			ID:           s.ID,
			DocumentID:   s.DocumentID,
			DocumentName: s.DocumentName,
			Section:      s.Section,
		}
	}
	if r.Confidence != nil {
		c := string(*r.Confidence)
		out.Confidence = &c
	}
	return out
}
