package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event types on the wire.
const (
	TypeStart  = "start"
	TypeFinish = "finish"
	TypeError  = "error"

	dataPrefix = "data-"
)

// Data kinds and their fixed reconciliation ids.
const (
	KindResponse = "response"
	KindMetadata = "metadata"

	ResponseID = "response-main"
	MetadataID = "metadata-main"
)

// Event is one element of the outbound UI message stream.
//
// Data events (Type "data-<kind>") carry a full payload. Receivers must replace
// whatever they hold for the same (Type, ID) key, never append to it.
type Event struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
	ID        string `json:"id,omitempty"`
	Data      any    `json:"data,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}

// Key identifies the reconciliation slot of an event.
type Key struct {
	Type string
	ID   string
}

// Start opens a message.
func Start(messageID string) Event { return Event{Type: TypeStart, MessageID: messageID} }

// DataReplace carries a full payload for the (kind, id) slot.
func DataReplace(kind, id string, payload any) Event {
	return Event{Type: dataPrefix + kind, ID: id, Data: payload}
}

// Finish closes a message.
func Finish() Event { return Event{Type: TypeFinish} }

// Error terminates a message with a human-readable reason.
func Error(message string) Event { return Event{Type: TypeError, ErrorText: message} }

// IsData reports whether e is a replace event.
func (e Event) IsData() bool { return strings.HasPrefix(e.Type, dataPrefix) }

// Kind returns the data kind ("response", "metadata"), or "" for control events.
func (e Event) Kind() string {
	if !e.IsData() {
		return ""
	}
	return strings.TrimPrefix(e.Type, dataPrefix)
}

// Key returns the reconciliation key.
func (e Event) Key() Key { return Key{Type: e.Type, ID: e.ID} }

// DecodeData unmarshals the payload into v. It works both for events built in
// process (typed payload) and for decoded ones (raw JSON payload).
func (e Event) DecodeData(v any) error {
	var raw []byte
	switch d := e.Data.(type) {
	case nil:
		return errors.New("event has no data")
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}

// wireEvent keeps the payload raw on decode.
type wireEvent struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ErrorText string          `json:"errorText,omitempty"`
}

// Decode parses the JSON body of one SSE data line.
func Decode(body []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if w.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}
	ev := Event{Type: w.Type, MessageID: w.MessageID, ID: w.ID, ErrorText: w.ErrorText}
	if len(w.Data) > 0 {
		ev.Data = w.Data
	}
	return ev, nil
}
