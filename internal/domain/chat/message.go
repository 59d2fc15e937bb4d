// Package chat models the chat transcript exchanged with the browser client.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the author of a message.
type Role string

const (
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the assistant.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction message.
	RoleSystem Role = "system"
)

// Part types understood by the converter.
const (
	PartText         = "text"
	PartDataResponse = "data-response"
)

// Part is one element of a UI message.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UIMessage is a message as the chat UI stores it: a role plus typed parts.
type UIMessage struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Message is a flattened message fed to the model.
type Message struct {
	Role    Role
	Content string
}

// responsePart is the subset of a data-response payload needed to replay history.
type responsePart struct {
	Answer    any `json:"answer"`
	Reasoning any `json:"reasoning"`
}

// ToModelMessages flattens UI messages into model messages.
// Earlier assistant answers (data-response parts) are replayed as text so the
// model can see its own history. System messages and messages with no text are
// dropped.
func ToModelMessages(msgs []UIMessage) ([]Message, error) {
	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleUser, RoleAssistant:
		case RoleSystem:
			continue
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}

		var sb strings.Builder
		for j, p := range m.Parts {
			text, err := partText(p)
			if err != nil {
				return nil, fmt.Errorf("message %d part %d: %w", i, j, err)
			}
			sb.WriteString(text)
		}

		content := sb.String()
		if strings.TrimSpace(content) == "" {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: content})
	}
	return out, nil
}

// LastUserContent returns the content of the most recent user message.
func LastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func partText(p Part) (string, error) {
	switch p.Type {
	case PartText:
		return p.Text, nil
	case PartDataResponse:
		if len(p.Data) == 0 {
			return "", nil
		}
		var r responsePart
		if err := json.Unmarshal(p.Data, &r); err != nil {
			return "", fmt.Errorf("decode data-response: %w", err)
		}
		answer := trimmedString(r.Answer)
		reasoning := trimmedString(r.Reasoning)
		if answer == "" && reasoning == "" {
			return "", nil
		}
		if reasoning == "" {
			return answer, nil
		}
		return answer + "\n\n[Reasoning]\n" + reasoning, nil
	default:
		return "", nil
	}
}

// trimmedString mirrors the client contract: non-string values count as empty.
func trimmedString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
