package domain

import (
	"context"

	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
)

// AnswerStreamer opens a structured answer stream for a prompt.
type AnswerStreamer interface {
	StreamAnswer(ctx context.Context, prompt Prompt) (AnswerStream, error)
}

// HealthChecker verifies LLM provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Prompt is a fully rendered model input.
type Prompt struct {
	System   string
	Messages []chat.Message
}

// AnswerStream yields answer snapshots while the model generates.
// Next returns ok=false once generation is over; Final then returns the
// strictly parsed answer. Usage is valid after Final.
type AnswerStream interface {
	Next(ctx context.Context) (answer.Answer, bool, error)
	Final(ctx context.Context) (answer.Answer, error)
	Usage() TokenUsage
	Close() error
}

// TokenUsage is the token accounting of one completion.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type usageKey struct{}

// RequestUsage collects token usage for a single HTTP request.
// The handler puts a pointer into the context; the chat service adds to it on
// completion; the request log line reads it.
type RequestUsage struct {
	TokenUsage
	Used bool // true once a completion finished, even with 0 reported tokens
}

// NewContextWithUsage returns a context with a usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(usageKey{}).(*RequestUsage)
	return u
}

// Add records the usage of one completion.
func (u *RequestUsage) Add(t TokenUsage) {
	if u == nil {
		return
	}
	u.PromptTokens += t.PromptTokens
	u.CompletionTokens += t.CompletionTokens
	u.TotalTokens += t.TotalTokens
	u.Used = true
}
