package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
	"github.com/Haoxincode/coursechat/internal/metrics"
)

// Client streams structured answers from an OpenAI-compatible chat completion API.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	provider    string
	logger      *zap.Logger
}

// Config holds the LLM provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Provider    string
	Logger      *zap.Logger
}

// NewClient creates an OpenAI-compatible chat client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		provider:    cfg.Provider,
		logger:      logger,
	}
}

// StreamAnswer implements domain.AnswerStreamer. The model is asked for a JSON
// object; usage is requested in the trailing chunk.
func (c *Client) StreamAnswer(ctx context.Context, prompt domain.Prompt) (domain.AnswerStream, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(prompt),
		Temperature: c.temperature,
		Stream:      true,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	start := time.Now()
	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(c.provider, c.model, "api_error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, parseAPIError(err)
	}

	return &answerStream{
		stream:   s,
		provider: c.provider,
		model:    c.model,
		started:  start,
		logger:   c.logger,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func toChatMessages(p domain.Prompt) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(p.Messages)+1)
	if p.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	for _, m := range p.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// answerStream accumulates completion deltas and exposes parsed snapshots.
// It is consumed by a single goroutine.
type answerStream struct {
	stream   *openai.ChatCompletionStream
	buf      strings.Builder
	lastDoc  string
	done     bool
	usage    domain.TokenUsage
	provider string
	model    string
	started  time.Time
	gotFirst bool
	recorded bool
	logger   *zap.Logger
}

// Next returns the next snapshot that differs from the previous one.
func (s *answerStream) Next(ctx context.Context) (answer.Answer, bool, error) {
	for !s.done {
		if err := s.recv(ctx); err != nil {
			return answer.Answer{}, false, err
		}

		doc, ok := completePartial(s.buf.String())
		if !ok || doc == s.lastDoc {
			continue
		}
		snap, ok := decodePartial(doc)
		if !ok {
			continue
		}
		s.lastDoc = doc
		return snap, true, nil
	}
	return answer.Answer{}, false, nil
}

// Final drains the stream and strictly parses the accumulated text.
func (s *answerStream) Final(ctx context.Context) (answer.Answer, error) {
	for !s.done {
		if err := s.recv(ctx); err != nil {
			return answer.Answer{}, err
		}
	}

	a, err := parseFinal(s.buf.String())
	if err != nil {
		metrics.LLMErrorsTotal.WithLabelValues(s.provider, s.model, "malformed_answer").Inc()
		s.logger.Warn("Malformed LLM answer",
			zap.Int("completion_bytes", s.buf.Len()),
			zap.Error(err),
		)
		return answer.Answer{}, err
	}
	return a, nil
}

// Usage implements domain.AnswerStream.
func (s *answerStream) Usage() domain.TokenUsage { return s.usage }

// Close releases the underlying HTTP response.
func (s *answerStream) Close() error {
	s.stream.Close()
	return nil
}

// recv reads one chunk. io.EOF marks the stream done and records metrics.
func (s *answerStream) recv(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chunk, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		s.recordSuccess()
		return nil
	}
	if err != nil {
		s.done = true
		metrics.LLMRequestsTotal.WithLabelValues(s.provider, s.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(s.provider, s.model, "stream_error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return parseAPIError(err)
	}

	if chunk.Usage != nil {
		s.usage = domain.TokenUsage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	for _, choice := range chunk.Choices {
		if choice.Index != 0 || choice.Delta.Content == "" {
			continue
		}
		if !s.gotFirst {
			s.gotFirst = true
			metrics.LLMTimeToFirstToken.WithLabelValues(s.provider, s.model).Observe(time.Since(s.started).Seconds())
		}
		s.buf.WriteString(choice.Delta.Content)
	}
	return nil
}

func (s *answerStream) recordSuccess() {
	if s.recorded {
		return
	}
	s.recorded = true

	metrics.LLMRequestsTotal.WithLabelValues(s.provider, s.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(s.provider, s.model).Observe(time.Since(s.started).Seconds())
	if s.usage.TotalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(s.provider, s.model, "prompt").Add(float64(s.usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(s.provider, s.model, "completion").Add(float64(s.usage.CompletionTokens))
		metrics.LLMTokensTotal.WithLabelValues(s.provider, s.model, "total").Add(float64(s.usage.TotalTokens))
	}
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrLLMProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrLLMProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("LLM API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("LLM API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("LLM API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("LLM request failed: %v: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
