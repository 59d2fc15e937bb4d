package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/metrics"
)

// Checker is the local interface for budget enforcement.
type Checker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedStreamer wraps an AnswerStreamer with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai;
// this layer owns budget tracking and the remaining-budget gauge.
type InstrumentedStreamer struct {
	inner    domain.AnswerStreamer
	provider string
	model    string
	budget   Checker
	logger   *zap.Logger
}

// NewInstrumentedStreamer wraps a streamer. budget may be nil (unlimited mode).
func NewInstrumentedStreamer(
	inner domain.AnswerStreamer, provider, model string,
	budget Checker, logger *zap.Logger,
) *InstrumentedStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedStreamer{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// StreamAnswer checks the budget, then opens the inner stream. Usage is
// recorded when the returned stream is closed.
func (s *InstrumentedStreamer) StreamAnswer(ctx context.Context, prompt domain.Prompt) (domain.AnswerStream, error) {
	if s.budget != nil {
		if err := s.budget.Check(ctx); err != nil {
			s.logger.Error("Budget exceeded",
				zap.String("provider", s.provider),
				zap.String("model", s.model),
				zap.Error(err),
			)
			return nil, fmt.Errorf("budget check: %w", err)
		}
	}

	inner, err := s.inner.StreamAnswer(ctx, prompt)
	if err != nil {
		s.logger.Error("LLM stream failed to open",
			zap.String("provider", s.provider),
			zap.String("model", s.model),
			zap.Error(err),
		)
		return nil, fmt.Errorf("stream answer: %w", err)
	}

	return &meteredStream{AnswerStream: inner, owner: s, started: time.Now()}, nil
}

func (s *InstrumentedStreamer) record(usage domain.TokenUsage, duration time.Duration) {
	if s.budget != nil {
		s.budget.Record(int64(usage.TotalTokens))
		remaining := metrics.BudgetTokensRemaining
		remaining.WithLabelValues(s.provider, "daily").Set(float64(s.budget.RemainingDaily()))
		remaining.WithLabelValues(s.provider, "monthly").Set(float64(s.budget.RemainingMonthly()))
	}

	s.logger.Debug("LLM stream completed",
		zap.String("provider", s.provider),
		zap.String("model", s.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Int("total_tokens", usage.TotalTokens),
	)
}

// meteredStream records usage exactly once, on the first Close.
type meteredStream struct {
	domain.AnswerStream
	owner   *InstrumentedStreamer
	started time.Time
	once    sync.Once
}

func (m *meteredStream) Close() error {
	m.once.Do(func() {
		m.owner.record(m.Usage(), time.Since(m.started))
	})
	return m.AnswerStream.Close()
}
