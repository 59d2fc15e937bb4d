package budget

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterLLMMetrics()
	os.Exit(m.Run())
}

type mockStream struct {
	usage  domain.TokenUsage
	closed int
}

func (m *mockStream) Next(context.Context) (answer.Answer, bool, error) {
	return answer.Answer{}, false, nil
}

func (m *mockStream) Final(context.Context) (answer.Answer, error) {
	return answer.Answer{}, nil
}

func (m *mockStream) Usage() domain.TokenUsage { return m.usage }

func (m *mockStream) Close() error {
	m.closed++
	return nil
}

type mockStreamer struct {
	stream *mockStream
	err    error
	calls  int
}

func (m *mockStreamer) StreamAnswer(context.Context, domain.Prompt) (domain.AnswerStream, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

func TestInstrumentedStreamer_RecordsOnClose(t *testing.T) {
	tracker := NewTracker("test-record", "", 1000000, 10000000, ActionReject, zap.NewNop())
	inner := &mockStreamer{stream: &mockStream{usage: domain.TokenUsage{PromptTokens: 400, CompletionTokens: 100, TotalTokens: 500}}}
	s := NewInstrumentedStreamer(inner, "test-record", "gpt-test", tracker, zap.NewNop())

	stream, err := s.StreamAnswer(context.Background(), domain.Prompt{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracker.DailyUsed() != 0 {
		t.Fatal("usage must not be recorded before Close")
	}

	_ = stream.Close()
	_ = stream.Close()

	if tracker.DailyUsed() != 500 {
		t.Errorf("expected 500 recorded once, got %d", tracker.DailyUsed())
	}
	if tracker.DailyRequests() != 1 {
		t.Errorf("expected 1 request, got %d", tracker.DailyRequests())
	}
	if inner.stream.closed != 2 {
		t.Errorf("inner Close calls = %d, want 2", inner.stream.closed)
	}
	if stream.Usage().TotalTokens != 500 {
		t.Errorf("usage not delegated: %+v", stream.Usage())
	}
}

func TestInstrumentedStreamer_BudgetRejection(t *testing.T) {
	tracker := NewTracker("test-budget", "", 100, 0, ActionReject, zap.NewNop())
	tracker.Record(100)

	inner := &mockStreamer{stream: &mockStream{}}
	s := NewInstrumentedStreamer(inner, "test-budget", "gpt-test", tracker, zap.NewNop())

	_, err := s.StreamAnswer(context.Background(), domain.Prompt{})
	if !errors.Is(err, domain.ErrTokenQuotaExceeded) {
		t.Fatalf("expected domain.ErrTokenQuotaExceeded, got %v", err)
	}
	if inner.calls != 0 {
		t.Error("inner streamer must not be called when the budget is exhausted")
	}
}

func TestInstrumentedStreamer_InnerError(t *testing.T) {
	inner := &mockStreamer{err: domain.ErrLLMProviderError}
	s := NewInstrumentedStreamer(inner, "test-err", "gpt-test", nil, nil)

	_, err := s.StreamAnswer(context.Background(), domain.Prompt{})
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestInstrumentedStreamer_NoBudget(t *testing.T) {
	inner := &mockStreamer{stream: &mockStream{usage: domain.TokenUsage{TotalTokens: 9}}}
	s := NewInstrumentedStreamer(inner, "test-nobudget", "gpt-test", nil, zap.NewNop())

	stream, err := s.StreamAnswer(context.Background(), domain.Prompt{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}
