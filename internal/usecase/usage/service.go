package usage

import (
	"context"
	"math"
	"time"

	domusage "github.com/Haoxincode/coursechat/internal/domain/usage"
	"github.com/Haoxincode/coursechat/internal/domain/usage/budget"
	"github.com/Haoxincode/coursechat/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	br                   BudgetReader
	provider             string
	costPerMillionTokens float64
	now                  func() time.Time
}

// New creates a Service. br can be nil (unlimited mode, no counters).
func New(br BudgetReader, provider string, costPerMillionTokens float64) *Service {
	return &Service{
		br:                   br,
		provider:             provider,
		costPerMillionTokens: costPerMillionTokens,
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

// GetReport builds a usage report for the given period.
// The tracker only keeps daily and monthly counters, so total reports the current month.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now()
	var start, end int64
	var limit, used, requests int64
	remaining := int64(-1)

	switch period {
	case domusage.PeriodDay:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start = dayStart.UnixMilli()
		end = dayStart.Add(24 * time.Hour).UnixMilli()
		if s.br != nil {
			limit = s.br.DailyLimit()
			used = s.br.DailyUsed()
			requests = s.br.DailyRequests()
			remaining = s.br.RemainingDaily()
		}
	case domusage.PeriodMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = monthStart.UnixMilli()
		end = monthStart.AddDate(0, 1, 0).UnixMilli()
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
			requests = s.br.MonthlyRequests()
			remaining = s.br.RemainingMonthly()
		}
	default:
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
			requests = s.br.MonthlyRequests()
			remaining = s.br.RemainingMonthly()
		}
	}

	exhausted := limit > 0 && remaining <= 0

	b := budget.New(int(limit), int(remaining), exhausted, end)
	m := metrics.New(int(requests), int(used), s.costMillidollars(used))

	return domusage.NewReport(period, start, end, s.provider, m, b)
}

func (s *Service) costMillidollars(tokens int64) int {
	return int(math.Round(float64(tokens) * s.costPerMillionTokens / 1000))
}
