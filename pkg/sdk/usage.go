package coursechat

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
	PeriodTotal UsagePeriod = "total"
)

// UsageReport contains LLM usage statistics for a time period.
type UsageReport struct {
	Period        UsagePeriod  `json:"period"`
	Provider      string       `json:"provider"`
	PeriodStartAt *time.Time   `json:"periodStartAt,omitempty"`
	PeriodEndAt   *time.Time   `json:"periodEndAt,omitempty"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// UsageMetrics tracks LLM resource consumption.
type UsageMetrics struct {
	Requests         int  `json:"requests"`
	Tokens           int  `json:"tokens"`
	CostMillidollars *int `json:"costMillidollars,omitempty"`
}

// BudgetStatus tracks token quota state. TokensLimit 0 means unlimited.
type BudgetStatus struct {
	TokensLimit     int        `json:"tokensLimit"`
	TokensRemaining int        `json:"tokensRemaining"`
	IsExhausted     bool       `json:"isExhausted"`
	ResetsAt        *time.Time `json:"resetsAt,omitempty"`
}

// Usage returns the server's LLM usage report. An empty period means month.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (report UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	var q url.Values
	if period != "" {
		q = url.Values{"period": {string(period)}}
	}
	err = c.doJSON(ctx, http.MethodGet, "/usage", q, nil, &report)
	return report, err
}
