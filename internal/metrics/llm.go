package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLM and answer stream Prometheus metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursechat",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTimeToFirstToken = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursechat",
			Name:      "llm_time_to_first_token_seconds",
			Help:      "Time from request to the first streamed token",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"provider", "model"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursechat",
			Name:      "llm_request_duration_seconds",
			Help:      "Full completion stream duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursechat",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"provider", "model", "type"}, // "prompt" / "completion" / "total"
	)

	LLMErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursechat",
			Name:      "llm_errors_total",
			Help:      "Total LLM errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coursechat",
			Name:      "budget_tokens_remaining",
			Help:      "Remaining token budget",
		},
		[]string{"provider", "period"},
	)

	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursechat",
			Name:      "stream_events_total",
			Help:      "Answer stream events by type; throttled partials count as dropped",
		},
		[]string{"type"},
	)

	StreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursechat",
			Name:      "streams_total",
			Help:      "Answer streams by terminal state",
		},
		[]string{"state"},
	)
)

var llmMetricsRegistered bool

// RegisterLLMMetrics registers the LLM and stream metrics. Must be called once from main.
func RegisterLLMMetrics() {
	if llmMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMTimeToFirstToken)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMTokensTotal)
	prometheus.MustRegister(LLMErrorsTotal)
	prometheus.MustRegister(BudgetTokensRemaining)
	prometheus.MustRegister(StreamEventsTotal)
	prometheus.MustRegister(StreamsTotal)
	llmMetricsRegistered = true
}
