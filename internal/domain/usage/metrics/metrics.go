package metrics

// Metrics holds LLM usage for a time period.
type Metrics struct {
	requests         int
	tokens           int
	costMillidollars int
}

// New creates a Metrics snapshot.
func New(requests, tokens, costMillidollars int) Metrics {
	return Metrics{requests: requests, tokens: tokens, costMillidollars: costMillidollars}
}

// Requests returns the number of completed LLM requests.
func (m Metrics) Requests() int { return m.requests }

// Tokens returns the total tokens consumed.
func (m Metrics) Tokens() int { return m.tokens }

// CostMillidollars returns the estimated cost in thousandths of a dollar.
func (m Metrics) CostMillidollars() int { return m.costMillidollars }
