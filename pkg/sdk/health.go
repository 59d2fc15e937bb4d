package coursechat

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"
}

// Health checks the health of all server components. An unhealthy server
// answers 503 with a report, which is returned without error.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	err = c.doJSON(ctx, http.MethodGet, "/health", nil, nil, &status,
		http.StatusOK, http.StatusServiceUnavailable)
	return status, err
}
