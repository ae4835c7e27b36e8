package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    int64             `json:"uptime"`
	Providers map[string]string `json:"providers,omitempty"`
}

// CheckFunc reports the health of each model backend by name.
type CheckFunc func(ctx context.Context) map[string]error

// HealthHandler returns a health check handler. When check reports a
// failing backend the status is "degraded" with 503.
func HealthHandler(version string, check CheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		resp := HealthResponse{Status: "ok", Version: version, Uptime: uptime}
		status := http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			results := check(ctx)
			if len(results) > 0 {
				resp.Providers = make(map[string]string, len(results))
			}
			for name, err := range results {
				if err != nil {
					resp.Providers[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Providers[name] = "ok"
			}
		}
		SendJSON(w, status, resp)
	}
}
