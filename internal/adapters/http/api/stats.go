package api

import (
	"math"
	"net/http"
	"time"
)

// StatsProvider supplies the service counters exposed on /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves a JSON snapshot of the provider's counters plus the
// handler's uptime.
type StatsHandler struct {
	provider StatsProvider
	started  time.Time
}

// NewStatsHandler creates a stats handler; uptime is counted from now.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider, started: time.Now()}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	snapshot := make(map[string]interface{})
	if h.provider != nil {
		for k, v := range h.provider.GetStats() {
			snapshot[k] = v
		}
	}
	snapshot["uptimeSeconds"] = math.Round(time.Since(h.started).Seconds())
	writeJSON(w, http.StatusOK, snapshot)
}
