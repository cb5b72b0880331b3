package api

import (
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	extra         map[string]func() any
}

// NewStatsHandler creates a new stats handler. extra adds named values read
// on every request.
func NewStatsHandler(statsProvider StatsProvider, extra map[string]func() any) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, extra: extra}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.statsProvider.GetStats()
	if stats == nil {
		stats = make(map[string]interface{}, len(h.extra))
	}
	for name, fn := range h.extra {
		stats[name] = fn()
	}
	writeJSON(w, http.StatusOK, stats)
}
