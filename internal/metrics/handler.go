package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
)

// CircuitsResponse is the document served by the circuits endpoint: breaker
// snapshots from the manager merged with the collector's traffic aggregates.
type CircuitsResponse struct {
	OpenCircuits  []string                          `json:"open_circuits"`
	Circuits      map[string]circuitbreaker.Metrics `json:"circuits"`
	Traffic       Snapshot                          `json:"traffic"`
	DroppedEvents int64                             `json:"dropped_events,omitempty"`
}

// Handler serves the merged circuit dashboard as JSON.
func (c *Collector) Handler(mgr *circuitbreaker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := CircuitsResponse{
			OpenCircuits:  mgr.OpenCircuits(),
			Circuits:      mgr.AllMetrics(),
			Traffic:       c.Snapshot(),
			DroppedEvents: c.Dropped(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
