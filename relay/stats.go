package relay

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Stats tracks relay capture counters across all sessions.
type Stats struct {
	sessions     atomic.Int64
	records      atomic.Int64
	decodeErrors atomic.Int64
	passthroughs atomic.Int64
}

// Snapshot is the JSON form served by the stats endpoint.
type Snapshot struct {
	Sessions     int64 `json:"sessions"`
	Records      int64 `json:"records"`
	DecodeErrors int64 `json:"decode_errors"`
	Passthroughs int64 `json:"passthroughs"`
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Sessions:     s.sessions.Load(),
		Records:      s.records.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Passthroughs: s.passthroughs.Load(),
	}
}

// handler serves the counters as JSON. Implemented as a plain net/http
// handler and mounted into the Fiber app through gofiber/adaptor.
func (s *Stats) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})
}
