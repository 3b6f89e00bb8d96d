package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/triagent/triagent/internal/taskstore"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type Status struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message,omitempty"`
	Database    bool   `json:"database"`
	Broker      bool   `json:"broker"`
	RateLimiter bool   `json:"rate_limiter"`
	Pending     int64  `json:"pending_tasks"`
	Completed   int64  `json:"completed_tasks"`
}

// HTTPHandler returns an HTTP handler that reports the health status of the
// service, probing the result store, the broker, and the rate-limiter
// backend. A store or broker failure makes the service unready; a
// rate-limiter outage does not, since admission fails open without it.
func HTTPHandler(tasks taskstore.Store, brokerProbe, limiterProbe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		st := Status{OK: true, Message: "ok", Database: true, Broker: true, RateLimiter: true}

		if tasks != nil {
			if err := tasks.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
			} else if stats, err := tasks.Stats(ctx); err == nil {
				st.Pending = stats.Pending
				st.Completed = stats.Completed
			}
		}
		if brokerProbe != nil {
			if err := brokerProbe(ctx); err != nil {
				st.OK = false
				st.Message = "broker unreachable"
				st.Broker = false
			}
		}
		if limiterProbe != nil {
			if err := limiterProbe(ctx); err != nil {
				st.RateLimiter = false
			}
		}

		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
