// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Readiness reports ready when rr is nil, so a process without an
// invalidation consumer is ready as soon as it serves.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status     string  `json:"status"`
			Partitions []int32 `json:"partitions,omitempty"`
		}
		ready, parts := true, []int32(nil)
		if rr != nil {
			ready, parts = rr.Readiness()
		}
		out := resp{Status: "not_ready"}
		if ready {
			out.Status = "ready"
			out.Partitions = parts
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
