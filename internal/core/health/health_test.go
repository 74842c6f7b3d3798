package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeReadiness struct {
	ready bool
	parts []int32
}

func (f fakeReadiness) Readiness() (bool, []int32) { return f.ready, f.parts }

func TestReadiness_Handler(t *testing.T) {
	cases := []struct {
		name string
		rr   ReadinessReporter
		code int
		body string
	}{
		{"no consumer", nil, http.StatusOK, `"ready"`},
		{"assigned", fakeReadiness{true, []int32{0, 2}}, http.StatusOK, `"partitions":[0,2]`},
		{"waiting", fakeReadiness{false, nil}, http.StatusServiceUnavailable, `"not_ready"`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Readiness(c.rr)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != c.code || !strings.Contains(rr.Body.String(), c.body) {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}
