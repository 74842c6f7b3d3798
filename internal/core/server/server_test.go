package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/edit-recency-cache/internal/aggregate"
	"github.com/mohammed-shakir/edit-recency-cache/internal/cache"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/router"
	"github.com/mohammed-shakir/edit-recency-cache/internal/metrics"
)

func TestHandler_RoutesProbesMetricsAndAPI(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := metrics.Init(metrics.Config{Enabled: true})
	observability.Init(p.Registerer(), true)

	c := cache.New(cache.DefaultConfig(), log)
	api := router.New(router.Deps{Cache: c, Data: aggregate.Window{First: 2023001, Last: 2023365}, Logger: log})
	h := Handler(Options{Metrics: p.Handler(), MetricsPath: p.Path()}, log, api)

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	for _, path := range []string{"/healthz", "/readyz", "/tiles", "/filter"} {
		if rr := get(path); rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", path, rr.Code)
		}
	}
	if rr := get("/viewport"); rr.Code != http.StatusMethodNotAllowed && rr.Code != http.StatusNotFound {
		t.Fatalf("/viewport without loader: status=%d", rr.Code)
	}

	rr := get("/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `http_requests_total{method="GET",route="/tiles",status="200"}`) {
		t.Fatalf("route metric missing:\n%s", rr.Body.String())
	}
}
