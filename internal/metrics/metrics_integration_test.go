package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})
	observability.Init(p.Registerer(), true)
	observability.ExposeBuildInfo("test")

	start := time.Now()
	observability.ObserveHTTP("GET", "/features", 200, time.Since(start).Seconds())
	observability.ObserveTileStoreOp("insert", 3, 12)
	observability.ObserveQuery(0.002, 7)
	observability.ObserveTileFetch("ok", 0.05)
	observability.IncInvalidation("dispose", "ok")
	observability.IncAggregateRefresh("ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`query_duration_seconds_bucket`,
		`tile_fetch_duration_seconds_count`,
		`tile_store_tiles 3`,
		`tile_store_features 12`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "http_requests_total",
		`method="GET"`, `route="/features"`, `status="200"`)
	assertHasMetricLine(t, body, "invalidation_events_total",
		`op="dispose"`, `outcome="ok"`)
	assertHasMetricLine(t, body, "aggregate_refresh_total", `outcome="ok"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
}
