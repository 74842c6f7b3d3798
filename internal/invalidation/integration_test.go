package invalidation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/edit-recency-cache/internal/cache"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/invalidation"
	"github.com/mohammed-shakir/edit-recency-cache/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/edit-recency-cache/internal/loader"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

var tile = tilegrid.Coord{Z: 5, X: 10, Y: 12}

func tileBody(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{-62, 35})
	f.Properties["2023005:created"] = 3
	fc.Append(f)
	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{"edits": fc})
	layers.ProjectToTile(tile.Tile())
	b, err := mvt.Marshal(layers)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestIntegration_DisposeAndRefreshThroughLoader(t *testing.T) {
	body := tileBody(t)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/5/10/12.pbf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	c := cache.New(cache.DefaultConfig(), nil)
	f, err := loader.NewFetcher(srv.Client(), srv.URL+"/{z}/{x}/{y}.pbf")
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	ld, err := loader.New(loader.Config{Layer: "edits", MaxZoom: 10, ResolutionOffset: 1}, f, c, nil)
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}

	view := model.BBox{X1: -67, Y1: 32.5, X2: -57, Y2: 40.5, SRID: model.SRIDWGS84}
	if _, err := ld.Sync(context.Background(), view, 6); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got, _ := c.Query(view, 6); len(got) != 1 {
		t.Fatalf("features after sync=%d want 1", len(got))
	}

	cons := kafkaconsumer.New(kafkaconsumer.FromEnv(), ld, kafkaconsumer.Options{Register: prometheus.DefaultRegisterer})
	send := func(op string, seq uint64) {
		t.Helper()
		ev := invalidation.Event{Version: 1, Op: op, TS: time.Now().UTC(), Seq: seq, Tiles: []string{tile.String()}}
		b, _ := json.Marshal(ev)
		if err := cons.ProcessOne(context.Background(), &sarama.ConsumerMessage{Topic: "t", Value: b}); err != nil {
			t.Fatalf("ProcessOne(%s): %v", op, err)
		}
	}

	send(invalidation.OpRefresh, 1)
	if got, _ := c.Query(view, 6); len(got) != 1 {
		t.Fatalf("features after refresh=%d want 1", len(got))
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hits=%d want 2", hits.Load())
	}

	send(invalidation.OpDispose, 2)
	if got, _ := c.Query(view, 6); len(got) != 0 {
		t.Fatalf("features after dispose=%d want 0", len(got))
	}
	if c.Has(tile) {
		t.Fatalf("tile still cached after dispose")
	}

	// the tile left the viewport, so a refresh must not bring it back
	send(invalidation.OpRefresh, 3)
	if c.Has(tile) || hits.Load() != 2 {
		t.Fatalf("refresh of a released tile refetched it: cached=%v hits=%d", c.Has(tile), hits.Load())
	}

	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	bodyStr := rr.Body.String()
	has := func(s string) {
		if !strings.Contains(bodyStr, s) {
			t.Fatalf("metrics missing %q; got:\n%s", s, bodyStr)
		}
	}
	has(`invalidation_events_total{op="dispose",outcome="ok"}`)
	has(`inval_apply_total{action="refresh"}`)
	has("inval_processing_seconds_bucket")
	has("tile_store_ops_total")
}
