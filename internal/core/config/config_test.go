package config

import (
	"slices"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "TILE_MAX_ZOOM", "RESOLUTION_OFFSET", "FACETS", "FIRST_DATE", "LAST_DATE"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.TileMaxZoom != 10 || cfg.ResolutionOffset != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TileLayer != "edits" || cfg.MaxTilesPerSync != 1024 || cfg.AggregateDebounce != 500*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !slices.Equal(cfg.Facets, DefaultFacets) {
		t.Fatalf("facets=%v", cfg.Facets)
	}
	if cfg.FirstDate != 0 {
		t.Fatalf("first date=%d want open lower bound", cfg.FirstDate)
	}
	if cfg.LastDate != DayOfYear(time.Now()) && cfg.LastDate != DayOfYear(time.Now().Add(-time.Minute)) {
		t.Fatalf("last date=%d", cfg.LastDate)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TILE_MIN_ZOOM", "2")
	t.Setenv("TILE_MAX_ZOOM", "14")
	t.Setenv("RESOLUTION_OFFSET", "2")
	t.Setenv("FIRST_DATE", "2023001")
	t.Setenv("LAST_DATE", "2023090")
	t.Setenv("FACETS", "created, road,,poi")
	t.Setenv("METRICS_ENABLED", "no")
	t.Setenv("FETCH_TIMEOUT", "3s")

	cfg := FromEnv()
	if cfg.TileMinZoom != 2 || cfg.TileMaxZoom != 14 || cfg.ResolutionOffset != 2 {
		t.Fatalf("zoom config %+v", cfg)
	}
	if cfg.FirstDate != 2023001 || cfg.LastDate != 2023090 {
		t.Fatalf("dates %d..%d", cfg.FirstDate, cfg.LastDate)
	}
	if !slices.Equal(cfg.Facets, []string{"created", "road", "poi"}) {
		t.Fatalf("facets=%v", cfg.Facets)
	}
	if cfg.MetricsEnabled || cfg.FetchTimeout != 3*time.Second {
		t.Fatalf("unexpected %+v", cfg)
	}
}

func TestFromEnv_InvalidZoomRangeFallsBack(t *testing.T) {
	t.Setenv("TILE_MIN_ZOOM", "9")
	t.Setenv("TILE_MAX_ZOOM", "3")
	cfg := FromEnv()
	if cfg.TileMinZoom != 0 || cfg.TileMaxZoom != 10 {
		t.Fatalf("zoom range %d..%d", cfg.TileMinZoom, cfg.TileMaxZoom)
	}
}

func TestDayOfYear(t *testing.T) {
	if got := DayOfYear(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)); got != 2024366 {
		t.Fatalf("DayOfYear=%d want 2024366", got)
	}
}
