// Package config reads the service configuration from the environment.
// Invalidation consumer settings live in kafkaconsumer.FromEnv.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultFacets are the edit facets the tile source publishes.
var DefaultFacets = []string{
	"created", "modified", "deleted", "building", "road",
	"waterway", "poi", "coastline", "metadataOnly",
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	TileURL          string
	TileLayer        string
	TileMinZoom      int
	TileMaxZoom      int
	ResolutionOffset int
	VectorTileSize   int
	RasterTileSize   int
	TileRetain       int
	MaxTilesPerSync  int
	FetchWorkers     int
	FetchTimeout     time.Duration

	FirstDate         int
	LastDate          int
	Facets            []string
	AggregateDebounce time.Duration

	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string
}

func FromEnv() Config {
	minZoom := getint("TILE_MIN_ZOOM", 0)
	maxZoom := getint("TILE_MAX_ZOOM", 10)
	if minZoom < 0 {
		minZoom = 0
	}
	if maxZoom < minZoom {
		minZoom, maxZoom = 0, 10
	}

	first := getint("FIRST_DATE", 0)
	last := getint("LAST_DATE", DayOfYear(time.Now()))
	if last < first {
		last = first
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		TileURL:          getenv("TILE_URL", "http://localhost:8080/edits/{z}/{x}/{y}.mvt"),
		TileLayer:        getenv("TILE_LAYER", "edits"),
		TileMinZoom:      minZoom,
		TileMaxZoom:      maxZoom,
		ResolutionOffset: getint("RESOLUTION_OFFSET", 1),
		VectorTileSize:   getint("VECTOR_TILE_SIZE", 0),
		RasterTileSize:   getint("RASTER_TILE_SIZE", 0),
		TileRetain:       getint("TILE_RETAIN", 256),
		MaxTilesPerSync:  getint("MAX_TILES_PER_SYNC", 1024),
		FetchWorkers:     getint("FETCH_WORKERS", 8),
		FetchTimeout:     getduration("FETCH_TIMEOUT", 10*time.Second),

		FirstDate:         first,
		LastDate:          last,
		Facets:            getlist("FACETS", DefaultFacets),
		AggregateDebounce: getduration("AGGREGATE_DEBOUNCE", 500*time.Millisecond),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
		MetricsAddr:    getenv("METRICS_ADDR", ""),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
	}
}

// DayOfYear renders t as a yyyyddd date.
func DayOfYear(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a, b,c" into a list; empty items are dropped
func getlist(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
