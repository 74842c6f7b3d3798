// Package observability holds the Prometheus collectors shared by the cache,
// loader, invalidation consumer and HTTP layer.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status"},
	)

	tileStoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_store_ops_total",
			Help: "Tile store mutations by op (insert, evict, evict_absent).",
		},
		[]string{"op"},
	)

	tileStoreTiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tile_store_tiles",
		Help: "Number of tiles currently cached.",
	})

	tileStoreFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tile_store_features",
		Help: "Number of feature records currently cached.",
	})

	queryDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "query_duration_seconds",
		Help:    "Spatial query latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	queryResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "query_result_features",
		Help:    "Features returned per spatial query.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	queryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_errors_total",
			Help: "Spatial query failures by kind.",
		},
		[]string{"kind"},
	)

	changeNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_notifications_total",
			Help: "Change notifications fired by the tile store.",
		},
		[]string{"op"},
	)

	tileFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_fetch_total",
			Help: "Upstream tile fetches by outcome.",
		},
		[]string{"outcome"},
	)

	tileFetchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_fetch_duration_seconds",
		Help:    "Latency of upstream tile fetch + decode in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
	})

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Tile invalidation events by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	aggregateRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_refresh_total",
			Help: "Live aggregate recomputations by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		tileStoreOps, tileStoreTiles, tileStoreFeatures,
		queryDurationSeconds, queryResults, queryErrors,
		changeNotifications,
		tileFetchTotal, tileFetchSeconds,
		invalidationEvents, aggregateRefresh,
		buildInfo,
	}
}

func init() {
	register(prometheus.DefaultRegisterer)
}

// Init additionally registers every collector with reg (for example a
// metrics.Provider registry). Calling it twice with the same registry is fine.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	register(reg)
}

func register(reg prometheus.Registerer) {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveTileStoreOp(op string, tiles, features int) {
	tileStoreOps.WithLabelValues(op).Inc()
	tileStoreTiles.Set(float64(tiles))
	tileStoreFeatures.Set(float64(features))
}

func ObserveQuery(durationSeconds float64, results int) {
	queryDurationSeconds.Observe(durationSeconds)
	queryResults.Observe(float64(results))
}

func IncQueryError(kind string) {
	queryErrors.WithLabelValues(kind).Inc()
}

func IncChangeNotification(op string) {
	changeNotifications.WithLabelValues(op).Inc()
}

func ObserveTileFetch(outcome string, durationSeconds float64) {
	tileFetchTotal.WithLabelValues(outcome).Inc()
	tileFetchSeconds.Observe(durationSeconds)
}

func IncInvalidation(op, outcome string) {
	invalidationEvents.WithLabelValues(op, outcome).Inc()
}

func IncAggregateRefresh(outcome string) {
	aggregateRefresh.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
