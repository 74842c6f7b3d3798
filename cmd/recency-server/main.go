// Command recency-server caches edit-recency vector tiles for the current
// map viewport and serves filtered features and aggregates over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/edit-recency-cache/internal/aggregate"
	"github.com/mohammed-shakir/edit-recency-cache/internal/cache"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/config"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/health"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/router"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/server"
	"github.com/mohammed-shakir/edit-recency-cache/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/edit-recency-cache/internal/loader"
	"github.com/mohammed-shakir/edit-recency-cache/internal/logger"
	"github.com/mohammed-shakir/edit-recency-cache/internal/metrics"
	"github.com/mohammed-shakir/edit-recency-cache/internal/query"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	tileURL := flag.String("tile-url", "", "vector tile URL template with {z}, {x} and {y}")
	flag.Parse()

	cfg := config.FromEnv()
	if *tileURL != "" {
		cfg.TileURL = strings.TrimSpace(*tileURL)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "recency-server",
		Component: "main",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	offset := cfg.ResolutionOffset
	if cfg.VectorTileSize > 0 || cfg.RasterTileSize > 0 {
		o, ok := query.OffsetForTileSizes(cfg.VectorTileSize, cfg.RasterTileSize)
		if !ok {
			appLog.Warn("tile sizes do not give a resolution offset; using default",
				"vector", cfg.VectorTileSize, "raster", cfg.RasterTileSize, "offset", o)
		}
		offset = o
	}

	var mp *metrics.Provider
	if cfg.MetricsEnabled {
		mp = metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.MetricsAddr,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(mp.Registerer(), true)
	}
	observability.ExposeBuildInfo(Version)

	appLog.Info("starting recency-server",
		"addr", cfg.Addr,
		"version", Version,
		"tile_url", cfg.TileURL,
		"zoom", []int{cfg.TileMinZoom, cfg.TileMaxZoom},
		"resolution_offset", offset)

	c := cache.New(cache.Config{
		MinZoom:          cfg.TileMinZoom,
		MaxZoom:          cfg.TileMaxZoom,
		ResolutionOffset: offset,
	}, appLog.With("component", "cache"))

	fetcher, err := loader.NewFetcher(httpclient.NewOutbound(cfg.FetchTimeout, cfg.FetchWorkers), cfg.TileURL)
	if err != nil {
		appLog.Error("invalid tile url", "err", err)
		return 1
	}
	ld, err := loader.New(loader.Config{
		Layer:            cfg.TileLayer,
		MinZoom:          cfg.TileMinZoom,
		MaxZoom:          cfg.TileMaxZoom,
		ResolutionOffset: offset,
		Retain:           cfg.TileRetain,
		MaxTiles:         cfg.MaxTilesPerSync,
		Workers:          cfg.FetchWorkers,
		Timeout:          cfg.FetchTimeout,
	}, fetcher, c, appLog.With("component", "loader"))
	if err != nil {
		appLog.Error("failed to initialize loader", "err", err)
		return 1
	}

	data := aggregate.Window{First: cfg.FirstDate, Last: cfg.LastDate}
	live := aggregate.NewLive(c, data, cfg.AggregateDebounce, appLog.With("component", "aggregate"))
	defer live.Stop()
	c.OnChange(live.OnChange)

	kcfg := kafkaconsumer.FromEnv()
	opts := kafkaconsumer.Options{Logger: appLog.With("component", "invalidation"), Zerolog: &zl}
	if mp != nil {
		opts.Register = mp.Registerer()
	}
	consumer := kafkaconsumer.New(kcfg, ld, opts)

	var ready health.ReadinessReporter
	if kcfg.Enabled {
		ready = consumer
	}
	srvOpts := server.Options{Addr: cfg.Addr, Readiness: ready}
	if mp != nil {
		srvOpts.Metrics = mp.Handler()
		srvOpts.MetricsPath = mp.Path()
	}

	api := router.New(router.Deps{
		Cache:  c,
		Loader: ld,
		Live:   live,
		Data:   data,
		Facets: cfg.Facets,
		Logger: appLog.With("component", "api"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, srvOpts, appLog, api) })
	g.Go(func() error { return consumer.Start(gctx) })
	if mp != nil {
		g.Go(func() error { return mp.Serve(gctx, appLog) })
	}

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	ld.Purge()
	appLog.Info("server stopped")
	return 0
}
