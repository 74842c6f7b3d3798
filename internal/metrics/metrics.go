// Package metrics owns the process-level Prometheus registry and the
// optional side listener that exposes it.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	// Addr of a dedicated metrics listener; empty serves metrics only on
	// the API router.
	Addr  string
	Path  string
	Build BuildInfo
}

type Provider struct {
	cfg       Config
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
}

func Init(cfg Config) *Provider {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recency_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	return &Provider{cfg: cfg, reg: reg, buildInfo: build}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Path() string { return p.cfg.Path }

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Serve runs the dedicated metrics listener until ctx is done. It returns
// immediately when no address is configured.
func (p *Provider) Serve(ctx context.Context, log *slog.Logger) error {
	if !p.cfg.Enabled || p.cfg.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(p.cfg.Path, p.Handler())

	srv := &http.Server{
		Addr:              p.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listen", "addr", p.cfg.Addr, "path", p.cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
