// Package router exposes the cache, the tile loader and the live aggregate
// over HTTP.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/edit-recency-cache/internal/aggregate"
	"github.com/mohammed-shakir/edit-recency-cache/internal/cache"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/filter"
	"github.com/mohammed-shakir/edit-recency-cache/internal/loader"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

// Cache is the read and filter surface of cache.Cache.
type Cache interface {
	Query(b model.BBox, displayZoom float64) ([]*feature.Feature, error)
	SetFilter(f filter.Filter)
	ClearFilter()
	FilterDescriptor() (filter.Descriptor, bool)
	Coords() []tilegrid.Coord
	Lookup(c tilegrid.Coord) []*feature.Feature
	LookupZoom(displayZoom float64) int
	Stats() cache.Stats
}

type Loader interface {
	Sync(ctx context.Context, b model.BBox, displayZoom float64) (loader.SyncResult, error)
}

type Aggregator interface {
	SetViewport(v model.Viewport)
	Snapshot() (aggregate.Snapshot, bool)
	Trigger()
}

type Deps struct {
	Cache  Cache
	Loader Loader
	Live   Aggregator
	// Data is the full date range the tiles carry.
	Data aggregate.Window
	// Facets accepted by PUT /filter; empty accepts any.
	Facets []string
	Logger *slog.Logger
}

type API struct {
	cache  Cache
	loader Loader
	live   Aggregator
	data   aggregate.Window
	facets map[string]struct{}
	log    *slog.Logger
}

func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	a := &API{cache: d.Cache, loader: d.Loader, live: d.Live, data: d.Data, log: d.Logger}
	if len(d.Facets) > 0 {
		a.facets = make(map[string]struct{}, len(d.Facets))
		for _, f := range d.Facets {
			a.facets[f] = struct{}{}
		}
	}
	return a
}

// Mount registers the API routes on r.
func (a *API) Mount(r chi.Router) {
	r.Get("/features", a.handleFeatures)
	r.Get("/aggregate", a.handleAggregate)
	r.Get("/tiles", a.handleTiles)
	r.Get("/filter", a.handleGetFilter)
	r.Put("/filter", a.handlePutFilter)
	r.Delete("/filter", a.handleDeleteFilter)
	if a.loader != nil {
		r.Post("/viewport", a.handleViewport)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}
