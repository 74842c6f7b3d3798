// Package cache wires the tile store, filter slot, change notifier and query
// engine into the hooks a tile loader drives.
package cache

import (
	"log/slog"

	"github.com/mohammed-shakir/edit-recency-cache/internal/cache/notify"
	"github.com/mohammed-shakir/edit-recency-cache/internal/cache/tilestore"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/filter"
	"github.com/mohammed-shakir/edit-recency-cache/internal/query"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

type Config struct {
	MinZoom          int
	MaxZoom          int
	ResolutionOffset int
}

func DefaultConfig() Config {
	return Config{MinZoom: 0, MaxZoom: 10, ResolutionOffset: query.DefaultResolutionOffset}
}

// Hooks is what a tile loader calls as tiles are decoded and disposed.
type Hooks interface {
	OnTileDecoded(c tilegrid.Coord, feats []*feature.Feature)
	OnTileDisposed(c tilegrid.Coord)
}

type Stats struct {
	Tiles    int    `json:"tiles"`
	Features int    `json:"features"`
	Version  uint64 `json:"version"`
}

type Cache struct {
	grid     tilegrid.Grid
	store    *tilestore.Store
	filters  filter.Slot
	notifier notify.Notifier
	engine   *query.Engine
	log      *slog.Logger
}

var _ Hooks = (*Cache)(nil)

func New(cfg Config, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{grid: tilegrid.New(cfg.MinZoom, cfg.MaxZoom), log: log}
	c.store = tilestore.New(&c.notifier)
	c.engine = query.NewEngine(c.grid, c.store, &c.filters, cfg.ResolutionOffset)
	return c
}

func (c *Cache) OnTileDecoded(coord tilegrid.Coord, feats []*feature.Feature) {
	c.log.Debug("tile decoded", "tile", coord.String(), "features", len(feats))
	c.store.Insert(coord, feats)
}

func (c *Cache) OnTileDisposed(coord tilegrid.Coord) {
	if c.store.Evict(coord) {
		c.log.Debug("tile disposed", "tile", coord.String())
	}
}

func (c *Cache) Query(b model.BBox, displayZoom float64) ([]*feature.Feature, error) {
	return c.engine.Query(b, displayZoom)
}

func (c *Cache) SetFilter(f filter.Filter) {
	c.filters.Set(f)
	if d, ok := c.filters.Descriptor(); ok {
		c.log.Info("filter set", "filter", d.String(), "fingerprint", d.Fingerprint())
		return
	}
	c.log.Info("filter set", "filter", "custom")
}

func (c *Cache) ClearFilter() {
	c.filters.Clear()
	c.log.Info("filter cleared")
}

func (c *Cache) CurrentFilter() filter.Filter { return c.filters.Current() }

// FilterDescriptor returns the active descriptor, if the filter has one.
func (c *Cache) FilterDescriptor() (filter.Descriptor, bool) { return c.filters.Descriptor() }

// OnChange registers the single change callback, replacing any previous
// one. The callback runs synchronously on the mutating goroutine.
func (c *Cache) OnChange(fn notify.Func) {
	if fn == nil {
		c.notifier.Set(nil)
		return
	}
	c.notifier.Set(func(ch notify.Change) {
		observability.IncChangeNotification(string(ch.Op))
		fn(ch)
	})
}

func (c *Cache) Lookup(coord tilegrid.Coord) []*feature.Feature { return c.store.Lookup(coord) }

func (c *Cache) Has(coord tilegrid.Coord) bool { return c.store.Has(coord) }

func (c *Cache) Coords() []tilegrid.Coord { return c.store.Coords() }

func (c *Cache) Grid() tilegrid.Grid { return c.grid }

func (c *Cache) LookupZoom(displayZoom float64) int { return c.engine.LookupZoom(displayZoom) }

func (c *Cache) ResolutionOffset() int { return c.engine.ResolutionOffset() }

func (c *Cache) Stats() Stats {
	return Stats{Tiles: c.store.Len(), Features: c.store.FeatureCount(), Version: c.store.Version()}
}
