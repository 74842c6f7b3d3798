// Package loader fetches vector tiles for a viewport and drives the cache's
// tile lifecycle hooks. It owns which tiles are retained; the cache never
// evicts on its own.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

// ErrTooManyTiles rejects a viewport that covers more than MaxTiles tiles
// at its fetch zoom.
var ErrTooManyTiles = errors.New("viewport covers too many tiles")

// Sink receives decoded and disposed tiles.
type Sink interface {
	OnTileDecoded(c tilegrid.Coord, feats []*feature.Feature)
	OnTileDisposed(c tilegrid.Coord)
}

type Config struct {
	Layer            string
	MinZoom          int
	MaxZoom          int
	ResolutionOffset int
	Retain           int
	// MaxTiles caps the tiles one Sync may cover.
	MaxTiles         int
	Workers          int
	Timeout          time.Duration
}

// SyncResult summarizes one Sync call.
type SyncResult struct {
	Zoom    int `json:"zoom"`
	Tiles   int `json:"tiles"`
	Cached  int `json:"cached"`
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
}

type Loader struct {
	cfg     Config
	grid    tilegrid.Grid
	fetcher *Fetcher
	sink    Sink
	log     *slog.Logger

	mu       sync.Mutex // guards capacity
	retained *lru.Cache[tilegrid.Coord, int]
	capacity int

	group   singleflight.Group
	loading *xsync.MapOf[tilegrid.Coord, time.Time]
}

func New(cfg Config, f *Fetcher, sink Sink, log *slog.Logger) (*Loader, error) {
	if f == nil || sink == nil {
		return nil, errors.New("loader: fetcher and sink are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 256
	}
	if cfg.MaxTiles <= 0 {
		cfg.MaxTiles = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	l := &Loader{
		cfg:      cfg,
		grid:     tilegrid.New(cfg.MinZoom, cfg.MaxZoom),
		fetcher:  f,
		sink:     sink,
		log:      log,
		capacity: cfg.Retain,
		loading:  xsync.NewMapOf[tilegrid.Coord, time.Time](),
	}
	retained, err := lru.NewWithEvict[tilegrid.Coord, int](cfg.Retain, l.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("retained tiles: %w", err)
	}
	l.retained = retained
	return l, nil
}

func (l *Loader) onEvicted(c tilegrid.Coord, _ int) {
	l.log.Debug("tile released", "tile", c.String())
	l.sink.OnTileDisposed(c)
}

// Sync makes sure every tile covering b at the fetch zoom for displayZoom
// is retained, fetching the missing ones in parallel. Failed tiles are
// reported in the joined error; the others are still delivered. Retention
// capacity follows the viewport: it grows to hold every covering tile and
// falls back to Retain once a smaller viewport is synced.
func (l *Loader) Sync(ctx context.Context, b model.BBox, displayZoom float64) (SyncResult, error) {
	z := l.grid.LookupZoom(displayZoom, l.cfg.ResolutionOffset)
	if n := l.grid.CountCovering(b, z); n > l.cfg.MaxTiles {
		return SyncResult{Zoom: z, Tiles: n}, fmt.Errorf("%w: %d at zoom %d (max %d)", ErrTooManyTiles, n, z, l.cfg.MaxTiles)
	}
	coords := l.grid.TilesCovering(b, z)
	res := SyncResult{Zoom: z, Tiles: len(coords)}
	if len(coords) == 0 {
		return res, nil
	}

	// touch the viewport's tiles first so a shrink only releases others
	var missing []tilegrid.Coord
	for _, c := range coords {
		if _, ok := l.retained.Get(c); ok {
			res.Cached++
			continue
		}
		missing = append(missing, c)
	}
	l.fitCapacity(len(coords))

	var fetched, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(l.cfg.Workers).WithErrors().WithContext(ctx)
	for _, c := range missing {
		p.Go(func(ctx context.Context) error {
			if err := l.load(ctx, c); err != nil {
				failed.Add(1)
				return err
			}
			fetched.Add(1)
			return nil
		})
	}
	err := p.Wait()

	res.Fetched = int(fetched.Load())
	res.Failed = int(failed.Load())
	l.log.Debug("viewport synced",
		"bbox", b.String(), "zoom", z, "tiles", res.Tiles,
		"cached", res.Cached, "fetched", res.Fetched, "failed", res.Failed)
	return res, err
}

// Refresh re-fetches c and replaces its cached batch. The tile becomes
// retained if it was not.
func (l *Loader) Refresh(ctx context.Context, c tilegrid.Coord) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", tilegrid.ErrBadCoord, c)
	}
	return l.load(ctx, c)
}

// Invalidate releases c, which disposes it in the sink. Reports whether the
// tile was retained.
func (l *Loader) Invalidate(c tilegrid.Coord) bool {
	return l.retained.Remove(c)
}

// Retained lists retained tiles, least recently used first.
func (l *Loader) Retained() []tilegrid.Coord { return l.retained.Keys() }

// Loading reports how many tiles are being fetched right now.
func (l *Loader) Loading() int { return l.loading.Size() }

// Purge releases every retained tile.
func (l *Loader) Purge() { l.retained.Purge() }

func (l *Loader) fitCapacity(viewport int) {
	n := max(l.cfg.Retain, viewport)
	l.mu.Lock()
	defer l.mu.Unlock()
	if n != l.capacity {
		l.retained.Resize(n)
		l.capacity = n
	}
}

// Capacity is the current retention limit.
func (l *Loader) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

func (l *Loader) load(ctx context.Context, c tilegrid.Coord) error {
	_, err, _ := l.group.Do(c.String(), func() (any, error) {
		l.loading.Store(c, time.Now())
		defer l.loading.Delete(c)

		ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()

		data, err := l.fetcher.Fetch(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("fetch tile %s: %w", c, err)
		}
		feats, err := Decode(data, c, l.cfg.Layer)
		if err != nil {
			return nil, err
		}

		l.sink.OnTileDecoded(c, feats)
		l.retained.Add(c, len(feats))
		return nil, nil
	})
	if err != nil {
		l.log.Warn("tile load failed", "tile", c.String(), "err", err)
	}
	return err
}
