// Package query answers bounding-box queries against the tile store.
package query

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/filter"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

// DefaultResolutionOffset is the zoom difference between a 512px vector
// tile source and a 256px raster background.
const DefaultResolutionOffset = 1

// Source is the read side of the tile store.
type Source interface {
	Lookup(c tilegrid.Coord) []*feature.Feature
}

// Filters yields the filter in effect for one query.
type Filters interface {
	Current() filter.Filter
}

type Engine struct {
	grid    tilegrid.Grid
	tiles   Source
	filters Filters
	offset  int
}

func NewEngine(grid tilegrid.Grid, tiles Source, filters Filters, resolutionOffset int) *Engine {
	return &Engine{grid: grid, tiles: tiles, filters: filters, offset: resolutionOffset}
}

func (e *Engine) ResolutionOffset() int { return e.offset }

// LookupZoom is the zoom at which tiles are enumerated for displayZoom.
func (e *Engine) LookupZoom(displayZoom float64) int {
	return e.grid.LookupZoom(displayZoom, e.offset)
}

// Query returns the cached features that pass the current filter and whose
// extent lies entirely inside b. An uncached area yields an empty result.
// The returned slice is fresh; the records are shared.
func (e *Engine) Query(b model.BBox, displayZoom float64) ([]*feature.Feature, error) {
	start := time.Now()
	out := []*feature.Feature{}

	if !b.Valid() {
		observability.ObserveQuery(time.Since(start).Seconds(), 0)
		return out, nil
	}

	// one filter for the whole call, even if it is swapped concurrently
	var f filter.Filter = filter.All
	if e.filters != nil {
		f = e.filters.Current()
	}
	box := b.Bound()

	for _, c := range e.grid.TilesCovering(b, e.LookupZoom(displayZoom)) {
		for _, rec := range e.tiles.Lookup(c) {
			if !f.Match(rec) {
				continue
			}
			ext, err := rec.Extent()
			if err != nil {
				kind := "extent"
				if errors.Is(err, feature.ErrUnsupportedGeometry) {
					kind = "unsupported_geometry"
				}
				observability.IncQueryError(kind)
				return nil, fmt.Errorf("query tile %s: %w", c, err)
			}
			if box.Contains(ext.Min) && box.Contains(ext.Max) {
				out = append(out, rec)
			}
		}
	}

	observability.ObserveQuery(time.Since(start).Seconds(), len(out))
	return out, nil
}

// OffsetForTileSizes derives the resolution offset from the nominal pixel
// sizes of the vector source and the raster background. Sizes must be
// powers of two with vector >= raster; otherwise DefaultResolutionOffset is
// returned with ok=false.
func OffsetForTileSizes(vector, raster int) (offset int, ok bool) {
	if vector <= 0 || raster <= 0 || vector < raster {
		return DefaultResolutionOffset, false
	}
	if bits.OnesCount(uint(vector)) != 1 || bits.OnesCount(uint(raster)) != 1 {
		return DefaultResolutionOffset, false
	}
	return bits.TrailingZeros(uint(vector)) - bits.TrailingZeros(uint(raster)), true
}
