// Package tilegrid maps lon/lat boxes onto the XYZ (web mercator) tile
// pyramid and back.
package tilegrid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
)

const (
	MaxSupportedZoom = 30

	// maptile.Fraction snaps anything past this latitude to the edge row,
	// so boxes are clamped to it first.
	maxLatitude = 85.0511
)

// Grid is stateless apart from its inclusive zoom bounds.
type Grid struct {
	MinZoom int
	MaxZoom int
}

func New(minZoom, maxZoom int) Grid {
	if minZoom < 0 {
		minZoom = 0
	}
	if maxZoom > MaxSupportedZoom {
		maxZoom = MaxSupportedZoom
	}
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	return Grid{MinZoom: minZoom, MaxZoom: maxZoom}
}

func (g Grid) ClampZoom(z int) int {
	if z < g.MinZoom {
		return g.MinZoom
	}
	if z > g.MaxZoom {
		return g.MaxZoom
	}
	return z
}

// LookupZoom converts a display zoom into the zoom tiles are stored at:
// min(maxZoom, round(displayZoom) - offset), clamped into the grid.
// Halves round up, matching the browser map the offset was tuned against.
func (g Grid) LookupZoom(displayZoom float64, offset int) int {
	if math.IsNaN(displayZoom) {
		return g.MinZoom
	}
	z := int(math.Floor(displayZoom+0.5)) - offset
	return g.ClampZoom(min(g.MaxZoom, z))
}

// TilesCovering returns the tiles at zoom (after clamping) that intersect b,
// ordered by row then column. A box edge lying exactly on a tile boundary
// does not pull in the neighbouring tile. Invalid boxes yield nil.
func (g Grid) TilesCovering(b model.BBox, zoom int) []Coord {
	sp, ok := g.span(b, zoom)
	if !ok {
		return nil
	}
	out := make([]Coord, 0, sp.count())
	for y := sp.minY; y <= sp.maxY; y++ {
		for x := sp.minX; x <= sp.maxX; x++ {
			out = append(out, Coord{Z: sp.z, X: x, Y: y})
		}
	}
	return out
}

// CountCovering is len(TilesCovering(b, zoom)) without building the list.
func (g Grid) CountCovering(b model.BBox, zoom int) int {
	sp, ok := g.span(b, zoom)
	if !ok {
		return 0
	}
	return sp.count()
}

type span struct {
	z                      int
	minX, minY, maxX, maxY int
}

func (s span) count() int { return (s.maxX - s.minX + 1) * (s.maxY - s.minY + 1) }

func (g Grid) span(b model.BBox, zoom int) (span, bool) {
	if !b.Valid() {
		return span{}, false
	}
	z := g.ClampZoom(zoom)
	n := 1 << z

	// y grows southward, so the top-left corner carries the max latitude.
	tl := maptile.Fraction(orb.Point{clampLon(b.X1), clampLat(b.Y2)}, maptile.Zoom(z))
	br := maptile.Fraction(orb.Point{clampLon(b.X2), clampLat(b.Y1)}, maptile.Zoom(z))

	sp := span{
		z:    z,
		minX: clampIndex(int(math.Floor(tl[0])), n),
		minY: clampIndex(int(math.Floor(tl[1])), n),
		maxX: clampIndex(int(math.Ceil(br[0]))-1, n),
		maxY: clampIndex(int(math.Ceil(br[1]))-1, n),
	}
	sp.maxX = max(sp.maxX, sp.minX)
	sp.maxY = max(sp.maxY, sp.minY)
	return sp, true
}

// ExtentOf returns the lon/lat extent of c.
func (g Grid) ExtentOf(c Coord) model.BBox {
	return model.FromBound(c.Tile().Bound())
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clampLon(lon float64) float64 {
	return math.Max(-180, math.Min(180, lon))
}

func clampLat(lat float64) float64 {
	return math.Max(-maxLatitude, math.Min(maxLatitude, lat))
}
