// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const SRIDWGS84 = "EPSG:4326"

// BBox is a lon/lat rectangle; X is longitude, Y is latitude.
type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid,omitempty"`
}

// String representation matching wfs/wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

// Valid reports whether the box encloses a non-zero area.
// Inverted, degenerate and NaN boxes are not valid.
func (b BBox) Valid() bool {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.X1, b.Y1},
		Max: orb.Point{b.X2, b.Y2},
	}
}

func FromBound(bd orb.Bound) BBox {
	return BBox{X1: bd.Min[0], Y1: bd.Min[1], X2: bd.Max[0], Y2: bd.Max[1], SRID: SRIDWGS84}
}

// Viewport is a box seen at a (fractional) display zoom.
type Viewport struct {
	BBox BBox    `json:"bbox"`
	Zoom float64 `json:"zoom"`
}
