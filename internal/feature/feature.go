// Package feature holds the decoded feature record cached per tile.
package feature

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrUnsupportedGeometry = errors.New("unsupported geometry kind")

// Kind is the closed set of geometry kinds a record may carry.
type Kind string

const (
	KindPoint           Kind = "Point"
	KindMultiPoint      Kind = "MultiPoint"
	KindLineString      Kind = "LineString"
	KindMultiLineString Kind = "MultiLineString"
	KindPolygon         Kind = "Polygon"
	KindMultiPolygon    Kind = "MultiPolygon"
	KindCollection      Kind = "GeometryCollection"
	KindNone            Kind = ""
)

func KindOf(g orb.Geometry) Kind {
	if g == nil {
		return KindNone
	}
	return Kind(g.GeoJSONType())
}

// Feature is immutable once handed to the tile store. A changed tile is
// delivered as a new batch, never patched in place.
type Feature struct {
	ID         any
	Geometry   orb.Geometry
	Properties map[string]any
}

func New(g orb.Geometry, props map[string]any) *Feature {
	if props == nil {
		props = map[string]any{}
	}
	return &Feature{Geometry: g, Properties: props}
}

// Kind of the feature's geometry.
func (f *Feature) Kind() Kind { return KindOf(f.Geometry) }

// Extent returns the bounding extent used by containment tests. Only point
// geometries are supported; anything else wraps ErrUnsupportedGeometry.
func (f *Feature) Extent() (orb.Bound, error) {
	switch g := f.Geometry.(type) {
	case orb.Point:
		return g.Bound(), nil
	default:
		return orb.Bound{}, fmt.Errorf("%w: %q", ErrUnsupportedGeometry, f.Kind())
	}
}

func FromGeoJSON(gf *geojson.Feature) *Feature {
	props := make(map[string]any, len(gf.Properties))
	for k, v := range gf.Properties {
		props[k] = v
	}
	return &Feature{ID: gf.ID, Geometry: gf.Geometry, Properties: props}
}

// GeoJSON builds a new geojson feature; properties are copied.
func (f *Feature) GeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	return gf
}
