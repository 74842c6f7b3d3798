package loader

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

// Decode turns a vector tile body into WGS84 feature records. Only the named
// layer is kept; an empty layer name keeps all layers. Gzipped bodies are
// detected and inflated.
func Decode(data []byte, c tilegrid.Coord, layer string) ([]*feature.Feature, error) {
	if len(data) == 0 {
		return nil, nil
	}
	layers, err := mvt.Unmarshal(data)
	if errors.Is(err, mvt.ErrDataIsGZipped) {
		layers, err = mvt.UnmarshalGzipped(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode tile %s: %w", c, err)
	}

	t := c.Tile()
	var out []*feature.Feature
	for _, l := range layers {
		if layer != "" && l.Name != layer {
			continue
		}
		l.ProjectToWGS84(t)
		for _, gf := range l.Features {
			out = append(out, feature.FromGeoJSON(gf))
		}
	}
	return out, nil
}
