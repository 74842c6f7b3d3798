// Package invalidation defines the tile invalidation events consumed from
// Kafka.
package invalidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

var ErrInvalidEvent = errors.New("invalid invalidation event")

const (
	OpDispose = "dispose"
	OpRefresh = "refresh"
)

// Event names tiles whose cached batch is stale, either explicitly or as
// every retained tile intersecting a bbox. Seq orders events per tile;
// zero disables the ordering check.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	TS      time.Time `json:"ts"`
	Seq     uint64    `json:"seq,omitempty"`
	Source  string    `json:"source,omitempty"`
	Tiles   []string  `json:"tiles,omitempty"`
	BBox    *BBox     `json:"bbox,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (b BBox) Model() model.BBox {
	return model.BBox{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2, SRID: b.SRID}
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("%w: version must be 1", ErrInvalidEvent)
	}
	switch e.Op {
	case OpDispose, OpRefresh:
	default:
		return fmt.Errorf("%w: op must be dispose|refresh", ErrInvalidEvent)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("%w: ts is required", ErrInvalidEvent)
	}
	hasTiles := len(e.Tiles) > 0
	hasBBox := e.BBox != nil
	if hasTiles == hasBBox {
		return fmt.Errorf("%w: exactly one of tiles or bbox is required", ErrInvalidEvent)
	}
	if hasTiles {
		if _, err := e.Coords(); err != nil {
			return err
		}
		return nil
	}
	bb := *e.BBox
	if bb.SRID != model.SRIDWGS84 {
		return fmt.Errorf("%w: bbox.srid must be %s", ErrInvalidEvent, model.SRIDWGS84)
	}
	if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
		return fmt.Errorf("%w: bbox longitude out of range", ErrInvalidEvent)
	}
	if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
		return fmt.Errorf("%w: bbox latitude out of range", ErrInvalidEvent)
	}
	if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
		return fmt.Errorf("%w: bbox must satisfy x2>x1 and y2>y1", ErrInvalidEvent)
	}
	return nil
}

// Coords parses the explicit tile list.
func (e Event) Coords() ([]tilegrid.Coord, error) {
	out := make([]tilegrid.Coord, 0, len(e.Tiles))
	for _, s := range e.Tiles {
		c, err := tilegrid.ParseCoord(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		out = append(out, c)
	}
	return out, nil
}
