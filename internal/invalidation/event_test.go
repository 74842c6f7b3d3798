package invalidation

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate_TilesAndBBoxMutualExclusion(t *testing.T) {
	ev := Event{
		Version: 1, Op: OpDispose, TS: mustTS(),
		Tiles: []string{"5/10/12"},
		BBox:  &BBox{X1: 11, Y1: 55, X2: 12, Y2: 56, SRID: "EPSG:4326"},
	}
	if err := ev.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent when both tiles and bbox are set, got %v", err)
	}
	ev.Tiles, ev.BBox = nil, nil
	if err := ev.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent when neither is set, got %v", err)
	}
}

func TestEvent_Validate_TilesHappyPath(t *testing.T) {
	ev := Event{Version: 1, Op: OpRefresh, TS: mustTS(), Tiles: []string{"5/10/12", "5/11/12"}}
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	got, _ := ev.Coords()
	want := []tilegrid.Coord{{Z: 5, X: 10, Y: 12}, {Z: 5, X: 11, Y: 12}}
	if !slices.Equal(got, want) {
		t.Fatalf("coords=%v want %v", got, want)
	}
}

func TestEvent_Validate_RejectsBadTile(t *testing.T) {
	ev := Event{Version: 1, Op: OpDispose, TS: mustTS(), Tiles: []string{"5/40/12"}}
	err := ev.Validate()
	if !errors.Is(err, ErrInvalidEvent) || !errors.Is(err, tilegrid.ErrBadCoord) {
		t.Fatalf("expected ErrInvalidEvent wrapping ErrBadCoord, got %v", err)
	}
}

func TestEvent_Validate_BBoxHappyPath(t *testing.T) {
	ev := Event{
		Version: 1, Op: OpDispose, TS: mustTS(),
		BBox: &BBox{X1: 11, Y1: 55, X2: 12, Y2: 56, SRID: "EPSG:4326"},
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestEvent_Validate_RejectsBadBBox(t *testing.T) {
	bad := []BBox{
		{X1: 11, Y1: 55, X2: 11, Y2: 56, SRID: "EPSG:4326"},
		{X1: 11, Y1: 55, X2: 12, Y2: 56, SRID: "EPSG:3857"},
		{X1: 11, Y1: 55, X2: 200, Y2: 56, SRID: "EPSG:4326"},
	}
	for _, bb := range bad {
		ev := Event{Version: 1, Op: OpDispose, TS: mustTS(), BBox: &bb}
		if err := ev.Validate(); err == nil {
			t.Fatalf("expected error for %+v", bb)
		}
	}
}

func TestEvent_Validate_RejectsUnknownOpAndVersion(t *testing.T) {
	if err := (Event{Version: 1, Op: "update", TS: mustTS(), Tiles: []string{"1/0/0"}}).Validate(); err == nil {
		t.Fatalf("expected error for unknown op")
	}
	if err := (Event{Version: 2, Op: OpDispose, TS: mustTS(), Tiles: []string{"1/0/0"}}).Validate(); err == nil {
		t.Fatalf("expected error for version 2")
	}
	if err := (Event{Version: 1, Op: OpDispose, Tiles: []string{"1/0/0"}}).Validate(); err == nil {
		t.Fatalf("expected error for missing ts")
	}
}
