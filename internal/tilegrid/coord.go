package tilegrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

var ErrBadCoord = errors.New("invalid tile coordinate")

// Coord identifies one XYZ tile. It is a comparable value and is used
// directly as a map key.
type Coord struct {
	Z, X, Y int
}

func (c Coord) String() string {
	return strconv.Itoa(c.Z) + "/" + strconv.Itoa(c.X) + "/" + strconv.Itoa(c.Y)
}

// Less orders by zoom, then y, then x.
func (c Coord) Less(o Coord) bool {
	if c.Z != o.Z {
		return c.Z < o.Z
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.X < o.X
}

// Compare is Less in the form slices.SortFunc expects.
func Compare(a, b Coord) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}

// Valid reports whether x/y fall inside the tile range for z.
func (c Coord) Valid() bool {
	if c.Z < 0 || c.Z > MaxSupportedZoom || c.X < 0 || c.Y < 0 {
		return false
	}
	n := 1 << c.Z
	return c.X < n && c.Y < n
}

func (c Coord) Tile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

func FromTile(t maptile.Tile) Coord {
	return Coord{Z: int(t.Z), X: int(t.X), Y: int(t.Y)}
}

// ParseCoord parses the "z/x/y" form produced by String.
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return Coord{}, fmt.Errorf("%w: %q: expected z/x/y", ErrBadCoord, s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Coord{}, fmt.Errorf("%w: %q: %v", ErrBadCoord, s, err)
		}
		v[i] = n
	}
	c := Coord{Z: v[0], X: v[1], Y: v[2]}
	if !c.Valid() {
		return Coord{}, fmt.Errorf("%w: %q out of range", ErrBadCoord, s)
	}
	return c, nil
}
