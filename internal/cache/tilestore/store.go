// Package tilestore owns the tile coordinate -> feature batch association.
package tilestore

import (
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mohammed-shakir/edit-recency-cache/internal/cache/notify"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

// Store maps each coordinate to exactly one feature batch. Batches are
// swapped whole, so a reader sees either the previous or the new slice and
// never a mix. Writes for one coordinate are expected to come from a single
// tile lifecycle; different coordinates may be written concurrently.
type Store struct {
	tiles    *xsync.MapOf[tilegrid.Coord, []*feature.Feature]
	notifier *notify.Notifier

	version  atomic.Uint64
	features atomic.Int64
}

// New creates an empty store. n may be nil.
func New(n *notify.Notifier) *Store {
	return &Store{
		tiles:    xsync.NewMapOf[tilegrid.Coord, []*feature.Feature](),
		notifier: n,
	}
}

// Insert replaces the batch for c and then fires the notifier once.
func (s *Store) Insert(c tilegrid.Coord, feats []*feature.Feature) {
	batch := slices.Clip(slices.Clone(feats))
	if batch == nil {
		batch = []*feature.Feature{}
	}
	prev, _ := s.tiles.LoadAndStore(c, batch)
	total := s.features.Add(int64(len(batch) - len(prev)))
	s.version.Add(1)

	observability.ObserveTileStoreOp("insert", s.tiles.Size(), int(total))
	s.notifier.Fire(notify.Change{Op: notify.OpInsert, Coord: c, Features: len(batch)})
}

// Evict drops the batch for c. Evicting an absent coordinate changes
// nothing and does not notify. Reports whether an entry was removed.
func (s *Store) Evict(c tilegrid.Coord) bool {
	prev, ok := s.tiles.LoadAndDelete(c)
	if !ok {
		observability.ObserveTileStoreOp("evict_absent", s.tiles.Size(), int(s.features.Load()))
		return false
	}
	total := s.features.Add(-int64(len(prev)))
	s.version.Add(1)

	observability.ObserveTileStoreOp("evict", s.tiles.Size(), int(total))
	s.notifier.Fire(notify.Change{Op: notify.OpEvict, Coord: c, Features: len(prev)})
	return true
}

// Lookup returns the cached batch, or nil. The slice is shared and must not
// be modified.
func (s *Store) Lookup(c tilegrid.Coord) []*feature.Feature {
	feats, _ := s.tiles.Load(c)
	return feats
}

func (s *Store) Has(c tilegrid.Coord) bool {
	_, ok := s.tiles.Load(c)
	return ok
}

func (s *Store) Len() int { return s.tiles.Size() }

func (s *Store) FeatureCount() int { return int(s.features.Load()) }

// Version increases on every insert and every effective evict.
func (s *Store) Version() uint64 { return s.version.Load() }

// Coords lists cached coordinates in tilegrid order.
func (s *Store) Coords() []tilegrid.Coord {
	out := make([]tilegrid.Coord, 0, s.tiles.Size())
	s.tiles.Range(func(c tilegrid.Coord, _ []*feature.Feature) bool {
		out = append(out, c)
		return true
	})
	slices.SortFunc(out, tilegrid.Compare)
	return out
}
