package tilestore

import (
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/edit-recency-cache/internal/cache/notify"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

func pts(n int) []*feature.Feature {
	out := make([]*feature.Feature, n)
	for i := range out {
		out[i] = feature.New(orb.Point{float64(i), float64(i)}, nil)
	}
	return out
}

type recorder struct {
	mu      sync.Mutex
	changes []notify.Change
}

func (r *recorder) fn(c notify.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func newStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	n := &notify.Notifier{}
	n.Set(rec.fn)
	return New(n), rec
}

func TestInsert_ReplacesWholesaleAndNotifiesOnce(t *testing.T) {
	s, rec := newStore(t)
	c := tilegrid.Coord{Z: 5, X: 10, Y: 12}

	first := pts(3)
	s.Insert(c, first)
	second := pts(1)
	s.Insert(c, second)

	got := s.Lookup(c)
	if len(got) != 1 || got[0] != second[0] {
		t.Fatalf("lookup after re-insert = %v, want second batch only", got)
	}
	if rec.count() != 2 {
		t.Fatalf("notifications=%d want 2", rec.count())
	}
	if rec.changes[1].Op != notify.OpInsert || rec.changes[1].Coord != c || rec.changes[1].Features != 1 {
		t.Fatalf("unexpected change %+v", rec.changes[1])
	}
	if s.FeatureCount() != 1 || s.Len() != 1 {
		t.Fatalf("counts tiles=%d features=%d", s.Len(), s.FeatureCount())
	}
}

func TestInsert_BatchIsIsolatedFromCallerSlice(t *testing.T) {
	s, _ := newStore(t)
	c := tilegrid.Coord{Z: 1, X: 0, Y: 0}
	batch := pts(2)
	s.Insert(c, batch)

	batch[0] = nil
	if s.Lookup(c)[0] == nil {
		t.Fatalf("store aliased the caller's slice")
	}
}

func TestNotifier_SeesInsertAlreadyVisible(t *testing.T) {
	n := &notify.Notifier{}
	s := New(n)
	c := tilegrid.Coord{Z: 2, X: 1, Y: 1}

	var seen int
	n.Set(func(ch notify.Change) { seen = len(s.Lookup(ch.Coord)) })
	s.Insert(c, pts(4))
	if seen != 4 {
		t.Fatalf("callback observed %d features, want 4", seen)
	}
}

func TestEvict_AbsentCoordinateDoesNotNotify(t *testing.T) {
	s, rec := newStore(t)
	if s.Evict(tilegrid.Coord{Z: 3, X: 1, Y: 1}) {
		t.Fatalf("Evict reported removal of absent entry")
	}
	if rec.count() != 0 {
		t.Fatalf("notifications=%d want 0", rec.count())
	}
	v := s.Version()
	s.Evict(tilegrid.Coord{Z: 3, X: 1, Y: 1})
	if s.Version() != v {
		t.Fatalf("version moved on no-op evict")
	}
}

func TestEvict_PresentCoordinateNotifiesOnce(t *testing.T) {
	s, rec := newStore(t)
	c := tilegrid.Coord{Z: 3, X: 1, Y: 1}
	s.Insert(c, pts(2))

	if !s.Evict(c) {
		t.Fatalf("Evict did not report removal")
	}
	if s.Lookup(c) != nil || s.Has(c) {
		t.Fatalf("entry still present after evict")
	}
	if rec.count() != 2 || rec.changes[1].Op != notify.OpEvict || rec.changes[1].Features != 2 {
		t.Fatalf("unexpected changes %+v", rec.changes)
	}
	if s.FeatureCount() != 0 {
		t.Fatalf("feature count=%d want 0", s.FeatureCount())
	}
}

func TestLookup_ReflectsLastOperationPerCoordinate(t *testing.T) {
	s, _ := newStore(t)
	rng := rand.New(rand.NewSource(7))

	coords := []tilegrid.Coord{
		{Z: 4, X: 0, Y: 0}, {Z: 4, X: 1, Y: 0}, {Z: 4, X: 0, Y: 1}, {Z: 5, X: 3, Y: 3},
	}
	model := map[tilegrid.Coord][]*feature.Feature{}

	for range 500 {
		c := coords[rng.Intn(len(coords))]
		if rng.Intn(3) == 0 {
			s.Evict(c)
			delete(model, c)
			continue
		}
		batch := pts(rng.Intn(4))
		s.Insert(c, batch)
		model[c] = batch
	}

	total := 0
	for _, c := range coords {
		want, ok := model[c]
		got := s.Lookup(c)
		if !ok {
			if got != nil {
				t.Fatalf("%v: expected empty, got %d features", c, len(got))
			}
			continue
		}
		total += len(want)
		if !slices.Equal(got, want) {
			t.Fatalf("%v: lookup does not match last insert", c)
		}
	}
	if s.FeatureCount() != total {
		t.Fatalf("feature count=%d want %d", s.FeatureCount(), total)
	}
}

func TestCoords_SortedDeterministically(t *testing.T) {
	s, _ := newStore(t)
	for _, c := range []tilegrid.Coord{{Z: 5, X: 2, Y: 1}, {Z: 4, X: 0, Y: 0}, {Z: 5, X: 1, Y: 1}} {
		s.Insert(c, nil)
	}
	want := []tilegrid.Coord{{Z: 4, X: 0, Y: 0}, {Z: 5, X: 1, Y: 1}, {Z: 5, X: 2, Y: 1}}
	if got := s.Coords(); !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestConcurrent_InsertsAndLookupsOnDistinctCoords(t *testing.T) {
	s, rec := newStore(t)
	const writers = 16
	const rounds = 50

	var wg sync.WaitGroup
	wg.Add(writers * 2)
	for w := range writers {
		c := tilegrid.Coord{Z: 6, X: w, Y: 0}
		go func() {
			defer wg.Done()
			for i := range rounds {
				s.Insert(c, pts(i%5+1))
			}
		}()
		go func() {
			defer wg.Done()
			for range rounds {
				if got := s.Lookup(c); got != nil && (len(got) < 1 || len(got) > 5) {
					t.Errorf("torn batch of %d features", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()

	if rec.count() != writers*rounds {
		t.Fatalf("notifications=%d want %d", rec.count(), writers*rounds)
	}
	if s.Len() != writers {
		t.Fatalf("tiles=%d want %d", s.Len(), writers)
	}
}
