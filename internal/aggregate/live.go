package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/edit-recency-cache/internal/cache/notify"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/filter"
)

var ErrNoViewport = errors.New("no viewport set")

// Source is the part of the cache the live aggregate reads.
type Source interface {
	Query(b model.BBox, displayZoom float64) ([]*feature.Feature, error)
	FilterDescriptor() (filter.Descriptor, bool)
}

// Snapshot is the last computed aggregate of the live viewport.
type Snapshot struct {
	Result
	Viewport    model.Viewport `json:"viewport"`
	Filter      string         `json:"filter"`
	Fingerprint string         `json:"fingerprint"`
	ComputedAt  time.Time      `json:"computedAt"`
}

// Live keeps an aggregate of the current viewport up to date. Triggers are
// debounced: a burst of tile arrivals causes one recomputation after the
// burst goes quiet.
type Live struct {
	src      Source
	data     Window
	debounce time.Duration
	log      *slog.Logger
	now      func() time.Time // for tests

	mu       sync.Mutex
	viewport *model.Viewport
	timer    *time.Timer
	stopped  bool

	snap atomic.Pointer[Snapshot]
	runs atomic.Uint64
}

func NewLive(src Source, data Window, debounce time.Duration, log *slog.Logger) *Live {
	if log == nil {
		log = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Live{src: src, data: data, debounce: debounce, log: log, now: time.Now}
}

// OnChange has the notify.Func signature so Live can be registered as the
// cache's change callback.
func (l *Live) OnChange(notify.Change) { l.Trigger() }

// SetViewport replaces the live viewport and schedules a recomputation.
func (l *Live) SetViewport(v model.Viewport) {
	l.mu.Lock()
	l.viewport = &v
	l.mu.Unlock()
	l.Trigger()
}

func (l *Live) Viewport() (model.Viewport, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.viewport == nil {
		return model.Viewport{}, false
	}
	return *l.viewport, true
}

// Trigger schedules a recomputation after the debounce interval, pushing
// back one that is already pending.
func (l *Live) Trigger() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(l.debounce, l.fire)
		return
	}
	l.timer.Reset(l.debounce)
}

func (l *Live) fire() {
	if _, err := l.Refresh(); err != nil && !errors.Is(err, ErrNoViewport) {
		l.log.Warn("aggregate refresh failed", "err", err)
	}
}

// Refresh recomputes the snapshot now.
func (l *Live) Refresh() (Snapshot, error) {
	v, ok := l.Viewport()
	if !ok {
		observability.IncAggregateRefresh("skipped")
		return Snapshot{}, ErrNoViewport
	}

	d, hasDesc := l.src.FilterDescriptor()
	feats, err := l.src.Query(v.BBox, v.Zoom)
	if err != nil {
		observability.IncAggregateRefresh("error")
		return Snapshot{}, fmt.Errorf("query viewport: %w", err)
	}

	selected, facet := Params(d, hasDesc, l.data)
	s := Snapshot{
		Result:     Compute(feats, l.data, selected, facet),
		Viewport:   v,
		Filter:     "custom",
		ComputedAt: l.now(),
	}
	if hasDesc {
		s.Filter = d.String()
		s.Fingerprint = d.Fingerprint()
	}
	l.snap.Store(&s)
	l.runs.Add(1)
	observability.IncAggregateRefresh("ok")
	l.log.Debug("aggregate refreshed",
		"visible", s.Visible, "total_edits", s.TotalEdits, "max_value", s.MaxValue)
	return s, nil
}

// Snapshot returns the latest computed aggregate.
func (l *Live) Snapshot() (Snapshot, bool) {
	s := l.snap.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Runs counts completed recomputations.
func (l *Live) Runs() uint64 { return l.runs.Load() }

// Stop cancels a pending recomputation; later triggers are ignored.
func (l *Live) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
	}
}
