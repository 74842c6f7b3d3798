// Package notify holds the single change callback fired by the tile store.
package notify

import (
	"sync/atomic"

	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

type Op string

const (
	OpInsert Op = "insert"
	OpEvict  Op = "evict"
)

// Change describes one completed store mutation.
type Change struct {
	Op       Op
	Coord    tilegrid.Coord
	Features int
}

type Func func(Change)

// Notifier keeps at most one callback. Fire runs it synchronously on the
// caller's goroutine; there is no batching, so expensive listeners debounce
// on their side.
type Notifier struct {
	fn atomic.Pointer[Func]
}

// Set replaces the callback. A nil fn removes it.
func (n *Notifier) Set(fn Func) {
	if fn == nil {
		n.fn.Store(nil)
		return
	}
	n.fn.Store(&fn)
}

func (n *Notifier) Fire(c Change) {
	if n == nil {
		return
	}
	if p := n.fn.Load(); p != nil {
		(*p)(c)
	}
}
