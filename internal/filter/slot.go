package filter

import "sync/atomic"

type holder struct{ f Filter }

// Slot holds the active filter. The zero value is ready and passes
// everything. Changing the filter notifies nobody; callers re-query.
type Slot struct {
	cur atomic.Pointer[holder]
}

// Set replaces the active filter. A nil filter resets to All.
func (s *Slot) Set(f Filter) {
	if f == nil {
		f = All
	}
	s.cur.Store(&holder{f: f})
}

func (s *Slot) Clear() { s.cur.Store(nil) }

func (s *Slot) Current() Filter {
	h := s.cur.Load()
	if h == nil {
		return All
	}
	return h.f
}

// Descriptor returns the active filter's descriptor when it has one.
func (s *Slot) Descriptor() (Descriptor, bool) {
	switch f := s.Current().(type) {
	case Descriptor:
		return f.Normalize(), true
	case *Descriptor:
		if f == nil {
			return All, true
		}
		return f.Normalize(), true
	default:
		return Descriptor{}, false
	}
}
