// Package aggregate summarizes queried edit cells: a per-day histogram, the
// largest per-cell total and the number of edits in the selected window.
package aggregate

import (
	"cmp"
	"slices"

	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/filter"
)

// Window is an inclusive range of yyyyddd dates.
type Window struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

func (w Window) Contains(date int) bool { return w.First <= date && date <= w.Last }

// Clamp narrows w to lie inside bounds.
func (w Window) Clamp(bounds Window) Window {
	return Window{First: max(w.First, bounds.First), Last: min(w.Last, bounds.Last)}
}

// Params derives the selected window and facet from the active filter
// descriptor. Without a date-range descriptor the whole data window and
// the unfaceted keys are selected.
func Params(d filter.Descriptor, ok bool, data Window) (Window, string) {
	if !ok || d.Normalize().Kind != filter.KindFacetDateRange {
		return data, ""
	}
	sel := data
	if d.FirstDate != 0 {
		sel.First = d.FirstDate
	}
	if d.LastDate != 0 {
		sel.Last = d.LastDate
	}
	return sel.Clamp(data), d.Facet
}

// Visible keeps the features that carry at least one edit key, of any facet,
// inside the data window.
func Visible(feats []*feature.Feature, data Window) []*feature.Feature {
	out := make([]*feature.Feature, 0, len(feats))
	for _, f := range feats {
		if hasEdit(f, data, nil) {
			out = append(out, f)
		}
	}
	return out
}

// Histogram sums edit counts per date for keys of the given facet inside
// the window. Facet names are stripped; an empty facet selects unfaceted
// keys.
func Histogram(feats []*feature.Feature, w Window, facet string) map[int]float64 {
	h := map[int]float64{}
	for _, f := range feats {
		for k, v := range f.Properties {
			ek, ok := feature.ParseEditKey(k)
			if !ok || ek.Facet != facet || !w.Contains(ek.Date) {
				continue
			}
			n, ok := feature.Number(v)
			if !ok {
				continue
			}
			h[ek.Date] += n
		}
	}
	return h
}

// MaxValue is the largest per-cell total for facet among the features that
// have an edit of that facet inside w. It is 0 when none qualify.
func MaxValue(feats []*feature.Feature, w Window, facet string) float64 {
	key := feature.TotalKey(facet)
	var best float64
	for _, f := range feats {
		if !hasEdit(f, w, &facet) {
			continue
		}
		if n, ok := feature.Number(f.Properties[key]); ok && n > best {
			best = n
		}
	}
	return best
}

// TotalEdits sums the histogram over w.
func TotalEdits(h map[int]float64, w Window) float64 {
	var total float64
	for date, n := range h {
		if w.Contains(date) {
			total += n
		}
	}
	return total
}

type Bin struct {
	Date  int     `json:"date"`
	Count float64 `json:"count"`
}

// Bins returns the histogram ordered by date.
func Bins(h map[int]float64) []Bin {
	out := make([]Bin, 0, len(h))
	for d, n := range h {
		out = append(out, Bin{Date: d, Count: n})
	}
	slices.SortFunc(out, func(a, b Bin) int { return cmp.Compare(a.Date, b.Date) })
	return out
}

// Result is the aggregate of one feature set.
type Result struct {
	Facet      string  `json:"facet"`
	Data       Window  `json:"data"`
	Selected   Window  `json:"selected"`
	Visible    int     `json:"visible"`
	Histogram  []Bin   `json:"histogram"`
	MaxValue   float64 `json:"maxValue"`
	TotalEdits float64 `json:"totalEdits"`
}

// Compute aggregates feats. The histogram spans the data window; the max
// value and edit total are restricted to the selected window.
func Compute(feats []*feature.Feature, data, selected Window, facet string) Result {
	vis := Visible(feats, data)
	h := Histogram(vis, data, facet)
	return Result{
		Facet:      facet,
		Data:       data,
		Selected:   selected,
		Visible:    len(vis),
		Histogram:  Bins(h),
		MaxValue:   MaxValue(vis, selected, facet),
		TotalEdits: TotalEdits(h, selected),
	}
}

// hasEdit reports whether f has an edit key inside w; a non-nil facet also
// requires the key's facet to match.
func hasEdit(f *feature.Feature, w Window, facet *string) bool {
	for k := range f.Properties {
		ek, ok := feature.ParseEditKey(k)
		if !ok || !w.Contains(ek.Date) {
			continue
		}
		if facet == nil || ek.Facet == *facet {
			return true
		}
	}
	return false
}
