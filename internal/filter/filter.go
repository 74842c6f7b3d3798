// Package filter holds the predicate that decides which cached features are
// active for queries.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
)

var ErrInvalidDescriptor = errors.New("invalid filter descriptor")

type Filter interface {
	Match(f *feature.Feature) bool
}

// Func adapts an ordinary function to Filter.
type Func func(f *feature.Feature) bool

func (fn Func) Match(f *feature.Feature) bool { return fn(f) }

type Kind string

const (
	KindAll            Kind = "all"
	KindFacetDateRange Kind = "facetDateRange"
)

// Descriptor is the serializable form of the built-in filters. It is a
// comparable value; two descriptors select the same features iff they are
// equal after Normalize.
//
// FacetDateRange keeps a feature when at least one of its edit keys has a
// date within [FirstDate, LastDate] and a facet equal to Facet. An empty
// Facet selects keys without a facet. A zero date leaves that end open.
type Descriptor struct {
	Kind      Kind   `json:"kind"`
	FirstDate int    `json:"firstDate,omitempty"`
	LastDate  int    `json:"lastDate,omitempty"`
	Facet     string `json:"facet,omitempty"`
}

var All = Descriptor{Kind: KindAll}

func FacetDateRange(first, last int, facet string) Descriptor {
	return Descriptor{Kind: KindFacetDateRange, FirstDate: first, LastDate: last, Facet: facet}
}

func (d Descriptor) Normalize() Descriptor {
	if d.Kind == "" || d.Kind == KindAll {
		return All
	}
	return d
}

func (d Descriptor) Validate() error {
	switch d.Normalize().Kind {
	case KindAll:
		return nil
	case KindFacetDateRange:
		if d.FirstDate < 0 || d.LastDate < 0 {
			return fmt.Errorf("%w: negative date", ErrInvalidDescriptor)
		}
		if d.FirstDate != 0 && d.LastDate != 0 && d.FirstDate > d.LastDate {
			return fmt.Errorf("%w: firstDate %d after lastDate %d", ErrInvalidDescriptor, d.FirstDate, d.LastDate)
		}
		if strings.Contains(d.Facet, ":") {
			return fmt.Errorf("%w: facet %q contains ':'", ErrInvalidDescriptor, d.Facet)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDescriptor, d.Kind)
	}
}

// InRange reports whether date lies in the descriptor's window.
func (d Descriptor) InRange(date int) bool {
	if d.FirstDate != 0 && date < d.FirstDate {
		return false
	}
	if d.LastDate != 0 && date > d.LastDate {
		return false
	}
	return true
}

func (d Descriptor) Match(f *feature.Feature) bool {
	if d.Normalize().Kind == KindAll {
		return true
	}
	if f == nil {
		return false
	}
	for k := range f.Properties {
		ek, ok := feature.ParseEditKey(k)
		if !ok {
			continue
		}
		if ek.Facet == d.Facet && d.InRange(ek.Date) {
			return true
		}
	}
	return false
}

func (d Descriptor) String() string {
	d = d.Normalize()
	if d.Kind == KindAll {
		return string(KindAll)
	}
	var b strings.Builder
	b.WriteString(string(d.Kind))
	b.WriteByte('(')
	b.WriteString(strconv.Itoa(d.FirstDate))
	b.WriteString("..")
	b.WriteString(strconv.Itoa(d.LastDate))
	b.WriteByte(',')
	b.WriteString(strconv.Quote(d.Facet))
	b.WriteByte(')')
	return b.String()
}

// Fingerprint is a stable hash of the normalized descriptor, used for log
// fields and HTTP ETags.
func (d Descriptor) Fingerprint() string {
	return strconv.FormatUint(xxhash.Sum64String(d.String()), 16)
}

// Decode parses and validates a JSON descriptor.
func Decode(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d.Normalize(), nil
}
