package filter

import (
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
)

func cell(props map[string]any) *feature.Feature {
	return feature.New(orb.Point{0, 0}, props)
}

func TestFacetDateRange_Match(t *testing.T) {
	created := cell(map[string]any{"2023005:created": 3, "__total:created": 3})
	modified := cell(map[string]any{"2023010:modified": 1, "__total:modified": 1})
	plain := cell(map[string]any{"2023020": 2, "__total": 2})
	aggregatesOnly := cell(map[string]any{"__total:created": 9, "__lastEdit:created": 2023005})

	cases := []struct {
		name string
		d    Descriptor
		f    *feature.Feature
		want bool
	}{
		{"facet and window", FacetDateRange(2023001, 2023031, "created"), created, true},
		{"outside window", FacetDateRange(2023006, 2023031, "created"), created, false},
		{"window inclusive first", FacetDateRange(2023005, 2023005, "created"), created, true},
		{"other facet", FacetDateRange(2023001, 2023031, "created"), modified, false},
		{"empty facet selects unfaceted keys", FacetDateRange(2023001, 2023031, ""), plain, true},
		{"empty facet skips faceted keys", FacetDateRange(2023001, 2023031, ""), created, false},
		{"open window", FacetDateRange(0, 0, "modified"), modified, true},
		{"aggregate keys ignored", FacetDateRange(0, 0, "created"), aggregatesOnly, false},
		{"all", All, aggregatesOnly, true},
		{"zero descriptor is all", Descriptor{}, plain, true},
	}
	for _, c := range cases {
		if got := c.d.Match(c.f); got != c.want {
			t.Errorf("%s: Match=%v want %v", c.name, got, c.want)
		}
	}
}

func TestDescriptor_Validate(t *testing.T) {
	bad := []Descriptor{
		{Kind: "between"},
		FacetDateRange(2023010, 2023001, "created"),
		FacetDateRange(-1, 0, ""),
		FacetDateRange(0, 0, "a:b"),
	}
	for _, d := range bad {
		if err := d.Validate(); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("%+v: expected ErrInvalidDescriptor, got %v", d, err)
		}
	}
	if err := FacetDateRange(2023001, 2023001, "created").Validate(); err != nil {
		t.Fatalf("single-day window rejected: %v", err)
	}
}

func TestDescriptor_EqualityAndFingerprint(t *testing.T) {
	a := FacetDateRange(2023001, 2023031, "created")
	b := FacetDateRange(2023001, 2023031, "created")
	if a != b || a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equal descriptors differ")
	}
	if a.Fingerprint() == FacetDateRange(2023001, 2023031, "modified").Fingerprint() {
		t.Fatalf("fingerprint ignores facet")
	}
	if (Descriptor{}).Fingerprint() != All.Fingerprint() {
		t.Fatalf("zero descriptor should fingerprint as all")
	}
}

func TestDecode(t *testing.T) {
	d, err := Decode([]byte(`{"kind":"facetDateRange","firstDate":2023001,"lastDate":2023031,"facet":"created"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d != FacetDateRange(2023001, 2023031, "created") {
		t.Fatalf("unexpected descriptor %+v", d)
	}
	if _, err := Decode([]byte(`{"kind":`)); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for bad json, got %v", err)
	}
	if d, err := Decode([]byte(`{}`)); err != nil || d != All {
		t.Fatalf("empty object = (%+v, %v), want all", d, err)
	}
}

func TestSlot_SetClearCurrent(t *testing.T) {
	var s Slot
	if s.Current() != Filter(All) {
		t.Fatalf("zero slot should hold All")
	}

	none := Func(func(*feature.Feature) bool { return false })
	s.Set(none)
	if s.Current().Match(cell(nil)) {
		t.Fatalf("Set did not replace filter")
	}
	if _, ok := s.Descriptor(); ok {
		t.Fatalf("Func has no descriptor")
	}

	want := FacetDateRange(2023001, 2023031, "created")
	s.Set(want)
	if d, ok := s.Descriptor(); !ok || d != want {
		t.Fatalf("Descriptor=(%+v,%v)", d, ok)
	}

	s.Clear()
	if !s.Current().Match(cell(nil)) {
		t.Fatalf("Clear did not reset to pass-all")
	}
	s.Set(nil)
	if s.Current() != Filter(All) {
		t.Fatalf("Set(nil) should reset to All")
	}
}

func TestSlot_ConcurrentSetAndRead(t *testing.T) {
	var s Slot
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			if i%2 == 0 {
				s.Set(FacetDateRange(0, 0, "created"))
			} else {
				s.Clear()
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 1000 {
			if s.Current() == nil {
				t.Errorf("Current returned nil")
				return
			}
		}
	}()
	wg.Wait()
}
