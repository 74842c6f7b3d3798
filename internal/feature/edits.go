package feature

import (
	"strconv"
	"strings"
)

// Property keys on edit cells look like "2023005" (all edits on day 5 of
// 2023) or "2023005:created" (edits of one facet). Keys starting with "__"
// carry per-cell aggregates such as "__total:road" and "__lastEdit".
const aggregatePrefix = "__"

type EditKey struct {
	Date  int
	Facet string
}

// ParseEditKey splits an edit key into its date and optional facet.
// Aggregate keys and keys without a numeric date are rejected.
func ParseEditKey(k string) (EditKey, bool) {
	if strings.HasPrefix(k, aggregatePrefix) {
		return EditKey{}, false
	}
	datePart, facet, _ := strings.Cut(k, ":")
	date, err := strconv.Atoi(datePart)
	if err != nil {
		return EditKey{}, false
	}
	return EditKey{Date: date, Facet: facet}, true
}

func TotalKey(facet string) string { return facetKey("__total", facet) }

func LastEditKey(facet string) string { return facetKey("__lastEdit", facet) }

func facetKey(base, facet string) string {
	if facet == "" {
		return base
	}
	return base + ":" + facet
}

// Number converts a decoded property value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
