package router

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/edit-recency-cache/internal/aggregate"
	"github.com/mohammed-shakir/edit-recency-cache/internal/cache"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
	"github.com/mohammed-shakir/edit-recency-cache/internal/feature"
	"github.com/mohammed-shakir/edit-recency-cache/internal/filter"
	"github.com/mohammed-shakir/edit-recency-cache/internal/loader"
	mylog "github.com/mohammed-shakir/edit-recency-cache/internal/logger"
)

const maxFilterBody = 4 << 10

func (a *API) handleFeatures(w http.ResponseWriter, r *http.Request) {
	v, err := ParseViewport(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if etag, ok := a.etag(v); ok {
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	feats, err := a.cache.Query(v.BBox, v.Zoom)
	if err != nil {
		a.log.ErrorContext(r.Context(), "feature query failed", "bbox", v.BBox.String(), "err", err)
		writeError(w, queryStatus(err), err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range feats {
		fc.Append(f.GeoJSON())
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("encode features: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Lookup-Zoom", strconv.Itoa(a.cache.LookupZoom(v.Zoom)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// etag changes whenever the store, the filter or the requested viewport do.
// A filter without a descriptor cannot be fingerprinted, so no tag is sent.
func (a *API) etag(v model.Viewport) (string, bool) {
	d, ok := a.cache.FilterDescriptor()
	if !ok {
		return "", false
	}
	var buf [8]byte
	h := xxhash.New()
	_, _ = h.WriteString(d.Fingerprint())
	for _, n := range [...]uint64{
		a.cache.Stats().Version,
		math.Float64bits(v.BBox.X1), math.Float64bits(v.BBox.Y1),
		math.Float64bits(v.BBox.X2), math.Float64bits(v.BBox.Y2),
		uint64(a.cache.LookupZoom(v.Zoom)),
	} {
		binary.LittleEndian.PutUint64(buf[:], n)
		_, _ = h.Write(buf[:])
	}
	return `"` + strconv.FormatUint(h.Sum64(), 16) + `"`, true
}

func (a *API) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("bbox") == "" {
		if a.live == nil {
			writeError(w, http.StatusNotFound, errors.New("no live aggregate"))
			return
		}
		snap, ok := a.live.Snapshot()
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("no aggregate computed yet; POST /viewport first"))
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	v, err := ParseViewport(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	feats, err := a.cache.Query(v.BBox, v.Zoom)
	if err != nil {
		writeError(w, queryStatus(err), err)
		return
	}
	d, ok := a.cache.FilterDescriptor()
	selected, facet := aggregate.Params(d, ok, a.data)
	writeJSON(w, http.StatusOK, aggregate.Compute(feats, a.data, selected, facet))
}

type tileEntry struct {
	Tile     string `json:"tile"`
	Zoom     int    `json:"zoom"`
	Features int    `json:"features"`
}

type tilesBody struct {
	cache.Stats
	Entries []tileEntry `json:"entries"`
}

func (a *API) handleTiles(w http.ResponseWriter, _ *http.Request) {
	coords := a.cache.Coords()
	out := tilesBody{Stats: a.cache.Stats(), Entries: make([]tileEntry, 0, len(coords))}
	for _, c := range coords {
		out.Entries = append(out.Entries, tileEntry{Tile: c.String(), Zoom: c.Z, Features: len(a.cache.Lookup(c))})
	}
	writeJSON(w, http.StatusOK, out)
}

type filterBody struct {
	Filter      filter.Descriptor `json:"filter"`
	Custom      bool              `json:"custom,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
}

func (a *API) currentFilter() filterBody {
	d, ok := a.cache.FilterDescriptor()
	if !ok {
		return filterBody{Custom: true}
	}
	return filterBody{Filter: d, Fingerprint: d.Fingerprint()}
}

func (a *API) handleGetFilter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.currentFilter())
}

func (a *API) handlePutFilter(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFilterBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	d, err := filter.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.checkFacet(d.Facet); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a.cache.SetFilter(d)
	ctx := mylog.WithFilter(r.Context(), d.Fingerprint())
	a.log.InfoContext(ctx, "filter replaced", "filter", d.String())
	a.retrigger()
	writeJSON(w, http.StatusOK, a.currentFilter())
}

func (a *API) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	a.cache.ClearFilter()
	a.log.InfoContext(r.Context(), "filter reset")
	a.retrigger()
	writeJSON(w, http.StatusOK, a.currentFilter())
}

func (a *API) checkFacet(facet string) error {
	if facet == "" || a.facets == nil {
		return nil
	}
	if _, ok := a.facets[facet]; !ok {
		return fmt.Errorf("%w: unknown facet %q", filter.ErrInvalidDescriptor, facet)
	}
	return nil
}

// retrigger recomputes the live aggregate; a filter change fires no store
// notification of its own.
func (a *API) retrigger() {
	if a.live != nil {
		a.live.Trigger()
	}
}

type viewportBody struct {
	Viewport model.Viewport    `json:"viewport"`
	Sync     loader.SyncResult `json:"sync"`
	Error    string            `json:"error,omitempty"`
}

func (a *API) handleViewport(w http.ResponseWriter, r *http.Request) {
	v, err := ParseViewport(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.loader.Sync(r.Context(), v.BBox, v.Zoom)
	if errors.Is(err, loader.ErrTooManyTiles) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if a.live != nil {
		a.live.SetViewport(v)
	}
	out := viewportBody{Viewport: v, Sync: res}
	if err != nil {
		// tiles that did load stay cached and visible
		a.log.WarnContext(r.Context(), "viewport sync incomplete",
			"bbox", v.BBox.String(), "failed", res.Failed, "err", err)
		out.Error = strings.TrimSpace(err.Error())
		writeJSON(w, http.StatusBadGateway, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// queryStatus maps a query failure to a status code. A cached record whose
// geometry cannot be tested for containment is a data problem, not a
// server fault.
func queryStatus(err error) int {
	if errors.Is(err, feature.ErrUnsupportedGeometry) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
