package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

var ErrBadTemplate = errors.New("tile url template must contain {z}, {x} and {y}")

// maxTileBytes caps a single tile response body.
const maxTileBytes = 16 << 20

// Fetcher downloads raw vector tiles from a {z}/{x}/{y} URL template.
type Fetcher struct {
	client   *http.Client
	template string
	now      func() time.Time // for tests
}

func NewFetcher(client *http.Client, template string) (*Fetcher, error) {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(template, p) {
			return nil, fmt.Errorf("%w: %q", ErrBadTemplate, template)
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, template: template, now: time.Now}, nil
}

func (f *Fetcher) URL(c tilegrid.Coord) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y),
	).Replace(f.template)
}

// Fetch returns the tile body. A 204 or 404 means the tile has no data and
// yields a nil body without error.
func (f *Fetcher) Fetch(ctx context.Context, c tilegrid.Coord) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(c), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.mapbox-vector-tile, application/x-protobuf")

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.ObserveTileFetch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		observability.ObserveTileFetch("empty", time.Since(start).Seconds())
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.ObserveTileFetch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		observability.ObserveTileFetch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("read body: %w", err)
	}
	observability.ObserveTileFetch("ok", time.Since(start).Seconds())
	return b, nil
}
