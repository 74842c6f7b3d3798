package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/model"
)

// maxDisplayZoom bounds the zoom parameter; slippy maps stop well before it.
const maxDisplayZoom = 30

// ParseViewport reads the bbox and zoom query parameters.
func ParseViewport(r *http.Request) (model.Viewport, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("bbox"))
	if raw == "" {
		return model.Viewport{}, errors.New("missing required parameter: bbox")
	}
	bb, err := parseBBOX(raw)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("invalid bbox: %w", err)
	}
	z, err := parseZoom(r.URL.Query().Get("zoom"))
	if err != nil {
		return model.Viewport{}, fmt.Errorf("invalid zoom: %w", err)
	}
	return model.Viewport{BBox: bb, Zoom: z}, nil
}

// parseBBOX accepts x1,y1,x2,y2 with an optional trailing EPSG:4326.
func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.BBox{}, errors.New("expected comma-separated values: x1,y1,x2,y2[,EPSG:4326]")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	srid := model.SRIDWGS84
	if len(parts) == 5 {
		srid = strings.ToUpper(strings.TrimSpace(parts[4]))
		if srid != model.SRIDWGS84 {
			return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
		}
	}

	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy x2>x1 and y2>y1")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}, nil
}

func parseZoom(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("missing required parameter: zoom")
	}
	z, err := parseFloat(v)
	if err != nil {
		return 0, err
	}
	if !(z >= 0 && z <= maxDisplayZoom) {
		return 0, fmt.Errorf("zoom must be in [0,%d]", maxDisplayZoom)
	}
	return z, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
