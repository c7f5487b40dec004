// Package router validates incoming requests and dispatches them to the
// geoprocessing packages.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/core/config"
	"github.com/mohammed-shakir/geoflow/internal/core/executor"
	"github.com/mohammed-shakir/geoflow/internal/core/model"
	"github.com/mohammed-shakir/geoflow/internal/core/observability"
	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/dissolve"
	"github.com/mohammed-shakir/geoflow/internal/hexgrid"
	logpkg "github.com/mohammed-shakir/geoflow/internal/logger"
	"github.com/mohammed-shakir/geoflow/internal/overlay"
	"github.com/mohammed-shakir/geoflow/internal/simplify"
	"github.com/mohammed-shakir/geoflow/internal/vector"
	"github.com/mohammed-shakir/geoflow/internal/webmap"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with the shared status, latency and metrics
// accounting. The route also tags the request context so log lines from
// deeper packages carry the operation.
func instrument(route string, fn func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		r = r.WithContext(logpkg.WithOperation(r.Context(), strings.TrimPrefix(route, "/")))
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

// HandleWFS validates query params and forwards the GetFeature request
// upstream. With merged=true the upstream is paged through server-side
// and the pages come back as one deduplicated layer.
func HandleWFS(logger *slog.Logger, exec executor.Interface) http.HandlerFunc {
	return instrument("/wfs", func(w http.ResponseWriter, r *http.Request) {
		q, warn, err := ParseQueryRequest(r)
		if warn != "" {
			logger.Warn(warn)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if parseBoolParam(r, "merged") {
			l, err := exec.FetchLayer(r.Context(), q)
			if err != nil {
				http.Error(w, "upstream fetch: "+err.Error(), http.StatusBadGateway)
				return
			}
			writeLayer(w, logger, l)
			return
		}
		format := strings.TrimSpace(r.URL.Query().Get("outputFormat"))
		exec.ForwardGetFeatureFormat(w, r, q, format)
	})
}

// HandleTransform reprojects a posted feature collection to the target
// CRS.
func HandleTransform(logger *slog.Logger, cfg config.Config, tr *crs.Transformer) http.HandlerFunc {
	return instrument("/transform", func(w http.ResponseWriter, r *http.Request) {
		target, err := crs.Parse(r.URL.Query().Get("target"))
		if err != nil {
			http.Error(w, "invalid target: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !target.Defined() {
			http.Error(w, "missing required parameter: target", http.StatusBadRequest)
			return
		}

		l, err := readLayer(w, r, cfg, "source")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		start := time.Now()
		fc, err := tr.Collection(l.FC, l.CRS, target)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, crs.ErrUndefined) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		observability.ObserveOperation("transform", time.Since(start).Seconds(), len(fc.Features))

		out := vector.New(l.Name, target)
		out.FC = fc
		writeLayer(w, logger, out)
	})
}

// overlayBody is the two-layer payload for /overlay.
type overlayBody struct {
	Base    json.RawMessage `json:"base"`
	Overlay json.RawMessage `json:"overlay"`
}

// HandleOverlay runs a set operation over two posted polygon
// collections. Both are taken to be in the crs query param's system,
// default EPSG:4326.
func HandleOverlay(logger *slog.Logger, cfg config.Config) http.HandlerFunc {
	return instrument("/overlay", func(w http.ResponseWriter, r *http.Request) {
		op, err := overlay.ParseOp(r.URL.Query().Get("op"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d, err := sharedCRS(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var body overlayBody
		if err := decodeBody(w, r, cfg, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body.Base) == 0 || len(body.Overlay) == 0 {
			http.Error(w, `body must carry "base" and "overlay" feature collections`, http.StatusBadRequest)
			return
		}
		base, err := collectionLayer("base", body.Base, d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		over, err := collectionLayer("overlay", body.Overlay, d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		start := time.Now()
		out, err := overlay.Overlay(base, over, op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		observability.ObserveOperation("overlay", time.Since(start).Seconds(), out.Len())
		writeLayer(w, logger, out)
	})
}

// HandleDissolve merges a posted collection's features by attribute.
func HandleDissolve(logger *slog.Logger, cfg config.Config) http.HandlerFunc {
	return instrument("/dissolve", func(w http.ResponseWriter, r *http.Request) {
		by := strings.TrimSpace(r.URL.Query().Get("by"))
		if by == "" {
			http.Error(w, "missing required parameter: by", http.StatusBadRequest)
			return
		}
		dropNull := parseBoolParam(r, "dropNull")

		l, err := readLayer(w, r, cfg, "crs")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		start := time.Now()
		out, err := dissolve.Dissolve(l, by, dissolve.Options{DropNull: dropNull})
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		observability.ObserveOperation("dissolve", time.Since(start).Seconds(), out.Len())
		writeLayer(w, logger, out)
	})
}

// HandleSimplify reduces vertex counts at a given tolerance.
func HandleSimplify(logger *slog.Logger, cfg config.Config) http.HandlerFunc {
	return instrument("/simplify", func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("tolerance"))
		if raw == "" {
			http.Error(w, "missing required parameter: tolerance", http.StatusBadRequest)
			return
		}
		tolerance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid tolerance: "+err.Error(), http.StatusBadRequest)
			return
		}

		l, err := readLayer(w, r, cfg, "crs")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		start := time.Now()
		out, err := simplify.Layer(l, tolerance)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		observability.ObserveOperation("simplify", time.Since(start).Seconds(), out.Len())
		writeLayer(w, logger, out)
	})
}

// HandleGrid tessellates a bbox or polygon into hexagon features.
func HandleGrid(logger *slog.Logger, cfg config.Config) http.HandlerFunc {
	return instrument("/grid", func(w http.ResponseWriter, r *http.Request) {
		res := cfg.HexResDefault
		if raw := strings.TrimSpace(r.URL.Query().Get("res")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "invalid res: "+err.Error(), http.StatusBadRequest)
				return
			}
			res = n
		}
		if res < cfg.HexResMin || res > cfg.HexResMax {
			http.Error(w, fmt.Sprintf("res %d out of allowed range [%d, %d]", res, cfg.HexResMin, cfg.HexResMax), http.StatusBadRequest)
			return
		}

		rawBBox := strings.TrimSpace(r.URL.Query().Get("bbox"))
		rawPoly := strings.TrimSpace(r.URL.Query().Get("polygon"))
		if rawBBox == "" && rawPoly == "" {
			http.Error(w, "missing required parameter: bbox or polygon", http.StatusBadRequest)
			return
		}
		if rawBBox != "" && rawPoly != "" {
			logger.Warn("both bbox and polygon supplied; preferring polygon")
			rawBBox = ""
		}

		var cells []string
		var err error
		start := time.Now()
		if rawPoly != "" {
			p, perr := parsePolygon(rawPoly)
			if perr != nil {
				http.Error(w, "invalid polygon: "+perr.Error(), http.StatusBadRequest)
				return
			}
			g, gerr := geojson.UnmarshalGeometry([]byte(p.GeoJSON))
			if gerr != nil {
				http.Error(w, "invalid polygon: "+gerr.Error(), http.StatusBadRequest)
				return
			}
			cells, err = hexgrid.CellsForGeometry(g.Geometry(), res)
		} else {
			bb, berr := parseBBOX(rawBBox)
			if berr != nil {
				http.Error(w, "invalid bbox: "+berr.Error(), http.StatusBadRequest)
				return
			}
			cells, err = hexgrid.CellsForBound(orb.Bound{
				Min: orb.Point{bb.X1, bb.Y1},
				Max: orb.Point{bb.X2, bb.Y2},
			}, res)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		out, err := hexgrid.Layer("grid", cells)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		observability.ObserveOperation("grid", time.Since(start).Seconds(), out.Len())
		writeLayer(w, logger, out)
	})
}

// HandleMap renders a posted collection as a Leaflet page. Query params
// select the presentation: cluster, heatmap, choropleth=attr,
// tooltip=a,b and title.
func HandleMap(logger *slog.Logger, cfg config.Config) http.HandlerFunc {
	return instrument("/map", func(w http.ResponseWriter, r *http.Request) {
		l, err := readLayer(w, r, cfg, "crs")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		title := strings.TrimSpace(r.URL.Query().Get("title"))
		if title == "" {
			title = l.Name
		}
		var tooltip []string
		if raw := strings.TrimSpace(r.URL.Query().Get("tooltip")); raw != "" {
			for _, f := range strings.Split(raw, ",") {
				if f = strings.TrimSpace(f); f != "" {
					tooltip = append(tooltip, f)
				}
			}
		}

		m := webmap.New(title)
		choropleth := strings.TrimSpace(r.URL.Query().Get("choropleth"))
		switch {
		case parseBoolParam(r, "heatmap"):
			err = m.AddHeatmap(l, webmap.HeatmapOptions{
				WeightAttribute: strings.TrimSpace(r.URL.Query().Get("weight")),
			})
		case choropleth != "":
			err = m.AddChoropleth(l, webmap.ChoroplethOptions{
				Attribute: choropleth,
				Tooltip:   tooltip,
			})
		default:
			err = m.AddLayer(l, webmap.LayerOptions{
				Tooltip: tooltip,
				Cluster: parseBoolParam(r, "cluster"),
				Show:    true,
			})
		}
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, webmap.ErrNotGeographic) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := m.Render(w); err != nil {
			logger.Error("render map", "err", err)
		}
	})
}

// --- request parsing ---

// ParseQueryRequest validates the WFS proxy query params.
func ParseQueryRequest(r *http.Request) (model.QueryRequest, string, error) {
	var warn string

	layer := strings.TrimSpace(r.URL.Query().Get("layer"))
	if layer == "" {
		return model.QueryRequest{}, "", errors.New("missing required parameter: layer")
	}

	rawBBox := strings.TrimSpace(r.URL.Query().Get("bbox"))
	rawPoly := strings.TrimSpace(r.URL.Query().Get("polygon"))
	filters := strings.TrimSpace(r.URL.Query().Get("filters"))

	// drop bbox if polygon is given (polygon wins)
	if rawBBox != "" && rawPoly != "" {
		warn = "both bbox and polygon supplied; preferring polygon"
		rawBBox = ""
	}

	var bbox *model.BBox
	if rawBBox != "" {
		bb, err := parseBBOX(rawBBox)
		if err != nil {
			return model.QueryRequest{}, warn, fmt.Errorf("invalid bbox: %w", err)
		}
		bbox = &bb
	}

	var poly *model.Polygon
	if rawPoly != "" {
		p, err := parsePolygon(rawPoly)
		if err != nil {
			return model.QueryRequest{}, warn, fmt.Errorf("invalid polygon: %w", err)
		}
		poly = &p
	}

	if filters != "" && !isSafeCQL(filters) {
		return model.QueryRequest{}, warn, errors.New("invalid or disallowed cql_filter")
	}

	count, err := parseNonNegInt(r, "count")
	if err != nil {
		return model.QueryRequest{}, warn, err
	}
	startIndex, err := parseNonNegInt(r, "startIndex")
	if err != nil {
		return model.QueryRequest{}, warn, err
	}
	if startIndex > 0 && count == 0 {
		return model.QueryRequest{}, warn, errors.New("startIndex requires count")
	}

	return model.QueryRequest{
		Layer:      layer,
		BBox:       bbox,
		Polygon:    poly,
		Filters:    filters,
		Count:      count,
		StartIndex: startIndex,
	}, warn, nil
}

func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 5 {
		return model.BBox{}, errors.New("expected 5 comma-separated values: x1,y1,x2,y2,EPSG:4326")
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

	srid := strings.ToUpper(strings.TrimSpace(parts[4]))
	if srid != "EPSG:4326" {
		return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported at this stage (got %q)", srid)
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

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func parseNonNegInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseBoolParam(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "t", "true", "y", "yes":
		return true
	}
	return false
}

var safeCQLPattern = regexp.MustCompile(`^[\w\s\=\>\<\!\(\)\.\,\'\"\-]+$`)

func isSafeCQL(s string) bool {
	if len(s) > 500 {
		return false
	}
	return safeCQLPattern.MatchString(s)
}

func parsePolygon(raw string) (model.Polygon, error) {
	var tmp struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return model.Polygon{}, fmt.Errorf("parse json: %w", err)
	}
	t := strings.TrimSpace(tmp.Type)
	switch t {
	case "Polygon", "MultiPolygon":
		return model.Polygon{GeoJSON: raw}, nil
	default:
		return model.Polygon{}, fmt.Errorf(`unsupported GeoJSON "type": %q (must be Polygon or MultiPolygon)`, t)
	}
}

// --- body handling ---

// readLayer decodes the request body as a feature collection, with an
// optional CRS override in the named query param.
func readLayer(w http.ResponseWriter, r *http.Request, cfg config.Config, crsParam string) (*vector.Layer, error) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes)
	l, err := vector.ReadGeoJSON(r.Body, "body")
	if err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get(crsParam)); raw != "" {
		d, err := crs.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", crsParam, err)
		}
		l.CRS = d
	}
	return l, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, cfg config.Config, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func collectionLayer(name string, raw json.RawMessage, d crs.Descriptor) (*vector.Layer, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s collection: %w", name, err)
	}
	l := vector.New(name, d)
	l.FC = fc
	return l, nil
}

func sharedCRS(r *http.Request) (crs.Descriptor, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("crs"))
	if raw == "" {
		return crs.EPSG(4326), nil
	}
	d, err := crs.Parse(raw)
	if err != nil {
		return crs.Descriptor{}, fmt.Errorf("invalid crs: %w", err)
	}
	return d, nil
}

func writeLayer(w http.ResponseWriter, logger *slog.Logger, l *vector.Layer) {
	w.Header().Set("Content-Type", "application/geo+json")
	if err := l.WriteGeoJSON(w); err != nil {
		logger.Error("write response", "err", err)
	}
}
