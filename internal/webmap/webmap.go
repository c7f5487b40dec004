// Package webmap renders layers into a self-contained Leaflet HTML page.
// All styling decisions happen server-side; the page itself only draws
// what it is given. Layers must be lon/lat (EPSG:4326); an undefined CRS
// is accepted on the assumption that the data already is.
package webmap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// ErrNotGeographic is returned for layers in a defined CRS other than
// EPSG:4326.
var ErrNotGeographic = errors.New("webmap: layer CRS must be EPSG:4326")

// Style controls how vector features draw.
type Style struct {
	Color       string  // stroke color, default "#3388ff"
	Weight      int     // stroke width in pixels
	FillColor   string  // defaults to Color
	FillOpacity float64 // 0..1
}

// LayerOptions configures a GeoJSON overlay.
type LayerOptions struct {
	// Tooltip lists the attributes shown on hover, in order.
	Tooltip []string
	// Cluster groups point markers with Leaflet.markercluster.
	Cluster bool
	Style   *Style
	// Show adds the layer to the map immediately; hidden layers stay in
	// the layers control only.
	Show bool
}

// ChoroplethOptions configures a graduated-color polygon overlay.
type ChoroplethOptions struct {
	// Attribute is the numeric property driving the color.
	Attribute string
	// Classes is the number of equal-interval bins, default 5.
	Classes int
	// Ramp is a list of CSS colors from low to high; defaults to a
	// yellow-to-red gradient. Must have at least Classes entries when
	// set.
	Ramp    []string
	Tooltip []string
}

// HeatmapOptions configures a Leaflet.heat overlay. Non-point features
// contribute their centroid.
type HeatmapOptions struct {
	// WeightAttribute scales each point; missing or non-numeric values
	// count as 1.
	WeightAttribute string
	Radius          int // pixels, default 25
}

// Map accumulates overlays and renders them as one HTML page.
type Map struct {
	Title    string
	TileURL  string
	Attrib   string
	overlays []overlay
	images   []imageOverlay
	bound    orb.Bound
	hasBound bool
}

type overlay struct {
	Name    string
	Kind    string // "geojson", "cluster", "heatmap"
	Data    template.JS
	Tooltip []string
	Style   Style
	Radius  int
	Show    bool
}

type imageOverlay struct {
	Name    string
	DataURI template.URL
	Bounds  [2][2]float64 // [[south, west], [north, east]]
	Opacity float64
}

// New builds an empty map with OpenStreetMap base tiles.
func New(title string) *Map {
	return &Map{
		Title:   title,
		TileURL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attrib:  "&copy; OpenStreetMap contributors",
	}
}

// AddLayer adds a plain or clustered GeoJSON overlay.
func (m *Map) AddLayer(l *vector.Layer, opts LayerOptions) error {
	if err := checkCRS(l); err != nil {
		return err
	}
	data, err := fcJSON(l.FC)
	if err != nil {
		return err
	}
	kind := "geojson"
	if opts.Cluster {
		kind = "cluster"
	}
	style := Style{Color: "#3388ff", Weight: 2, FillOpacity: 0.2}
	if opts.Style != nil {
		style = *opts.Style
		if style.Color == "" {
			style.Color = "#3388ff"
		}
		if style.Weight == 0 {
			style.Weight = 2
		}
	}
	if style.FillColor == "" {
		style.FillColor = style.Color
	}
	m.overlays = append(m.overlays, overlay{
		Name:    l.Name,
		Kind:    kind,
		Data:    data,
		Tooltip: opts.Tooltip,
		Style:   style,
		Show:    opts.Show,
	})
	m.extend(l.Bound())
	return nil
}

// AddChoropleth colors each feature by its attribute value using
// equal-interval classification, writing the color into a __fill
// property the page styles from.
func (m *Map) AddChoropleth(l *vector.Layer, opts ChoroplethOptions) error {
	if err := checkCRS(l); err != nil {
		return err
	}
	if opts.Attribute == "" {
		return errors.New("webmap: choropleth needs an attribute")
	}
	classes := opts.Classes
	if classes <= 0 {
		classes = 5
	}
	ramp := opts.Ramp
	if len(ramp) == 0 {
		ramp = []string{"#ffffb2", "#fecc5c", "#fd8d3c", "#f03b20", "#bd0026"}
	}
	if len(ramp) < classes {
		return fmt.Errorf("webmap: ramp has %d colors, need %d", len(ramp), classes)
	}

	var vals []float64
	for _, f := range l.FC.Features {
		if v, ok := numericProp(f, opts.Attribute); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return fmt.Errorf("webmap: attribute %q has no numeric values", opts.Attribute)
	}
	sort.Float64s(vals)
	lo, hi := vals[0], vals[len(vals)-1]
	if hi <= lo {
		hi = lo + 1
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range l.FC.Features {
		nf := geojson.NewFeature(orb.Clone(f.Geometry))
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		fill := "#cccccc" // features without the attribute
		if v, ok := numericProp(f, opts.Attribute); ok {
			bin := int((v - lo) / (hi - lo) * float64(classes))
			if bin >= classes {
				bin = classes - 1
			}
			fill = ramp[bin]
		}
		nf.Properties["__fill"] = fill
		fc.Append(nf)
	}

	data, err := fcJSON(fc)
	if err != nil {
		return err
	}
	m.overlays = append(m.overlays, overlay{
		Name:    l.Name,
		Kind:    "choropleth",
		Data:    data,
		Tooltip: opts.Tooltip,
		Style:   Style{Color: "#555555", Weight: 1, FillOpacity: 0.7},
		Show:    true,
	})
	m.extend(l.Bound())
	return nil
}

// AddHeatmap turns a layer into [lat, lng, weight] triples for
// Leaflet.heat.
func (m *Map) AddHeatmap(l *vector.Layer, opts HeatmapOptions) error {
	if err := checkCRS(l); err != nil {
		return err
	}
	radius := opts.Radius
	if radius <= 0 {
		radius = 25
	}

	triples := make([][3]float64, 0, l.Len())
	for _, f := range l.FC.Features {
		if f.Geometry == nil {
			continue
		}
		var p orb.Point
		if pt, ok := f.Geometry.(orb.Point); ok {
			p = pt
		} else {
			p, _ = planar.CentroidArea(f.Geometry)
		}
		w := 1.0
		if opts.WeightAttribute != "" {
			if v, ok := numericProp(f, opts.WeightAttribute); ok {
				w = v
			}
		}
		triples = append(triples, [3]float64{p[1], p[0], w})
	}
	if len(triples) == 0 {
		return errors.New("webmap: heatmap layer has no geometries")
	}

	raw, err := json.Marshal(triples)
	if err != nil {
		return fmt.Errorf("webmap: marshal heat points: %w", err)
	}
	m.overlays = append(m.overlays, overlay{
		Name:   l.Name,
		Kind:   "heatmap",
		Data:   template.JS(raw),
		Radius: radius,
		Show:   true,
	})
	m.extend(l.Bound())
	return nil
}

// AddImageOverlay drapes a PNG over a lon/lat bound, embedded as a data
// URI so the page stays self-contained.
func (m *Map) AddImageOverlay(name string, pngData []byte, bound orb.Bound, opacity float64) {
	if opacity <= 0 || opacity > 1 {
		opacity = 0.8
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
	m.images = append(m.images, imageOverlay{
		Name:    name,
		DataURI: template.URL(uri),
		Bounds: [2][2]float64{
			{bound.Min[1], bound.Min[0]},
			{bound.Max[1], bound.Max[0]},
		},
		Opacity: opacity,
	})
	m.extend(bound)
}

// Render writes the HTML page.
func (m *Map) Render(w io.Writer) error {
	needCluster, needHeat := false, false
	for _, o := range m.overlays {
		switch o.Kind {
		case "cluster":
			needCluster = true
		case "heatmap":
			needHeat = true
		}
	}

	bounds := [2][2]float64{{57.0, 11.0}, {58.0, 12.0}}
	if m.hasBound {
		bounds = [2][2]float64{
			{m.bound.Min[1], m.bound.Min[0]},
			{m.bound.Max[1], m.bound.Max[0]},
		}
	}

	return pageTemplate.Execute(w, pageData{
		Title:       m.Title,
		TileURL:     m.TileURL,
		Attrib:      m.Attrib,
		Overlays:    m.overlays,
		Images:      m.images,
		Bounds:      bounds,
		NeedCluster: needCluster,
		NeedHeat:    needHeat,
	})
}

// RenderFile writes the page to disk.
func (m *Map) RenderFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("webmap: create %s: %w", path, err)
	}
	if err := m.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (m *Map) extend(b orb.Bound) {
	if !m.hasBound {
		m.bound = b
		m.hasBound = true
		return
	}
	m.bound = m.bound.Union(b)
}

func checkCRS(l *vector.Layer) error {
	if l.CRS.Defined() && l.CRS.EPSG != 4326 {
		return ErrNotGeographic
	}
	return nil
}

func fcJSON(fc *geojson.FeatureCollection) (template.JS, error) {
	raw, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("webmap: marshal layer: %w", err)
	}
	return template.JS(raw), nil
}

func numericProp(f *geojson.Feature, key string) (float64, bool) {
	switch v := f.Properties[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		fv, err := v.Float64()
		return fv, err == nil
	default:
		return math.NaN(), false
	}
}
