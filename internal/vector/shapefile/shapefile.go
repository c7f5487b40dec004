// Package shapefile reads and writes ESRI shapefiles with their .prj CRS
// sidecar. Attribute values decode as strings, which is what the DBF table
// stores; callers needing numbers convert at the point of use.
package shapefile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/geomconv"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// Read loads a shapefile as a layer. With no explicit columns every DBF
// field is read. A missing .prj sidecar yields a layer with an undefined
// CRS, not an error; the caller finds out when a transform refuses to run.
func Read(path string, columns ...string) (*vector.Layer, error) {
	if len(columns) == 0 {
		var err error
		columns, err = fieldNames(path)
		if err != nil {
			return nil, err
		}
	}

	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("shapefile: open %s: %w", path, err)
	}
	defer dec.Close()

	layer := vector.New(strings.TrimSuffix(baseName(path), ".shp"), readPRJ(path))
	for {
		g, fields, more := dec.DecodeRowFields(columns...)
		if !more {
			break
		}
		og, err := geomconv.FromGeom(g)
		if err != nil {
			return nil, fmt.Errorf("shapefile: row %d: %w", layer.Len(), err)
		}
		f := geojson.NewFeature(og)
		for k, v := range fields {
			f.Properties[k] = v
		}
		layer.Append(f)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("shapefile: decode %s: %w", path, err)
	}
	return layer, nil
}

// Write stores the layer as a shapefile beside its .dbf table, writing a
// .prj sidecar when the CRS has a WKT representation. Point, line and
// polygon layers are supported; a layer must be of one shape kind.
func Write(l *vector.Layer, path string) error {
	shapeType, err := layerShapeType(l)
	if err != nil {
		return err
	}

	w, err := goshp.Create(path, shapeType)
	if err != nil {
		return fmt.Errorf("shapefile: create %s: %w", path, err)
	}

	fields, keys := buildFields(l)
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return fmt.Errorf("shapefile: set fields: %w", err)
	}

	row := 0
	for _, f := range l.FC.Features {
		if f.Geometry == nil {
			continue
		}
		shape, err := toShape(f.Geometry)
		if err != nil {
			w.Close()
			return fmt.Errorf("shapefile: row %d: %w", row, err)
		}
		w.Write(shape)
		for i, k := range keys {
			if v, ok := f.Properties[k]; ok && v != nil {
				if err := w.WriteAttribute(row, i, v); err != nil {
					w.Close()
					return fmt.Errorf("shapefile: row %d attribute %s: %w", row, k, err)
				}
			}
		}
		row++
	}
	w.Close()

	return writePRJ(l.CRS, path)
}

func fieldNames(path string) ([]string, error) {
	r, err := goshp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shapefile: open %s: %w", path, err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.Fields() {
		names = append(names, f.String())
	}
	return names, nil
}

// readPRJ loads the CRS sidecar next to the .shp file.
func readPRJ(path string) crs.Descriptor {
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return crs.Undefined
	}
	return crs.FromWKT(string(data))
}

func writePRJ(d crs.Descriptor, path string) error {
	wkt := d.WKT
	if wkt == "" {
		wkt = wellKnownWKT(d.EPSG)
	}
	if wkt == "" {
		// nothing representable as WKT; the layer loads back as
		// undefined, mirroring data shipped without a sidecar
		return nil
	}
	if err := os.WriteFile(sidecarPath(path), []byte(wkt), 0o644); err != nil {
		return fmt.Errorf("shapefile: write prj sidecar: %w", err)
	}
	return nil
}

func sidecarPath(path string) string {
	return strings.TrimSuffix(path, ".shp") + ".prj"
}

// WKT for the codes that actually show up in exported layers
func wellKnownWKT(epsg int) string {
	switch epsg {
	case 4326:
		return `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`
	case 3857:
		return `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`
	default:
		return ""
	}
}

func layerShapeType(l *vector.Layer) (goshp.ShapeType, error) {
	for _, f := range l.FC.Features {
		switch f.Geometry.(type) {
		case orb.Point:
			return goshp.POINT, nil
		case orb.LineString, orb.MultiLineString:
			return goshp.POLYLINE, nil
		case orb.Polygon, orb.MultiPolygon:
			return goshp.POLYGON, nil
		case nil:
			continue
		default:
			return 0, fmt.Errorf("shapefile: unsupported geometry type %s", f.Geometry.GeoJSONType())
		}
	}
	return 0, fmt.Errorf("shapefile: layer %q has no geometry to derive a shape type from", l.Name)
}

// buildFields derives the DBF schema from the union of attribute keys,
// typing a column numeric when its first occurrence is a number.
func buildFields(l *vector.Layer) ([]goshp.Field, []string) {
	kind := map[string]bool{} // true = numeric
	var keys []string
	for _, f := range l.FC.Features {
		for k, v := range f.Properties {
			if _, seen := kind[k]; seen {
				continue
			}
			switch v.(type) {
			case float64, float32, int, int32, int64:
				kind[k] = true
			default:
				kind[k] = false
			}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fields := make([]goshp.Field, len(keys))
	for i, k := range keys {
		if kind[k] {
			fields[i] = goshp.FloatField(k, 24, 8)
		} else {
			fields[i] = goshp.StringField(k, 64)
		}
	}
	return fields, keys
}

func toShape(g orb.Geometry) (goshp.Shape, error) {
	switch v := g.(type) {
	case orb.Point:
		return &goshp.Point{X: v[0], Y: v[1]}, nil
	case orb.LineString:
		return goshp.NewPolyLine([][]goshp.Point{toShpPoints(v)}), nil
	case orb.MultiLineString:
		parts := make([][]goshp.Point, len(v))
		for i, ls := range v {
			parts[i] = toShpPoints(ls)
		}
		return goshp.NewPolyLine(parts), nil
	case orb.Polygon:
		return (*goshp.Polygon)(goshp.NewPolyLine(polygonParts(v))), nil
	case orb.MultiPolygon:
		var parts [][]goshp.Point
		for _, p := range v {
			parts = append(parts, polygonParts(p)...)
		}
		return (*goshp.Polygon)(goshp.NewPolyLine(parts)), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func toShpPoints(ls orb.LineString) []goshp.Point {
	out := make([]goshp.Point, len(ls))
	for i, p := range ls {
		out[i] = goshp.Point{X: p[0], Y: p[1]}
	}
	return out
}

// polygonParts emits rings in shapefile winding: clockwise outer ring,
// counter-clockwise holes.
func polygonParts(p orb.Polygon) [][]goshp.Point {
	parts := make([][]goshp.Point, 0, len(p))
	for i, r := range p {
		ring := r.Clone()
		outer := i == 0
		if outer && ring.Orientation() == orb.CCW {
			ring.Reverse()
		}
		if !outer && ring.Orientation() == orb.CW {
			ring.Reverse()
		}
		parts = append(parts, toShpPoints(orb.LineString(ring)))
	}
	return parts
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
