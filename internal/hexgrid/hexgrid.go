// Package hexgrid tessellates areas of interest into H3 cells and turns
// them back into vector layers. Inputs are lon/lat degrees (EPSG:4326).
package hexgrid

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// ErrNotGeographic is returned for layers whose CRS is a defined system
// other than EPSG:4326.
var ErrNotGeographic = errors.New("hexgrid: layer CRS must be EPSG:4326")

// CellsForBound returns the sorted ids of the cells covering a lon/lat
// bounding box at the given resolution.
func CellsForBound(b orb.Bound, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: b.Min[1], Lng: b.Min[0]},
		{Lat: b.Min[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Min[0]},
	}
	return fillOne(outer, nil, res)
}

// CellsForGeometry returns the sorted cell ids covering a Polygon or
// MultiPolygon.
func CellsForGeometry(g orb.Geometry, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	switch v := g.(type) {
	case orb.Polygon:
		outer, holes, err := splitRings(v)
		if err != nil {
			return nil, err
		}
		return fillOne(outer, holes, res)
	case orb.MultiPolygon:
		seen := make(map[string]struct{})
		var out []string
		for pi, p := range v {
			outer, holes, err := splitRings(p)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", pi, err)
			}
			cells, err := fillOne(outer, holes, res)
			if err != nil {
				return nil, err
			}
			for _, c := range cells {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					out = append(out, c)
				}
			}
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("hexgrid: unsupported geometry type %s", g.GeoJSONType())
	}
}

// Layer builds a vector layer of hexagon polygons from cell ids. Each
// feature carries the id as both its feature id and an "h3" property.
func Layer(name string, cells []string) (*vector.Layer, error) {
	l := vector.New(name, crs.EPSG(4326))
	for _, id := range cells {
		var c h3.Cell
		if err := c.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("hexgrid: parse cell %q: %w", id, err)
		}
		if !c.IsValid() {
			return nil, fmt.Errorf("hexgrid: invalid cell %q", id)
		}
		f := geojson.NewFeature(cellPolygon(c))
		f.ID = id
		f.Properties["h3"] = id
		f.Properties["resolution"] = c.Resolution()
		l.Append(f)
	}
	return l, nil
}

// BinPoints counts the point features of a layer per covering cell,
// returning a hexagon layer with a "count" property. Cells without any
// point are absent. The layer must be geographic; an undefined CRS is
// taken as lon/lat on trust.
func BinPoints(l *vector.Layer, res int) (*vector.Layer, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if l.CRS.Defined() && l.CRS.EPSG != 4326 {
		return nil, ErrNotGeographic
	}

	counts := make(map[string]int)
	for _, f := range l.FC.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		c, err := h3.LatLngToCell(h3.LatLng{Lat: p[1], Lng: p[0]}, res)
		if err != nil {
			return nil, fmt.Errorf("hexgrid: bin point %v: %w", p, err)
		}
		counts[c.String()]++
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out, err := Layer(l.Name+"_hexbin", ids)
	if err != nil {
		return nil, err
	}
	for _, f := range out.FC.Features {
		f.Properties["count"] = counts[f.ID.(string)]
	}
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("hexgrid: invalid resolution %d (must be 0..15)", res)
	}
	return nil
}

// splitRings converts polygon rings to h3 loops, dropping the duplicated
// closing vertex GeoJSON rings carry.
func splitRings(p orb.Polygon) (h3.GeoLoop, []h3.GeoLoop, error) {
	if len(p) == 0 {
		return nil, nil, errors.New("empty polygon")
	}
	outer := toLoop(p[0])
	if len(outer) < 3 {
		return nil, nil, errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(p); i++ {
		h := toLoop(p[i])
		if len(h) < 3 {
			return nil, nil, fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}
	return outer, holes, nil
}

func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 && loop[0] == loop[len(loop)-1] {
		loop = loop[:len(loop)-1]
	}
	return loop
}

func fillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]string, error) {
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
	if err != nil {
		return nil, fmt.Errorf("hexgrid: polyfill: %w", err)
	}
	seen := make(map[string]struct{}, len(cells))
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// cellPolygon renders a cell boundary as a closed GeoJSON ring.
func cellPolygon(c h3.Cell) orb.Polygon {
	boundary, err := c.Boundary()
	if err != nil || len(boundary) == 0 {
		return orb.Polygon{}
	}
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, ll := range boundary {
		ring = append(ring, orb.Point{ll.Lng, ll.Lat})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
