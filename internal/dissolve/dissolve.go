// Package dissolve aggregates features sharing an attribute value into one
// merged geometry per distinct value.
package dissolve

import (
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/geomconv"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// Options controls how rows without the grouping attribute are treated:
// grouped together under the null group (default) or dropped.
type Options struct {
	DropNull bool
}

type group struct {
	key      string
	value    any
	features []*geojson.Feature
}

// Dissolve groups l by attribute `by` and unions each group's geometry. The
// grouping value is promoted to the feature id; remaining attributes keep the
// group's first row's values. Output rows are ordered by key for
// determinism, with the null group last.
func Dissolve(l *vector.Layer, by string, opts Options) (*vector.Layer, error) {
	if by == "" {
		return nil, fmt.Errorf("dissolve: empty grouping attribute")
	}

	groups := map[string]*group{}
	var order []string
	for _, f := range l.FC.Features {
		v, ok := f.Properties[by]
		if !ok || v == nil {
			if opts.DropNull {
				continue
			}
			v = nil
		}
		key := groupKey(v)
		g, exists := groups[key]
		if !exists {
			g = &group{key: key, value: v}
			groups[key] = g
			order = append(order, key)
		}
		g.features = append(g.features, f)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if (groups[a].value == nil) != (groups[b].value == nil) {
			return groups[b].value == nil
		}
		return a < b
	})

	out := vector.New(l.Name+"_by_"+by, l.CRS)
	for _, key := range order {
		g := groups[key]
		merged, err := unionGeometries(g.features)
		if err != nil {
			return nil, fmt.Errorf("dissolve group %q: %w", key, err)
		}

		f := geojson.NewFeature(merged)
		f.ID = g.value
		f.Properties[by] = g.value
		// aggfunc "first": remaining attributes come from the first row
		for k, v := range g.features[0].Properties {
			if k == by {
				continue
			}
			f.Properties[k] = v
		}
		out.Append(f)
	}
	return out, nil
}

func groupKey(v any) string {
	if v == nil {
		return "\x00null"
	}
	switch t := v.(type) {
	case string:
		return "s:" + t
	case float64:
		return fmt.Sprintf("n:%g", t)
	case int:
		return fmt.Sprintf("n:%d", t)
	case bool:
		return fmt.Sprintf("b:%v", t)
	default:
		return fmt.Sprintf("o:%v", t)
	}
}

// unionGeometries merges member geometries. Polygonal members are unioned by
// the clipper; points and lines are gathered into their multi-part
// counterparts; mixed kinds fall back to a geometry collection.
func unionGeometries(features []*geojson.Feature) (orb.Geometry, error) {
	var geoms []orb.Geometry
	for _, f := range features {
		if f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		}
	}
	if len(geoms) == 0 {
		return nil, nil
	}
	if len(geoms) == 1 {
		return orb.Clone(geoms[0]), nil
	}

	if allPolygonal(geoms) {
		var acc geom.Polygonal
		for _, g := range geoms {
			p, err := geomconv.ToPolygonal(g)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				acc = p
				continue
			}
			acc = acc.Union(p)
		}
		return geomconv.FromPolygonal(acc)
	}

	if allOfType(geoms, "Point", "MultiPoint") {
		var mp orb.MultiPoint
		for _, g := range geoms {
			switch v := g.(type) {
			case orb.Point:
				mp = append(mp, v)
			case orb.MultiPoint:
				mp = append(mp, v...)
			}
		}
		return mp, nil
	}

	if allOfType(geoms, "LineString", "MultiLineString") {
		var mls orb.MultiLineString
		for _, g := range geoms {
			switch v := g.(type) {
			case orb.LineString:
				mls = append(mls, v.Clone())
			case orb.MultiLineString:
				mls = append(mls, v.Clone()...)
			}
		}
		return mls, nil
	}

	var c orb.Collection
	for _, g := range geoms {
		c = append(c, orb.Clone(g))
	}
	return c, nil
}

func allPolygonal(geoms []orb.Geometry) bool {
	for _, g := range geoms {
		switch g.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		default:
			return false
		}
	}
	return true
}

func allOfType(geoms []orb.Geometry, types ...string) bool {
	for _, g := range geoms {
		ok := false
		for _, t := range types {
			if g.GeoJSONType() == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
