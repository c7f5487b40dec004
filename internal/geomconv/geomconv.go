// Package geomconv bridges between the orb geometry model used for GeoJSON
// I/O and the ctessum/geom model the polygon clipping engine operates on.
package geomconv

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
)

// ToGeom converts an orb geometry to its ctessum/geom equivalent.
func ToGeom(g orb.Geometry) (geom.Geom, error) {
	switch v := g.(type) {
	case orb.Point:
		return geom.Point{X: v[0], Y: v[1]}, nil
	case orb.MultiPoint:
		out := make(geom.MultiPoint, len(v))
		for i, p := range v {
			out[i] = geom.Point{X: p[0], Y: p[1]}
		}
		return out, nil
	case orb.LineString:
		return toGeomLine(v), nil
	case orb.MultiLineString:
		out := make(geom.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = toGeomLine(ls)
		}
		return out, nil
	case orb.Ring:
		return geom.Polygon{toGeomPath(v)}, nil
	case orb.Polygon:
		return toGeomPolygon(v), nil
	case orb.MultiPolygon:
		out := make(geom.MultiPolygon, len(v))
		for i, p := range v {
			out[i] = toGeomPolygon(p)
		}
		return out, nil
	case orb.Collection:
		out := make(geom.GeometryCollection, len(v))
		for i, c := range v {
			gc, err := ToGeom(c)
			if err != nil {
				return nil, err
			}
			out[i] = gc
		}
		return out, nil
	case orb.Bound:
		return toGeomPolygon(v.ToPolygon()), nil
	default:
		return nil, fmt.Errorf("geomconv: unsupported orb type %T", g)
	}
}

// ToPolygonal converts g and asserts the result is polygonal, which the
// overlay operations require.
func ToPolygonal(g orb.Geometry) (geom.Polygonal, error) {
	gg, err := ToGeom(g)
	if err != nil {
		return nil, err
	}
	p, ok := gg.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("geomconv: %s is not polygonal", g.GeoJSONType())
	}
	return p, nil
}

// FromGeom converts a ctessum/geom geometry back to orb.
func FromGeom(g geom.Geom) (orb.Geometry, error) {
	switch v := g.(type) {
	case geom.Point:
		return orb.Point{v.X, v.Y}, nil
	case geom.MultiPoint:
		out := make(orb.MultiPoint, len(v))
		for i, p := range v {
			out[i] = orb.Point{p.X, p.Y}
		}
		return out, nil
	case geom.LineString:
		return fromGeomLine(v), nil
	case geom.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = fromGeomLine(ls)
		}
		return out, nil
	case geom.Polygon:
		return fromGeomPolygon(v), nil
	case geom.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			op := fromGeomPolygon(p)
			if len(op) > 0 {
				out = append(out, op)
			}
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return out, nil
	case geom.GeometryCollection:
		out := make(orb.Collection, len(v))
		for i, c := range v {
			oc, err := FromGeom(c)
			if err != nil {
				return nil, err
			}
			out[i] = oc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("geomconv: unsupported geom type %T", g)
	}
}

// FromPolygonal flattens a polygonal clipping result into orb. Empty results
// return nil.
func FromPolygonal(p geom.Polygonal) (orb.Geometry, error) {
	if p == nil {
		return nil, nil
	}
	polys := p.Polygons()
	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, poly := range polys {
		op := fromGeomPolygon(poly)
		if len(op) > 0 {
			mp = append(mp, op)
		}
	}
	switch len(mp) {
	case 0:
		return nil, nil
	case 1:
		return mp[0], nil
	default:
		return mp, nil
	}
}

func toGeomLine(ls orb.LineString) geom.LineString {
	out := make(geom.LineString, len(ls))
	for i, p := range ls {
		out[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return out
}

func toGeomPath(r orb.Ring) []geom.Point {
	out := make([]geom.Point, len(r))
	for i, p := range r {
		out[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return out
}

func toGeomPolygon(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, r := range p {
		out[i] = toGeomPath(r)
	}
	return out
}

func fromGeomLine(ls geom.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

func fromGeomPolygon(p geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	for _, ring := range p {
		if len(ring) == 0 {
			continue
		}
		r := make(orb.Ring, len(ring), len(ring)+1)
		for i, pt := range ring {
			r[i] = orb.Point{pt.X, pt.Y}
		}
		// clipping output leaves rings open; GeoJSON wants them closed
		if r[0] != r[len(r)-1] {
			r = append(r, r[0])
		}
		out = append(out, r)
	}
	return out
}
