package crs

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Transformer reprojects geometries between CRSs. Parsing a PROJ pipeline is
// not free, so resolved transforms are memoized in an LRU keyed by the
// source/target pair. Safe for concurrent use.
type Transformer struct {
	cache *lru.Cache[string, proj.Transformer]
}

const defaultCacheSize = 64

func NewTransformer(cacheSize int) (*Transformer, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	c, err := lru.New[string, proj.Transformer](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("crs: transform cache: %w", err)
	}
	return &Transformer{cache: c}, nil
}

func (t *Transformer) transform(src, dst Descriptor) (proj.Transformer, error) {
	if !src.Defined() {
		return nil, ErrUndefined
	}
	if !dst.Defined() {
		return nil, fmt.Errorf("crs: target is undefined")
	}

	key := src.cacheKey() + "|" + dst.cacheKey()
	if tr, ok := t.cache.Get(key); ok {
		return tr, nil
	}

	srcProj, err := src.ProjString()
	if err != nil {
		return nil, fmt.Errorf("crs: resolve source %s: %w", src, err)
	}
	dstProj, err := dst.ProjString()
	if err != nil {
		return nil, fmt.Errorf("crs: resolve target %s: %w", dst, err)
	}

	srcSR, err := proj.Parse(srcProj)
	if err != nil {
		return nil, fmt.Errorf("crs: parse source %s: %w", src, err)
	}
	dstSR, err := proj.Parse(dstProj)
	if err != nil {
		return nil, fmt.Errorf("crs: parse target %s: %w", dst, err)
	}

	tr, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("crs: build transform %s -> %s: %w", src, dst, err)
	}
	t.cache.Add(key, tr)
	return tr, nil
}

// Point transforms a single coordinate pair.
func (t *Transformer) Point(p orb.Point, src, dst Descriptor) (orb.Point, error) {
	tr, err := t.transform(src, dst)
	if err != nil {
		return orb.Point{}, err
	}
	return applyPoint(p, tr)
}

// Geometry returns a transformed copy; the input is never mutated.
func (t *Transformer) Geometry(g orb.Geometry, src, dst Descriptor) (orb.Geometry, error) {
	tr, err := t.transform(src, dst)
	if err != nil {
		return nil, err
	}
	return applyGeometry(g, tr)
}

// Collection transforms every feature geometry in fc, producing a new
// collection with properties and ids carried over untouched.
func (t *Transformer) Collection(fc *geojson.FeatureCollection, src, dst Descriptor) (*geojson.FeatureCollection, error) {
	tr, err := t.transform(src, dst)
	if err != nil {
		return nil, err
	}
	out := geojson.NewFeatureCollection()
	for i, f := range fc.Features {
		nf := geojson.NewFeature(nil)
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		if f.Geometry != nil {
			g, err := applyGeometry(f.Geometry, tr)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			nf.Geometry = g
		}
		out.Append(nf)
	}
	return out, nil
}

func applyPoint(p orb.Point, tr proj.Transformer) (orb.Point, error) {
	x, y, err := tr(p[0], p[1])
	if err != nil {
		return orb.Point{}, fmt.Errorf("transform point (%g, %g): %w", p[0], p[1], err)
	}
	return orb.Point{x, y}, nil
}

func applyLine(ls orb.LineString, tr proj.Transformer) (orb.LineString, error) {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		np, err := applyPoint(p, tr)
		if err != nil {
			return nil, err
		}
		out[i] = np
	}
	return out, nil
}

func applyGeometry(g orb.Geometry, tr proj.Transformer) (orb.Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return applyPoint(v, tr)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(v))
		for i, p := range v {
			np, err := applyPoint(p, tr)
			if err != nil {
				return nil, err
			}
			out[i] = np
		}
		return out, nil
	case orb.LineString:
		return applyLine(v, tr)
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			nls, err := applyLine(ls, tr)
			if err != nil {
				return nil, err
			}
			out[i] = nls
		}
		return out, nil
	case orb.Ring:
		ls, err := applyLine(orb.LineString(v), tr)
		if err != nil {
			return nil, err
		}
		return orb.Ring(ls), nil
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			nr, err := applyGeometry(r, tr)
			if err != nil {
				return nil, err
			}
			out[i] = nr.(orb.Ring)
		}
		return out, nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			np, err := applyGeometry(p, tr)
			if err != nil {
				return nil, err
			}
			out[i] = np.(orb.Polygon)
		}
		return out, nil
	case orb.Collection:
		out := make(orb.Collection, len(v))
		for i, c := range v {
			nc, err := applyGeometry(c, tr)
			if err != nil {
				return nil, err
			}
			out[i] = nc
		}
		return out, nil
	case orb.Bound:
		// corners can swap under reprojection, so rebuild the bound from
		// all four transformed corners
		corners := orb.MultiPoint{
			v.Min,
			{v.Max[0], v.Min[1]},
			v.Max,
			{v.Min[0], v.Max[1]},
		}
		ng, err := applyGeometry(corners, tr)
		if err != nil {
			return nil, err
		}
		return ng.Bound(), nil
	default:
		return nil, fmt.Errorf("transform: unsupported geometry type %T", g)
	}
}
