// Package overlay implements set-theoretic combination of two polygonal
// layers. Boundaries are recomputed geometrically by polygon clipping, not
// merely filtered, and an output feature's attributes are the union of the
// contributing pair's attributes.
package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/geomconv"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

type Op string

const (
	Intersection        Op = "intersection"
	Union               Op = "union"
	Difference          Op = "difference"
	SymmetricDifference Op = "symmetric_difference"
	Identity            Op = "identity"
)

var (
	// ErrCRSMismatch: combining layers in different CRSs produces
	// geometrically meaningless output, so it is refused up front.
	ErrCRSMismatch = errors.New("overlay: input layers have different CRS")

	ErrNonPolygonal = errors.New("overlay: layer contains non-polygonal geometry")
)

func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case Intersection, Union, Difference, SymmetricDifference, Identity:
		return Op(s), nil
	default:
		return "", fmt.Errorf("overlay: unknown op %q", s)
	}
}

// below this the clipper output is noise from coincident boundaries
const minArea = 1e-12

// indexedFeature satisfies geom.Geom through the embedded polygon, so it
// can live in the rtree directly while remembering its source feature.
type indexedFeature struct {
	geom.Polygonal
	idx int
}

// Overlay combines base and over under op. Both layers must be polygonal and
// share a CRS; the result is a new layer in the same CRS.
func Overlay(base, over *vector.Layer, op Op) (*vector.Layer, error) {
	if _, err := ParseOp(string(op)); err != nil {
		return nil, err
	}
	if !base.CRS.Equal(over.CRS) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrCRSMismatch, base.CRS, over.CRS)
	}

	basePolys, err := toPolygons(base)
	if err != nil {
		return nil, fmt.Errorf("base layer %q: %w", base.Name, err)
	}
	overPolys, err := toPolygons(over)
	if err != nil {
		return nil, fmt.Errorf("overlay layer %q: %w", over.Name, err)
	}

	overTree := buildTree(overPolys)
	baseTree := buildTree(basePolys)

	out := vector.New(base.Name+"_"+string(op)+"_"+over.Name, base.CRS)
	seen := map[uint64]struct{}{}

	emit := func(p geom.Polygonal, props geojson.Properties, id any) error {
		if p == nil || math.Abs(p.Area()) <= minArea {
			return nil
		}
		g, err := geomconv.FromPolygonal(p)
		if err != nil {
			return err
		}
		if g == nil {
			return nil
		}
		h := vector.GeometryHash(g, 0)
		if _, dup := seen[h]; dup {
			return nil
		}
		seen[h] = struct{}{}
		f := geojson.NewFeature(g)
		f.ID = id
		f.Properties = props
		out.Append(f)
		return nil
	}

	// pieces present in both inputs, attributes merged pairwise
	emitIntersections := func() error {
		for i, bp := range basePolys {
			if bp.Polygonal == nil {
				continue
			}
			for _, s := range overTree.SearchIntersect(bp.Polygonal.Bounds()) {
				of := s.(*indexedFeature)
				isect := bp.Polygonal.Intersection(of.Polygonal)
				props := mergeProperties(
					base.FC.Features[bp.idx].Properties,
					over.FC.Features[of.idx].Properties,
				)
				if err := emit(isect, props, nil); err != nil {
					return fmt.Errorf("base %d x overlay %d: %w", i, of.idx, err)
				}
			}
		}
		return nil
	}

	// parts of the side layer not covered by the other layer
	emitResiduals := func(side []indexedFeature, sideLayer *vector.Layer, otherTree *rtree.Rtree) error {
		for i, sp := range side {
			if sp.Polygonal == nil {
				continue
			}
			residual := sp.Polygonal
			for _, s := range otherTree.SearchIntersect(sp.Polygonal.Bounds()) {
				residual = residual.Difference(s.(*indexedFeature).Polygonal)
				if residual == nil {
					break
				}
			}
			f := sideLayer.FC.Features[sp.idx]
			if err := emit(residual, f.Properties.Clone(), f.ID); err != nil {
				return fmt.Errorf("residual %d: %w", i, err)
			}
		}
		return nil
	}

	switch op {
	case Intersection:
		err = emitIntersections()
	case Difference:
		err = emitResiduals(basePolys, base, overTree)
	case Identity:
		if err = emitIntersections(); err == nil {
			err = emitResiduals(basePolys, base, overTree)
		}
	case SymmetricDifference:
		if err = emitResiduals(basePolys, base, overTree); err == nil {
			err = emitResiduals(overPolys, over, baseTree)
		}
	case Union:
		if err = emitIntersections(); err == nil {
			if err = emitResiduals(basePolys, base, overTree); err == nil {
				err = emitResiduals(overPolys, over, baseTree)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toPolygons(l *vector.Layer) ([]indexedFeature, error) {
	out := make([]indexedFeature, 0, l.Len())
	for i, f := range l.FC.Features {
		if f.Geometry == nil {
			continue
		}
		p, err := geomconv.ToPolygonal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d is %s", ErrNonPolygonal, i, f.Geometry.GeoJSONType())
		}
		out = append(out, indexedFeature{Polygonal: p, idx: i})
	}
	return out, nil
}

func buildTree(features []indexedFeature) *rtree.Rtree {
	t := rtree.NewTree(25, 50)
	for i := range features {
		if features[i].Polygonal == nil {
			continue
		}
		t.Insert(&features[i])
	}
	return t
}

// mergeProperties unions the two attribute maps. Base wins the original
// name; a clashing overlay attribute gets a "_2" suffix so neither value is
// lost.
func mergeProperties(base, over geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if _, clash := out[k]; clash {
			out[k+"_2"] = v
			continue
		}
		out[k] = v
	}
	return out
}
