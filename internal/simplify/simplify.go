// Package simplify reduces geometry vertex counts within a tolerance
// distance expressed in the layer CRS's linear unit. Topology is not
// preserved: an aggressive tolerance can introduce self-intersections or
// collapse shapes outright.
package simplify

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	orbsimplify "github.com/paulmach/orb/simplify"

	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// Geometry returns a simplified copy of g using Douglas-Peucker. Tolerance 0
// returns an equivalent geometry unchanged.
func Geometry(g orb.Geometry, tolerance float64) (orb.Geometry, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("simplify: negative tolerance %g", tolerance)
	}
	if g == nil {
		return nil, nil
	}
	cloned := orb.Clone(g)
	if tolerance == 0 {
		return cloned, nil
	}
	// the simplifier mutates in place, hence the clone above
	return orbsimplify.DouglasPeucker(tolerance).Simplify(cloned), nil
}

// Layer simplifies every feature geometry, keeping ids and attributes.
func Layer(l *vector.Layer, tolerance float64) (*vector.Layer, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("simplify: negative tolerance %g", tolerance)
	}
	out := vector.New(l.Name, l.CRS)
	for i, f := range l.FC.Features {
		nf := geojson.NewFeature(nil)
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		if f.Geometry != nil {
			g, err := Geometry(f.Geometry, tolerance)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			nf.Geometry = g
		}
		out.Append(nf)
	}
	return out, nil
}
