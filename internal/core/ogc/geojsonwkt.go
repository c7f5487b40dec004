package ogc

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// GeoJSONToWKT renders a GeoJSON Polygon or MultiPolygon as WKT for a CQL
// INTERSECTS clause. Other geometry types make no sense as an area filter
// and are rejected.
func GeoJSONToWKT(raw string) (string, error) {
	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("parse geojson: %w", err)
	}
	switch v := g.Geometry().(type) {
	case orb.Polygon:
		if err := checkRings(v); err != nil {
			return "", err
		}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return "", errors.New("empty multipolygon")
		}
		for _, p := range v {
			if err := checkRings(p); err != nil {
				return "", err
			}
		}
	default:
		return "", fmt.Errorf("unsupported type %q", g.Type)
	}
	return wkt.MarshalString(g.Geometry()), nil
}

func checkRings(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("empty polygon")
	}
	for _, r := range p {
		if len(r) < 4 {
			return errors.New("polygon ring has <4 points")
		}
	}
	return nil
}
