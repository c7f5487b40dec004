package vector

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
)

// DefaultHashPrecision is the coordinate quantization used for geometry
// identity, in decimal places. 9 places is ~0.1mm at the equator in degrees,
// tight enough that distinct geometries never collide in practice while
// absorbing float noise from serialization round trips.
const DefaultHashPrecision = 9

// GeometryHash computes a stable identity hash of a geometry with
// coordinates quantized to the given number of decimal places. Used to
// suppress duplicate features when merging and to deduplicate overlay
// output.
func GeometryHash(g orb.Geometry, precision int) uint64 {
	if precision <= 0 {
		precision = DefaultHashPrecision
	}
	d := xxhash.New()
	if g == nil {
		_, _ = d.WriteString("null")
		return d.Sum64()
	}
	hashGeometry(d, g, math.Pow(10, float64(precision)))
	return d.Sum64()
}

func hashGeometry(d *xxhash.Digest, g orb.Geometry, scale float64) {
	_, _ = d.WriteString(g.GeoJSONType())
	switch v := g.(type) {
	case orb.Point:
		hashPoint(d, v, scale)
	case orb.MultiPoint:
		for _, p := range v {
			hashPoint(d, p, scale)
		}
	case orb.LineString:
		for _, p := range v {
			hashPoint(d, p, scale)
		}
	case orb.MultiLineString:
		for _, ls := range v {
			hashGeometry(d, ls, scale)
		}
	case orb.Ring:
		for _, p := range v {
			hashPoint(d, p, scale)
		}
	case orb.Polygon:
		for _, r := range v {
			hashGeometry(d, r, scale)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			hashGeometry(d, p, scale)
		}
	case orb.Collection:
		for _, c := range v {
			hashGeometry(d, c, scale)
		}
	case orb.Bound:
		hashPoint(d, v.Min, scale)
		hashPoint(d, v.Max, scale)
	}
}

func hashPoint(d *xxhash.Digest, p orb.Point, scale float64) {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(int64(math.Round(p[0]*scale))))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(math.Round(p[1]*scale))))
	_, _ = d.Write(buf[:])
}
