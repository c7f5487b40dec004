package vector

import (
	"fmt"

	"github.com/mohammed-shakir/geoflow/internal/crs"
)

// MergeOptions controls duplicate suppression when concatenating
// collections, e.g. pages fetched from a WFS endpoint that repeat boundary
// features.
type MergeOptions struct {
	DedupByID       bool
	DedupByGeometry bool
	// HashPrecision is the coordinate quantization for geometry dedup;
	// zero means DefaultHashPrecision.
	HashPrecision int
}

// Merge concatenates layers into one. All inputs must share a CRS; the
// result carries it. Feature order is preserved, first occurrence wins on
// duplicates.
func Merge(name string, parts []*Layer, opt MergeOptions) (*Layer, error) {
	if len(parts) == 0 {
		return New(name, crs.Undefined), nil
	}

	ref := parts[0].CRS
	for i, p := range parts[1:] {
		if !p.CRS.Equal(ref) {
			return nil, fmt.Errorf("vector: merge part %d CRS %s differs from %s", i+1, p.CRS, ref)
		}
	}

	out := New(name, ref)
	seenID := map[string]struct{}{}
	seenGeom := map[uint64]struct{}{}

	for _, p := range parts {
		for _, f := range p.FC.Features {
			if opt.DedupByID && f.ID != nil {
				key := canonicalIDKey(f.ID)
				if key != "" {
					if _, dup := seenID[key]; dup {
						continue
					}
					seenID[key] = struct{}{}
				}
			}
			if opt.DedupByGeometry {
				h := GeometryHash(f.Geometry, opt.HashPrecision)
				if _, dup := seenGeom[h]; dup {
					continue
				}
				seenGeom[h] = struct{}{}
			}
			out.Append(f)
		}
	}
	return out, nil
}

// canonicalIDKey namespaces string and numeric ids so "1" and 1 stay
// distinct.
func canonicalIDKey(id any) string {
	switch t := id.(type) {
	case string:
		if t == "" {
			return ""
		}
		return "s:" + t
	case float64:
		return fmt.Sprintf("n:%g", t)
	case int:
		return fmt.Sprintf("n:%d", t)
	case int64:
		return fmt.Sprintf("n:%d", t)
	default:
		return fmt.Sprintf("o:%v", t)
	}
}
