// Package crs models coordinate reference system descriptors and coordinate
// transformation between them.
//
// A descriptor can be represented as an EPSG integer code, a PROJ parameter
// string, or a WKT string. Conversions between the representations are lossy
// in one direction only: a PROJ string can always be resolved for a known
// EPSG code, but deriving an EPSG code from WKT may fail at the default
// confidence and require a lowered threshold (see EPSGFromWKT).
package crs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUndefined is returned when an operation needs a source CRS and the
	// layer has none (e.g. a shapefile loaded without its .prj sidecar).
	ErrUndefined = errors.New("crs: undefined coordinate reference system")

	// ErrUnknownEPSG is returned for EPSG codes absent from the registry.
	ErrUnknownEPSG = errors.New("crs: EPSG code not in registry")
)

// Descriptor identifies a coordinate reference system. The zero value is the
// undefined CRS. At most one representation is authoritative; the others are
// derived lazily.
type Descriptor struct {
	EPSG int    // registry code, 0 when unknown
	Proj string // PROJ parameter string
	WKT  string // well-known text, kept verbatim as read from a sidecar
}

// Undefined is the zero descriptor.
var Undefined = Descriptor{}

// FromEPSG builds a descriptor for a registered EPSG code.
func FromEPSG(code int) (Descriptor, error) {
	e, ok := registry[code]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownEPSG, code)
	}
	return Descriptor{EPSG: code, Proj: e.proj}, nil
}

// EPSG builds a descriptor for an EPSG code without requiring it to be
// registered. Resolving an unregistered code to projection parameters
// fails later, at transform time.
func EPSG(code int) Descriptor {
	d := Descriptor{EPSG: code}
	if e, ok := registry[code]; ok {
		d.Proj = e.proj
	}
	return d
}

// FromProj builds a descriptor from a raw PROJ parameter string.
func FromProj(proj string) Descriptor {
	return Descriptor{Proj: strings.TrimSpace(proj)}
}

// FromWKT builds a descriptor from a WKT definition. An EPSG code is derived
// opportunistically at the default confidence; the WKT text is kept either
// way so nothing is lost when the derivation comes up empty.
func FromWKT(wkt string) Descriptor {
	d := Descriptor{WKT: strings.TrimSpace(wkt)}
	if code, ok := EPSGFromWKT(d.WKT, DefaultConfidence); ok {
		d.EPSG = code
		if e, found := registry[code]; found {
			d.Proj = e.proj
		}
	}
	return d
}

// Parse accepts "EPSG:4326", a bare integer code, a "+proj=..." parameter
// string, or a WKT definition.
func Parse(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Undefined, nil
	case strings.HasPrefix(s, "+"):
		return FromProj(s), nil
	case strings.HasPrefix(strings.ToUpper(s), "EPSG:"):
		code, err := strconv.Atoi(strings.TrimSpace(s[5:]))
		if err != nil {
			return Descriptor{}, fmt.Errorf("crs: parse %q: %w", s, err)
		}
		return FromEPSG(code)
	case looksLikeWKT(s):
		return FromWKT(s), nil
	default:
		code, err := strconv.Atoi(s)
		if err != nil {
			return Descriptor{}, fmt.Errorf("crs: unrecognized descriptor %q", s)
		}
		return FromEPSG(code)
	}
}

// Defined reports whether the descriptor names any CRS at all.
func (d Descriptor) Defined() bool {
	return d.EPSG != 0 || d.Proj != "" || d.WKT != ""
}

// ProjString resolves the descriptor to a PROJ parameter string, the only
// representation the projection backend consumes.
func (d Descriptor) ProjString() (string, error) {
	if d.Proj != "" {
		return d.Proj, nil
	}
	if d.EPSG != 0 {
		if e, ok := registry[d.EPSG]; ok {
			return e.proj, nil
		}
		return "", fmt.Errorf("%w: %d", ErrUnknownEPSG, d.EPSG)
	}
	if d.WKT != "" {
		if code, ok := EPSGFromWKT(d.WKT, DefaultConfidence); ok {
			if e, found := registry[code]; found {
				return e.proj, nil
			}
		}
		return "", fmt.Errorf("crs: no PROJ equivalent for WKT definition %q", wktName(d.WKT))
	}
	return "", ErrUndefined
}

// Equal reports whether two descriptors name the same CRS as far as can be
// told. Two undefined descriptors compare equal; a defined and an undefined
// one never do.
func (d Descriptor) Equal(o Descriptor) bool {
	if !d.Defined() && !o.Defined() {
		return true
	}
	if d.Defined() != o.Defined() {
		return false
	}
	if d.EPSG != 0 && o.EPSG != 0 {
		return d.EPSG == o.EPSG
	}
	dp, derr := d.ProjString()
	op, oerr := o.ProjString()
	if derr == nil && oerr == nil {
		return normalizeProj(dp) == normalizeProj(op)
	}
	return strings.EqualFold(d.WKT, o.WKT)
}

func (d Descriptor) String() string {
	switch {
	case d.EPSG != 0:
		return "EPSG:" + strconv.Itoa(d.EPSG)
	case d.Proj != "":
		return d.Proj
	case d.WKT != "":
		return "WKT:" + wktName(d.WKT)
	default:
		return "undefined"
	}
}

// cacheKey is stable across equal descriptors with the same representation.
func (d Descriptor) cacheKey() string {
	if d.EPSG != 0 {
		return "epsg:" + strconv.Itoa(d.EPSG)
	}
	if d.Proj != "" {
		return "proj:" + normalizeProj(d.Proj)
	}
	return "wkt:" + d.WKT
}

func normalizeProj(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "+no_defs" || f == "no_defs" {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func looksLikeWKT(s string) bool {
	u := strings.ToUpper(s)
	for _, kw := range []string{"GEOGCS", "PROJCS", "GEOGCRS", "PROJCRS", "COMPD_CS", "LOCAL_CS"} {
		if strings.HasPrefix(u, kw) {
			return true
		}
	}
	return false
}
