package crs

import (
	"regexp"
	"strconv"
	"strings"
)

// Confidence levels for EPSG derivation from WKT. An explicit top-level
// AUTHORITY clause identifies the CRS exactly; a bare name match against the
// registry is a guess and only accepted when the caller lowers the bar.
// Deriving a code can legitimately fail: WKT can describe CRSs with no
// registered EPSG equivalent at all.
const (
	AuthorityConfidence = 100
	NameConfidence      = 50
	DefaultConfidence   = 70
)

var authorityRe = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)

// EPSGFromWKT derives an EPSG code from a WKT definition. minConfidence
// controls how speculative a match is accepted: at DefaultConfidence only an
// AUTHORITY clause qualifies; lowering it to NameConfidence also accepts a
// registry-name match. Returns ok=false when nothing reaches the threshold.
func EPSGFromWKT(wkt string, minConfidence int) (int, bool) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return 0, false
	}

	if AuthorityConfidence >= minConfidence {
		if code, ok := rootAuthorityCode(wkt); ok {
			return code, true
		}
	}

	if NameConfidence >= minConfidence {
		if code, ok := epsgByName(wktName(wkt)); ok {
			return code, true
		}
	}

	return 0, false
}

// rootAuthorityCode finds the AUTHORITY clause belonging to the outermost
// definition, i.e. the one at bracket depth 1. DATUM, SPHEROID and UNIT
// carry their own nested AUTHORITY clauses that identify those objects,
// not the CRS.
func rootAuthorityCode(wkt string) (int, bool) {
	for _, loc := range authorityRe.FindAllStringSubmatchIndex(wkt, -1) {
		if bracketDepth(wkt[:loc[0]]) != 1 {
			continue
		}
		if code, err := strconv.Atoi(wkt[loc[2]:loc[3]]); err == nil && code > 0 {
			return code, true
		}
	}
	return 0, false
}

func bracketDepth(s string) int {
	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '[':
			if !quoted {
				depth++
			}
		case ']':
			if !quoted {
				depth--
			}
		}
	}
	return depth
}

// wktName extracts the quoted CRS name directly after the outermost keyword,
// e.g. `PROJCS["SWEREF99 TM", ...]` yields "SWEREF99 TM".
func wktName(wkt string) string {
	open := strings.IndexByte(wkt, '[')
	if open < 0 {
		return ""
	}
	rest := wkt[open+1:]
	start := strings.IndexByte(rest, '"')
	if start < 0 {
		return ""
	}
	rest = rest[start+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
