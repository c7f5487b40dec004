package crs

import "strings"

// entry pairs the PROJ parameter string for an EPSG code with the registry
// name it is published under. The name feeds the low-confidence WKT match.
type entry struct {
	proj string
	name string
}

// registry covers the codes the workflows here actually reach for. Anything
// else must be supplied as an explicit PROJ string.
var registry = map[int]entry{
	4326: {
		proj: "+proj=longlat +datum=WGS84 +no_defs",
		name: "WGS 84",
	},
	4258: {
		proj: "+proj=longlat +ellps=GRS80 +no_defs",
		name: "ETRS89",
	},
	4269: {
		proj: "+proj=longlat +ellps=GRS80 +no_defs",
		name: "NAD83",
	},
	3857: {
		proj: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
		name: "WGS 84 / Pseudo-Mercator",
	},
	2154: {
		proj: "+proj=lcc +lat_1=49 +lat_2=44 +lat_0=46.5 +lon_0=3 +x_0=700000 +y_0=6600000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		name: "RGF93 / Lambert-93",
	},
	5070: {
		proj: "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		name: "NAD83 / Conus Albers",
	},
	3006: {
		proj: "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		name: "SWEREF99 TM",
	},
	25832: {
		proj: "+proj=utm +zone=32 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		name: "ETRS89 / UTM zone 32N",
	},
	25833: {
		proj: "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		name: "ETRS89 / UTM zone 33N",
	},
	27700: {
		proj: "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +units=m +no_defs",
		name: "OSGB 1936 / British National Grid",
	},
	32632: {
		proj: "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
		name: "WGS 84 / UTM zone 32N",
	},
	32633: {
		proj: "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs",
		name: "WGS 84 / UTM zone 33N",
	},
}

// epsgByName resolves a registry name to its code. Matching is
// case-insensitive and ignores surrounding whitespace and underscores, since
// WKT emitters disagree on those.
func epsgByName(name string) (int, bool) {
	want := normalizeName(name)
	if want == "" {
		return 0, false
	}
	for code, e := range registry {
		if normalizeName(e.name) == want {
			return code, true
		}
	}
	return 0, false
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
