package vector

import (
	"bytes"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/crs"
)

func TestReadGeoJSON_DefaultsToWGS84(t *testing.T) {
	in := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[11.97,57.7]}}
	]}`
	l, err := ReadGeoJSON(strings.NewReader(in), "pts")
	if err != nil {
		t.Fatalf("ReadGeoJSON: %v", err)
	}
	if l.CRS.EPSG != 4326 {
		t.Fatalf("CRS got %s want EPSG:4326", l.CRS)
	}
	if l.Len() != 1 {
		t.Fatalf("len got %d want 1", l.Len())
	}
	if l.FC.Features[0].Properties["name"] != "a" {
		t.Fatalf("properties lost: %+v", l.FC.Features[0].Properties)
	}
}

func TestReadGeoJSON_LegacyCRSMember(t *testing.T) {
	in := `{"type":"FeatureCollection",
		"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},
		"features":[]}`
	l, err := ReadGeoJSON(strings.NewReader(in), "x")
	if err != nil {
		t.Fatalf("ReadGeoJSON: %v", err)
	}
	if l.CRS.EPSG != 3857 {
		t.Fatalf("CRS got %s want EPSG:3857", l.CRS)
	}
}

func TestWriteGeoJSON_RoundTrip(t *testing.T) {
	d, _ := crs.FromEPSG(3857)
	l := New("boxes", d)
	f := geojson.NewFeature(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}})
	f.Properties["zone"] = "A"
	l.Append(f)

	var buf bytes.Buffer
	if err := l.WriteGeoJSON(&buf); err != nil {
		t.Fatalf("WriteGeoJSON: %v", err)
	}

	back, err := ReadGeoJSON(&buf, "boxes")
	if err != nil {
		t.Fatalf("ReadGeoJSON: %v", err)
	}
	if back.CRS.EPSG != 3857 {
		t.Fatalf("CRS did not survive round trip: %s", back.CRS)
	}
	if back.Len() != 1 {
		t.Fatalf("len got %d want 1", back.Len())
	}
	if back.FC.Features[0].Properties["zone"] != "A" {
		t.Fatalf("attributes lost: %+v", back.FC.Features[0].Properties)
	}
}

func TestLayer_Bound(t *testing.T) {
	l := New("pts", crs.Undefined)
	l.Append(geojson.NewFeature(orb.Point{1, 2}))
	l.Append(geojson.NewFeature(orb.Point{5, -3}))

	b := l.Bound()
	want := orb.Bound{Min: orb.Point{1, -3}, Max: orb.Point{5, 2}}
	if b != want {
		t.Fatalf("bound got %v want %v", b, want)
	}
}

func TestReadGeoJSON_LegacyCRSMemberUnregisteredCode(t *testing.T) {
	// declared codes must stick even when no projection is registered for
	// them; anything else silently mislabels the layer as WGS84
	in := `{"type":"FeatureCollection",
		"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::2056"}},
		"features":[]}`
	l, err := ReadGeoJSON(strings.NewReader(in), "x")
	if err != nil {
		t.Fatalf("ReadGeoJSON: %v", err)
	}
	if l.CRS.EPSG != 2056 {
		t.Fatalf("CRS got %s want EPSG:2056", l.CRS)
	}
}
