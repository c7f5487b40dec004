package simplify

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// a line with small wiggles around y=0
func wigglyLine() orb.LineString {
	return orb.LineString{
		{0, 0}, {1, 0.01}, {2, -0.02}, {3, 0.015}, {4, -0.01}, {5, 0},
	}
}

func TestGeometry_ZeroToleranceIsIdentity(t *testing.T) {
	in := wigglyLine()
	out, err := Geometry(in, 0)
	if err != nil {
		t.Fatalf("Geometry: %v", err)
	}
	ls, ok := out.(orb.LineString)
	if !ok {
		t.Fatalf("got %T want LineString", out)
	}
	if len(ls) != len(in) {
		t.Fatalf("vertex count changed at tolerance 0: %d != %d", len(ls), len(in))
	}
	for i := range in {
		if ls[i] != in[i] {
			t.Fatalf("vertex %d changed: %v != %v", i, ls[i], in[i])
		}
	}
}

func TestGeometry_ReducesVertices(t *testing.T) {
	in := wigglyLine()
	out, err := Geometry(in, 0.1)
	if err != nil {
		t.Fatalf("Geometry: %v", err)
	}
	ls := out.(orb.LineString)
	if len(ls) >= len(in) {
		t.Fatalf("no reduction: %d >= %d", len(ls), len(in))
	}
	// Douglas-Peucker always keeps the endpoints
	if ls[0] != in[0] || ls[len(ls)-1] != in[len(in)-1] {
		t.Fatalf("endpoints moved: %v ... %v", ls[0], ls[len(ls)-1])
	}
	// input must be untouched
	if in[1] != (orb.Point{1, 0.01}) {
		t.Fatalf("input mutated: %v", in[1])
	}
}

func TestGeometry_LargeToleranceCollapsesToEndpoints(t *testing.T) {
	out, err := Geometry(wigglyLine(), 1e6)
	if err != nil {
		t.Fatalf("Geometry: %v", err)
	}
	ls := out.(orb.LineString)
	if len(ls) != 2 {
		t.Fatalf("expected collapse to the two endpoints, got %d vertices", len(ls))
	}
}

func TestGeometry_NegativeTolerance(t *testing.T) {
	if _, err := Geometry(wigglyLine(), -1); err == nil {
		t.Fatal("expected error for negative tolerance")
	}
}

func TestGeometry_Nil(t *testing.T) {
	out, err := Geometry(nil, 1)
	if err != nil || out != nil {
		t.Fatalf("nil geometry: got (%v, %v)", out, err)
	}
}

func TestLayer_KeepsAttributes(t *testing.T) {
	d, _ := crs.FromEPSG(3857)
	l := vector.New("roads", d)
	f := geojson.NewFeature(wigglyLine())
	f.ID = "r1"
	f.Properties["name"] = "E6"
	l.Append(f)

	out, err := Layer(l, 0.1)
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("len got %d want 1", out.Len())
	}
	nf := out.FC.Features[0]
	if nf.ID != "r1" || nf.Properties["name"] != "E6" {
		t.Fatalf("attributes lost: id=%v props=%+v", nf.ID, nf.Properties)
	}
	if len(nf.Geometry.(orb.LineString)) >= len(wigglyLine()) {
		t.Fatal("geometry not simplified")
	}
	if out.CRS != l.CRS {
		t.Fatalf("CRS changed: %s", out.CRS)
	}
}
