package shapefile

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

func squareAt(x, y, side float64) orb.Polygon {
	return orb.Polygon{{
		{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side}, {x, y},
	}}
}

func testLayer() *vector.Layer {
	l := vector.New("zones", crs.EPSG(4326))
	a := geojson.NewFeature(squareAt(11.0, 57.0, 0.5))
	a.Properties["name"] = "west"
	a.Properties["pop"] = 1500.0
	b := geojson.NewFeature(squareAt(12.0, 57.5, 0.5))
	b.Properties["name"] = "east"
	b.Properties["pop"] = 900.0
	l.Append(a)
	l.Append(b)
	return l
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.shp")
	if err := Write(testLayer(), path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("feature count = %d, want 2", got.Len())
	}
	if got.CRS.EPSG != 4326 {
		t.Fatalf("CRS = %v, want EPSG:4326 from the prj sidecar", got.CRS)
	}

	names := map[any]bool{}
	for _, f := range got.FC.Features {
		if _, ok := f.Geometry.(orb.Polygon); !ok {
			t.Fatalf("geometry type = %s, want Polygon", f.Geometry.GeoJSONType())
		}
		names[f.Properties["name"]] = true
	}
	if !names["west"] || !names["east"] {
		t.Fatalf("attributes lost in round trip: %v", names)
	}
}

func TestWriteRead_GeometryExtent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.shp")
	if err := Write(testLayer(), path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	b := got.FC.Features[0].Geometry.Bound()
	want := squareAt(11.0, 57.0, 0.5).Bound()
	const tol = 1e-9
	if math.Abs(b.Min[0]-want.Min[0]) > tol || math.Abs(b.Max[1]-want.Max[1]) > tol {
		t.Fatalf("bound = %v, want %v", b, want)
	}
}

func TestRead_MissingPRJ(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.shp")
	if err := Write(testLayer(), path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "zones.prj")); err != nil {
		t.Fatalf("remove prj: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.CRS.Defined() {
		t.Fatalf("CRS = %v, want undefined when no prj sidecar exists", got.CRS)
	}
}

func TestRead_SelectedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.shp")
	if err := Write(testLayer(), path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path, "name")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	f := got.FC.Features[0]
	if _, ok := f.Properties["name"]; !ok {
		t.Fatalf("selected column missing: %v", f.Properties)
	}
	if _, ok := f.Properties["pop"]; ok {
		t.Fatalf("unselected column present: %v", f.Properties)
	}
}

func TestWrite_PointLayer(t *testing.T) {
	l := vector.New("stops", crs.EPSG(4326))
	f := geojson.NewFeature(orb.Point{11.97, 57.70})
	f.Properties["name"] = "central"
	l.Append(f)

	path := filepath.Join(t.TempDir(), "stops.shp")
	if err := Write(l, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	p, ok := got.FC.Features[0].Geometry.(orb.Point)
	if !ok {
		t.Fatalf("geometry type = %s, want Point", got.FC.Features[0].Geometry.GeoJSONType())
	}
	if math.Abs(p[0]-11.97) > 1e-9 || math.Abs(p[1]-57.70) > 1e-9 {
		t.Fatalf("point = %v", p)
	}
}

func TestWrite_EmptyLayer(t *testing.T) {
	l := vector.New("empty", crs.EPSG(4326))
	if err := Write(l, filepath.Join(t.TempDir(), "empty.shp")); err == nil {
		t.Fatalf("expected error for layer with no geometries")
	}
}
