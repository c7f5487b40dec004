package raster

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geoflow/internal/crs"
)

func testGrid(t *testing.T, w, h int) *Grid {
	t.Helper()
	g, err := New(w, h, 1, NorthUp(0, float64(h), 1, 1), crs.EPSG(3857))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestGrid_AtSetRowMajor(t *testing.T) {
	g := testGrid(t, 4, 3)
	g.Set(0, 2, 1, 42)
	if got := g.At(0, 2, 1); got != 42 {
		t.Fatalf("At(0,2,1) = %v, want 42", got)
	}
	if got := g.Bands[0][1*4+2]; got != 42 {
		t.Fatalf("backing slice index = %v, want 42", got)
	}
}

func TestGrid_CellCoordCenter(t *testing.T) {
	g := testGrid(t, 4, 4)
	x, y := g.CellCoord(0, 0)
	if x != 0.5 || y != 3.5 {
		t.Fatalf("CellCoord(0,0) = (%v,%v), want cell center (0.5,3.5)", x, y)
	}
	x, y = g.CellCoord(3, 3)
	if x != 3.5 || y != 0.5 {
		t.Fatalf("CellCoord(3,3) = (%v,%v), want (3.5,0.5)", x, y)
	}
}

func TestGrid_CellAt(t *testing.T) {
	g := testGrid(t, 4, 4)
	col, row, ok := g.CellAt(2.5, 3.5)
	if !ok || col != 2 || row != 0 {
		t.Fatalf("CellAt(2.5,3.5) = (%d,%d,%v), want (2,0,true)", col, row, ok)
	}
	if _, _, ok := g.CellAt(-1, 2); ok {
		t.Fatalf("CellAt outside the grid reported ok")
	}
	if _, _, ok := g.CellAt(2, 5); ok {
		t.Fatalf("CellAt above the grid reported ok")
	}
}

func TestGrid_Bound(t *testing.T) {
	g := testGrid(t, 4, 2)
	want := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 2}}
	if got := g.Bound(); got != want {
		t.Fatalf("Bound = %v, want %v", got, want)
	}
}

func TestGrid_StatsSkipsNoData(t *testing.T) {
	g := testGrid(t, 2, 2)
	nd := -9999.0
	g.NoData = &nd
	g.Set(0, 0, 0, 5)
	g.Set(0, 1, 0, 15)
	g.Set(0, 0, 1, nd)
	g.Set(0, 1, 1, math.NaN())

	min, max, ok := g.Stats(0)
	if !ok || min != 5 || max != 15 {
		t.Fatalf("Stats = (%v,%v,%v), want (5,15,true)", min, max, ok)
	}
}

func TestGrid_ClipToPolygon(t *testing.T) {
	g := testGrid(t, 4, 4)
	for i := range g.Bands[0] {
		g.Bands[0][i] = 1
	}
	// covers the lower-left quadrant of the 4x4 extent
	boundary := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
	if err := g.ClipToPolygon(boundary); err != nil {
		t.Fatalf("ClipToPolygon: %v", err)
	}

	kept := 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v := g.At(0, col, row)
			x, y := g.CellCoord(col, row)
			inside := x < 2 && y < 2
			if inside && g.IsNoData(v) {
				t.Fatalf("cell (%d,%d) inside the boundary was clipped", col, row)
			}
			if !inside && !g.IsNoData(v) {
				t.Fatalf("cell (%d,%d) outside the boundary kept value %v", col, row, v)
			}
			if !g.IsNoData(v) {
				kept++
			}
		}
	}
	if kept != 4 {
		t.Fatalf("kept %d cells, want the 4 inside the boundary", kept)
	}
}

func TestGrid_ClipWithHole(t *testing.T) {
	g := testGrid(t, 4, 4)
	for i := range g.Bands[0] {
		g.Bands[0][i] = 1
	}
	boundary := orb.Polygon{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}},
	}
	if err := g.ClipToPolygon(boundary); err != nil {
		t.Fatalf("ClipToPolygon: %v", err)
	}
	if v := g.At(0, 1, 1); !g.IsNoData(v) {
		t.Fatalf("cell in the hole kept value %v", v)
	}
	if v := g.At(0, 0, 0); g.IsNoData(v) {
		t.Fatalf("cell in the ring was clipped")
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(0, 4, 1, NorthUp(0, 0, 1, 1), crs.Undefined); err == nil {
		t.Fatalf("expected error for zero width")
	}
	if _, err := New(4, 4, 0, NorthUp(0, 0, 1, 1), crs.Undefined); err == nil {
		t.Fatalf("expected error for zero bands")
	}
}
