// Package raster holds multi-band gridded data in memory together with
// the affine transform that places it in a coordinate reference system.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/geoflow/internal/crs"
)

// Grid is an in-memory raster. Each band is a Width*Height row-major
// slice of samples; row 0 is the top of the image. Transform follows the
// GDAL geotransform layout: [originX, pixelWidth, rowRotation, originY,
// colRotation, pixelHeight] with a negative pixelHeight for north-up data.
type Grid struct {
	Width     int
	Height    int
	Bands     [][]float64
	Transform [6]float64
	CRS       crs.Descriptor
	NoData    *float64
}

// New allocates a grid with the given number of zeroed bands.
func New(width, height, nbands int, transform [6]float64, d crs.Descriptor) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid dimensions %dx%d", width, height)
	}
	if nbands <= 0 {
		return nil, fmt.Errorf("raster: invalid band count %d", nbands)
	}
	bands := make([][]float64, nbands)
	for i := range bands {
		bands[i] = make([]float64, width*height)
	}
	return &Grid{
		Width:     width,
		Height:    height,
		Bands:     bands,
		Transform: transform,
		CRS:       d,
	}, nil
}

// NorthUp builds the geotransform for an axis-aligned grid anchored at
// its top-left corner.
func NorthUp(originX, originY, cellWidth, cellHeight float64) [6]float64 {
	return [6]float64{originX, cellWidth, 0, originY, 0, -cellHeight}
}

// At returns the sample of band b at column col, row row.
func (g *Grid) At(b, col, row int) float64 {
	return g.Bands[b][row*g.Width+col]
}

// Set stores a sample in band b at column col, row row.
func (g *Grid) Set(b, col, row int, v float64) {
	g.Bands[b][row*g.Width+col] = v
}

// IsNoData reports whether v matches the grid's nodata marker.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return g.NoData != nil && v == *g.NoData
}

// CellCoord maps a cell to the world coordinates of its center.
func (g *Grid) CellCoord(col, row int) (x, y float64) {
	fc, fr := float64(col)+0.5, float64(row)+0.5
	t := g.Transform
	x = t[0] + fc*t[1] + fr*t[2]
	y = t[3] + fc*t[4] + fr*t[5]
	return x, y
}

// CellAt maps world coordinates to the cell containing them. ok is false
// outside the grid. Rotated transforms are not supported.
func (g *Grid) CellAt(x, y float64) (col, row int, ok bool) {
	t := g.Transform
	if t[2] != 0 || t[4] != 0 {
		return 0, 0, false
	}
	col = int(math.Floor((x - t[0]) / t[1]))
	row = int(math.Floor((y - t[3]) / t[5]))
	if col < 0 || col >= g.Width || row < 0 || row >= g.Height {
		return 0, 0, false
	}
	return col, row, true
}

// Bound returns the grid extent in world coordinates.
func (g *Grid) Bound() orb.Bound {
	t := g.Transform
	corners := [4][2]float64{
		{0, 0},
		{float64(g.Width), 0},
		{0, float64(g.Height)},
		{float64(g.Width), float64(g.Height)},
	}
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range corners {
		x := t[0] + c[0]*t[1] + c[1]*t[2]
		y := t[3] + c[0]*t[4] + c[1]*t[5]
		b.Min[0] = math.Min(b.Min[0], x)
		b.Min[1] = math.Min(b.Min[1], y)
		b.Max[0] = math.Max(b.Max[0], x)
		b.Max[1] = math.Max(b.Max[1], y)
	}
	return b
}

// Stats reports the min and max of band b, skipping nodata cells. ok is
// false when the band has no valid samples.
func (g *Grid) Stats(b int) (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range g.Bands[b] {
		if g.IsNoData(v) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
		ok = true
	}
	return min, max, ok
}

// ClipToPolygon writes the nodata marker into every cell whose center
// falls outside the boundary. The grid and boundary must already share a
// CRS; the caller reprojects first.
func (g *Grid) ClipToPolygon(boundary orb.Polygon) error {
	if g.NoData == nil {
		nd := math.NaN()
		g.NoData = &nd
	}
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.CellCoord(col, row)
			if planar.PolygonContains(boundary, orb.Point{x, y}) {
				continue
			}
			for b := range g.Bands {
				g.Set(b, col, row, *g.NoData)
			}
		}
	}
	return nil
}
