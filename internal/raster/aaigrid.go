package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geoflow/internal/crs"
)

// ReadASCIIGrid parses an ESRI ASCII grid (.asc) into a single-band
// grid. Both cellsize and dx/dy headers are accepted; the corner may be
// given as xllcorner/yllcorner or xllcenter/yllcenter.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	hdr := map[string]float64{}
	var rows []float64
	center := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && !isNumber(fields[0]) {
			key := strings.ToLower(fields[0])
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("raster: header %s: %w", key, err)
			}
			if key == "xllcenter" || key == "yllcenter" {
				center = true
				key = strings.Replace(key, "center", "corner", 1)
			}
			hdr[key] = v
			continue
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("raster: data value %q: %w", f, err)
			}
			rows = append(rows, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("raster: read ascii grid: %w", err)
	}

	ncols, nrows := int(hdr["ncols"]), int(hdr["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("raster: missing or invalid ncols/nrows header")
	}
	if len(rows) != ncols*nrows {
		return nil, fmt.Errorf("raster: got %d samples, header promises %d", len(rows), ncols*nrows)
	}

	dx, dy := hdr["cellsize"], hdr["cellsize"]
	if v, ok := hdr["dx"]; ok {
		dx = v
	}
	if v, ok := hdr["dy"]; ok {
		dy = v
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("raster: missing or invalid cellsize header")
	}

	xll, yll := hdr["xllcorner"], hdr["yllcorner"]
	if center {
		xll -= dx / 2
		yll -= dy / 2
	}

	g, err := New(ncols, nrows, 1, NorthUp(xll, yll+float64(nrows)*dy, dx, dy), crs.Undefined)
	if err != nil {
		return nil, err
	}
	if nd, ok := hdr["nodata_value"]; ok {
		g.NoData = &nd
	}
	copy(g.Bands[0], rows)
	return g, nil
}

// ReadASCIIGridFile loads an .asc file, picking up the CRS from a .prj
// sidecar with the same basename when one exists.
func ReadASCIIGridFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: open %s: %w", path, err)
	}
	defer f.Close()

	g, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", path, err)
	}
	if wkt, err := os.ReadFile(prjPath(path)); err == nil {
		g.CRS = crs.FromWKT(string(wkt))
	}
	return g, nil
}

// WriteASCIIGrid serializes band b of the grid as an ESRI ASCII grid.
// The transform must be north-up with square cells.
func WriteASCIIGrid(w io.Writer, g *Grid, b int) error {
	t := g.Transform
	if t[2] != 0 || t[4] != 0 {
		return fmt.Errorf("raster: rotated grids cannot be written as ascii grid")
	}
	if math.Abs(t[1]+t[5]) > 1e-9*math.Abs(t[1]) {
		return fmt.Errorf("raster: non-square cells (%g x %g) cannot be written as ascii grid", t[1], -t[5])
	}
	if b < 0 || b >= len(g.Bands) {
		return fmt.Errorf("raster: band %d out of range", b)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", g.Width)
	fmt.Fprintf(bw, "nrows %d\n", g.Height)
	fmt.Fprintf(bw, "xllcorner %s\n", trimFloat(t[0]))
	fmt.Fprintf(bw, "yllcorner %s\n", trimFloat(t[3]+float64(g.Height)*t[5]))
	fmt.Fprintf(bw, "cellsize %s\n", trimFloat(t[1]))
	nodata := -9999.0
	if g.NoData != nil && !math.IsNaN(*g.NoData) {
		nodata = *g.NoData
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", trimFloat(nodata))

	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := g.At(b, col, row)
			if g.IsNoData(v) {
				v = nodata
			}
			bw.WriteString(trimFloat(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteASCIIGridFile writes band b to an .asc file and, when the CRS
// carries WKT, a .prj sidecar beside it.
func WriteASCIIGridFile(g *Grid, b int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("raster: create %s: %w", path, err)
	}
	if err := WriteASCIIGrid(f, g, b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("raster: close %s: %w", path, err)
	}
	if g.CRS.WKT != "" {
		if err := os.WriteFile(prjPath(path), []byte(g.CRS.WKT), 0o644); err != nil {
			return fmt.Errorf("raster: write prj sidecar: %w", err)
		}
	}
	return nil
}

// Stack combines single-band grids sharing dimensions, transform and CRS
// into one multi-band grid.
func Stack(grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("raster: nothing to stack")
	}
	first := grids[0]
	out := &Grid{
		Width:     first.Width,
		Height:    first.Height,
		Transform: first.Transform,
		CRS:       first.CRS,
		NoData:    first.NoData,
	}
	for i, g := range grids {
		if g.Width != first.Width || g.Height != first.Height {
			return nil, fmt.Errorf("raster: grid %d is %dx%d, want %dx%d", i, g.Width, g.Height, first.Width, first.Height)
		}
		if g.Transform != first.Transform {
			return nil, fmt.Errorf("raster: grid %d has a different transform", i)
		}
		if !g.CRS.Equal(first.CRS) {
			return nil, fmt.Errorf("raster: grid %d has a different CRS", i)
		}
		for _, band := range g.Bands {
			dup := make([]float64, len(band))
			copy(dup, band)
			out.Bands = append(out.Bands, dup)
		}
	}
	return out, nil
}

func prjPath(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndexAny(path, `/\`) {
		return path[:i] + ".prj"
	}
	return path + ".prj"
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
