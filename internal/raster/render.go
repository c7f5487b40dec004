package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"
)

// RenderOptions controls how grid samples map to pixels.
type RenderOptions struct {
	// Bands selects which bands to render: one band for grayscale or a
	// ramp, three for an RGB composite. Empty means band 0.
	Bands []int
	// PercentClip drops this fraction of extreme values from each end
	// of the histogram before stretching, e.g. 0.02 for a 2% clip.
	PercentClip float64
	// Ramp maps the stretched value through a color gradient instead
	// of grayscale. Ignored for three-band rendering.
	Ramp []color.NRGBA
}

// ViridisRamp is a five-stop approximation of the viridis gradient.
func ViridisRamp() []color.NRGBA {
	return []color.NRGBA{
		{68, 1, 84, 255},
		{59, 82, 139, 255},
		{33, 145, 140, 255},
		{94, 201, 98, 255},
		{253, 231, 37, 255},
	}
}

// RenderPNG rasterizes the grid to a PNG. Nodata cells come out fully
// transparent, so the image overlays cleanly on a web map.
func RenderPNG(g *Grid, opts RenderOptions) ([]byte, error) {
	bands := opts.Bands
	if len(bands) == 0 {
		bands = []int{0}
	}
	if len(bands) != 1 && len(bands) != 3 {
		return nil, fmt.Errorf("raster: render wants 1 or 3 bands, got %d", len(bands))
	}
	for _, b := range bands {
		if b < 0 || b >= len(g.Bands) {
			return nil, fmt.Errorf("raster: band %d out of range", b)
		}
	}
	if opts.PercentClip < 0 || opts.PercentClip >= 0.5 {
		return nil, fmt.Errorf("raster: percent clip %g out of range [0, 0.5)", opts.PercentClip)
	}

	stretches := make([]stretch, len(bands))
	for i, b := range bands {
		stretches[i] = newStretch(g, b, opts.PercentClip)
	}

	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			i := (row*g.Width + col) * 4
			if len(bands) == 3 {
				var px [3]uint8
				valid := true
				for c, b := range bands {
					v := g.At(b, col, row)
					if g.IsNoData(v) {
						valid = false
						break
					}
					px[c] = stretches[c].byteOf(v)
				}
				if !valid {
					continue // zeroed pixel is transparent
				}
				img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = px[0], px[1], px[2], 255
				continue
			}

			v := g.At(bands[0], col, row)
			if g.IsNoData(v) {
				continue
			}
			t := stretches[0].normOf(v)
			var c color.NRGBA
			if len(opts.Ramp) > 0 {
				c = rampColor(opts.Ramp, t)
			} else {
				gray := uint8(math.Round(t * 255))
				c = color.NRGBA{gray, gray, gray, 255}
			}
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("raster: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type stretch struct {
	lo, hi float64
}

// newStretch derives the linear stretch window for a band, trimming the
// requested fraction off each tail of the sorted samples.
func newStretch(g *Grid, b int, clip float64) stretch {
	valid := make([]float64, 0, len(g.Bands[b]))
	for _, v := range g.Bands[b] {
		if !g.IsNoData(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return stretch{0, 1}
	}
	sort.Float64s(valid)
	lo := valid[int(float64(len(valid)-1)*clip)]
	hi := valid[int(float64(len(valid)-1)*(1-clip))]
	if hi <= lo {
		hi = lo + 1
	}
	return stretch{lo, hi}
}

func (s stretch) normOf(v float64) float64 {
	t := (v - s.lo) / (s.hi - s.lo)
	return math.Max(0, math.Min(1, t))
}

func (s stretch) byteOf(v float64) uint8 {
	return uint8(math.Round(s.normOf(v) * 255))
}

func rampColor(ramp []color.NRGBA, t float64) color.NRGBA {
	if len(ramp) == 1 {
		return ramp[0]
	}
	pos := t * float64(len(ramp)-1)
	i := int(pos)
	if i >= len(ramp)-1 {
		return ramp[len(ramp)-1]
	}
	f := pos - float64(i)
	a, b := ramp[i], ramp[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.NRGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), lerp(a.A, b.A)}
}
