// Package fgbio reads and writes layers in the FlatGeobuf binary format.
package fgbio

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	fgb "github.com/tingold/orb-flatgeobuf"

	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

// Read loads a whole FlatGeobuf file as a layer. The CRS comes from the
// file header; a header without one yields an undefined CRS.
func Read(path string) (*vector.Layer, error) {
	r, err := fgb.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("fgbio: open %s: %w", path, err)
	}
	defer r.Close()

	fc, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("fgbio: read %s: %w", path, err)
	}

	l := vector.New(layerName(r.Header().Name, path), headerCRS(r.Header()))
	l.FC = fc
	return l, nil
}

// ReadBound loads only the features whose envelopes intersect bound,
// using the file's spatial index.
func ReadBound(path string, bound orb.Bound) (*vector.Layer, error) {
	r, err := fgb.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("fgbio: open %s: %w", path, err)
	}
	defer r.Close()

	fc, err := r.Search(bound)
	if err != nil {
		return nil, fmt.Errorf("fgbio: search %s: %w", path, err)
	}

	l := vector.New(layerName(r.Header().Name, path), headerCRS(r.Header()))
	l.FC = fc
	return l, nil
}

// Write stores the layer with a spatial index. Only an EPSG code or WKT
// survives into the header; proj-string-only descriptors write as
// undefined.
func Write(l *vector.Layer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fgbio: create %s: %w", path, err)
	}
	defer f.Close()

	opts := fgb.DefaultOptions()
	opts.Name = l.Name
	if c := descriptorCRS(l.CRS); c != nil {
		opts.CRS = c
	}
	if err := fgb.WriteFeatures(f, l.FC, opts); err != nil {
		return fmt.Errorf("fgbio: write %s: %w", path, err)
	}
	return nil
}

func headerCRS(h *fgb.Header) crs.Descriptor {
	if h == nil || h.CRS == nil {
		return crs.Undefined
	}
	if h.CRS.Code != 0 {
		return crs.EPSG(h.CRS.Code)
	}
	if h.CRS.WKT != "" {
		return crs.FromWKT(h.CRS.WKT)
	}
	return crs.Undefined
}

func descriptorCRS(d crs.Descriptor) *fgb.CRS {
	switch {
	case d.EPSG != 0:
		return &fgb.CRS{Code: d.EPSG}
	case d.WKT != "":
		return &fgb.CRS{WKT: d.WKT}
	default:
		return nil
	}
}

func layerName(headerName, path string) string {
	if headerName != "" {
		return headerName
	}
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".fgb")
}
