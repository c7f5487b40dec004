// Package vector models attribute-carrying geometry collections (layers) and
// their GeoJSON serialization. A layer pairs an orb FeatureCollection with
// the CRS all of its geometries are expressed in.
package vector

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/crs"
)

// Layer is an in-memory geometry collection. All geometries share one CRS at
// any given time; reprojection produces a new layer.
type Layer struct {
	Name string
	CRS  crs.Descriptor
	FC   *geojson.FeatureCollection
}

func New(name string, d crs.Descriptor) *Layer {
	return &Layer{Name: name, CRS: d, FC: geojson.NewFeatureCollection()}
}

func (l *Layer) Append(f *geojson.Feature) {
	l.FC.Append(f)
}

func (l *Layer) Len() int {
	if l.FC == nil {
		return 0
	}
	return len(l.FC.Features)
}

// Bound returns the combined extent of all feature geometries.
func (l *Layer) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, f := range l.FC.Features {
		if f.Geometry == nil {
			continue
		}
		if first {
			b = f.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// legacy pre-RFC7946 crs member, still emitted by some servers
type legacyCRS struct {
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

// ReadGeoJSON decodes a FeatureCollection. Per RFC 7946 the CRS is WGS 84;
// a legacy "crs" member overrides that when present.
func ReadGeoJSON(r io.Reader, name string) (*Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vector: read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("vector: parse geojson: %w", err)
	}

	d, _ := crs.FromEPSG(4326)
	var wrapper struct {
		CRS *legacyCRS `json:"crs"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.CRS != nil {
		if parsed, ok := parseLegacyCRSName(wrapper.CRS.Properties.Name); ok {
			d = parsed
		}
	}

	return &Layer{Name: name, CRS: d, FC: fc}, nil
}

// ReadGeoJSONFile reads a .geojson/.json file, naming the layer after the
// file.
func ReadGeoJSONFile(path string) (*Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vector: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadGeoJSON(f, baseName(path))
}

// WriteGeoJSON encodes the layer as a FeatureCollection. Layers not in
// EPSG:4326 get a legacy crs member so the CRS survives the round trip.
// The member can only name an EPSG code; a descriptor carrying just a
// PROJ string or WKT is not representable and reads back as EPSG:4326.
func (l *Layer) WriteGeoJSON(w io.Writer) error {
	buf, err := json.Marshal(l.FC)
	if err != nil {
		return fmt.Errorf("vector: marshal geojson: %w", err)
	}
	if l.CRS.EPSG != 0 && l.CRS.EPSG != 4326 {
		var root map[string]json.RawMessage
		if err := json.Unmarshal(buf, &root); err != nil {
			return fmt.Errorf("vector: reparse geojson: %w", err)
		}
		c := legacyCRS{}
		c.Properties.Name = fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", l.CRS.EPSG)
		cb, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("vector: marshal crs member: %w", err)
		}
		root["crs"] = cb
		buf, err = json.Marshal(root)
		if err != nil {
			return fmt.Errorf("vector: remarshal geojson: %w", err)
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("vector: write geojson: %w", err)
	}
	return nil
}

// WriteGeoJSONFile writes the layer to path.
func (l *Layer) WriteGeoJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vector: create %s: %w", path, err)
	}
	if err := l.WriteGeoJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func parseLegacyCRSName(name string) (crs.Descriptor, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return crs.Undefined, false
	}
	u := strings.ToUpper(name)
	if u == "URN:OGC:DEF:CRS:OGC:1.3:CRS84" || u == "OGC:CRS84" {
		d, _ := crs.FromEPSG(4326)
		return d, true
	}
	// urn:ogc:def:crs:EPSG::3857 and EPSG:3857 both end in the code. The
	// declared code is kept even when the registry has no projection for
	// it; resolving fails at transform time, not here.
	if i := strings.LastIndexAny(name, ":"); i >= 0 {
		if code, err := strconv.Atoi(strings.TrimSpace(name[i+1:])); err == nil && code > 0 {
			return crs.EPSG(code), true
		}
	}
	return crs.Undefined, false
}

func baseName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
