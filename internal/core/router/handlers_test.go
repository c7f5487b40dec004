package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mohammed-shakir/geoflow/internal/core/config"
	"github.com/mohammed-shakir/geoflow/internal/core/model"
	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

func testCfg() config.Config {
	return config.Config{
		MaxBodyBytes:  1 << 20,
		HexResMin:     0,
		HexResMax:     15,
		HexResDefault: 6,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExecutor struct {
	lastQ      model.QueryRequest
	lastAccept string
}

func (f *fakeExecutor) FetchGetFeature(_ context.Context, q model.QueryRequest) ([]byte, string, error) {
	f.lastQ = q
	return []byte(`{"type":"FeatureCollection","features":[]}`), "application/json", nil
}

func (f *fakeExecutor) FetchLayer(_ context.Context, q model.QueryRequest) (*vector.Layer, error) {
	f.lastQ = q
	return vector.New(q.Layer, crs.EPSG(4326)), nil
}

func (f *fakeExecutor) ForwardGetFeature(w http.ResponseWriter, _ *http.Request, q model.QueryRequest) {
	f.lastQ = q
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeExecutor) ForwardGetFeatureFormat(w http.ResponseWriter, _ *http.Request, q model.QueryRequest, accept string) {
	f.lastQ = q
	f.lastAccept = accept
	w.WriteHeader(http.StatusNoContent)
}

func postJSON(t *testing.T, h http.HandlerFunc, path, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeFC(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %v\n%s", err, rr.Body.String())
	}
	return out
}

func features(t *testing.T, rr *httptest.ResponseRecorder) []any {
	t.Helper()
	fc := decodeFC(t, rr)
	feats, _ := fc["features"].([]any)
	return feats
}

const squareFC = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"zone":"a","pop":10},
   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
  {"type":"Feature","properties":{"zone":"a","pop":20},
   "geometry":{"type":"Polygon","coordinates":[[[1,0],[2,0],[2,1],[1,1],[1,0]]]}},
  {"type":"Feature","properties":{"zone":"b","pop":5},
   "geometry":{"type":"Polygon","coordinates":[[[5,5],[6,5],[6,6],[5,6],[5,5]]]}}
]}`

func TestHandleWFS_SeamDispatch(t *testing.T) {
	fe := &fakeExecutor{}
	hdl := HandleWFS(testLogger(), fe)

	req := queryReq(t, map[string]string{
		"layer":        "demo:zones",
		"bbox":         "11.0,55.0,12.0,56.0,EPSG:4326",
		"outputFormat": "application/gml+xml",
	})
	rr := httptest.NewRecorder()
	hdl(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from fake executor, got %d", rr.Code)
	}
	if fe.lastQ.Layer != "demo:zones" || fe.lastQ.BBox == nil {
		t.Fatalf("executor did not receive parsed query: %+v", fe.lastQ)
	}
	if fe.lastAccept != "application/gml+xml" {
		t.Fatalf("outputFormat not threaded: %q", fe.lastAccept)
	}
}

func TestHandleWFS_BadRequest(t *testing.T) {
	hdl := HandleWFS(testLogger(), &fakeExecutor{})
	rr := httptest.NewRecorder()
	hdl(rr, queryReq(t, map[string]string{"bbox": "11,55,12,56,EPSG:4326"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing layer, got %d", rr.Code)
	}
}

func TestHandleTransform(t *testing.T) {
	tr, err := crs.NewTransformer(0)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}
	hdl := HandleTransform(testLogger(), testCfg(), tr)

	body := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[11.97,57.70]}}]}`
	rr := postJSON(t, hdl, "/transform", body, map[string]string{"target": "EPSG:3857"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}

	feats := features(t, rr)
	if len(feats) != 1 {
		t.Fatalf("feature count = %d", len(feats))
	}
	geom := feats[0].(map[string]any)["geometry"].(map[string]any)
	coords := geom["coordinates"].([]any)
	if x := coords[0].(float64); x < 1_300_000 || x > 1_400_000 {
		t.Fatalf("x = %v, want web mercator meters near 1.33e6", x)
	}
}

func TestHandleTransform_MissingTarget(t *testing.T) {
	tr, _ := crs.NewTransformer(0)
	rr := postJSON(t, HandleTransform(testLogger(), testCfg(), tr), "/transform",
		`{"type":"FeatureCollection","features":[]}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleOverlay_Intersection(t *testing.T) {
	hdl := HandleOverlay(testLogger(), testCfg())
	base := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"a":1},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}}]}`
	over := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"b":2},"geometry":{"type":"Polygon","coordinates":[[[1,1],[3,1],[3,3],[1,3],[1,1]]]}}]}`
	body := `{"base":` + base + `,"overlay":` + over + `}`

	rr := postJSON(t, hdl, "/overlay", body, map[string]string{"op": "intersection"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	feats := features(t, rr)
	if len(feats) != 1 {
		t.Fatalf("feature count = %d, want 1 intersection", len(feats))
	}
	props := feats[0].(map[string]any)["properties"].(map[string]any)
	if props["a"] == nil || props["b"] == nil {
		t.Fatalf("attributes not merged: %v", props)
	}
}

func TestHandleOverlay_BadOp(t *testing.T) {
	rr := postJSON(t, HandleOverlay(testLogger(), testCfg()), "/overlay",
		`{"base":{"type":"FeatureCollection","features":[]},"overlay":{"type":"FeatureCollection","features":[]}}`,
		map[string]string{"op": "bogus"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown op, got %d", rr.Code)
	}
}

func TestHandleOverlay_MissingHalf(t *testing.T) {
	rr := postJSON(t, HandleOverlay(testLogger(), testCfg()), "/overlay",
		`{"base":{"type":"FeatureCollection","features":[]}}`,
		map[string]string{"op": "union"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing overlay half, got %d", rr.Code)
	}
}

func TestHandleDissolve(t *testing.T) {
	hdl := HandleDissolve(testLogger(), testCfg())
	rr := postJSON(t, hdl, "/dissolve", squareFC, map[string]string{"by": "zone"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	feats := features(t, rr)
	if len(feats) != 2 {
		t.Fatalf("feature count = %d, want one per distinct zone", len(feats))
	}
}

func TestHandleDissolve_MissingBy(t *testing.T) {
	rr := postJSON(t, HandleDissolve(testLogger(), testCfg()), "/dissolve", squareFC, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleSimplify(t *testing.T) {
	hdl := HandleSimplify(testLogger(), testCfg())
	body := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{},"geometry":{"type":"LineString",
	   "coordinates":[[0,0],[1,0.001],[2,0],[3,0.001],[4,0]]}}]}`

	rr := postJSON(t, hdl, "/simplify", body, map[string]string{"tolerance": "0.1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	feats := features(t, rr)
	coords := feats[0].(map[string]any)["geometry"].(map[string]any)["coordinates"].([]any)
	if len(coords) != 2 {
		t.Fatalf("vertex count = %d, want endpoints only", len(coords))
	}
}

func TestHandleSimplify_BadTolerance(t *testing.T) {
	hdl := HandleSimplify(testLogger(), testCfg())
	if rr := postJSON(t, hdl, "/simplify", squareFC, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing tolerance, got %d", rr.Code)
	}
	if rr := postJSON(t, hdl, "/simplify", squareFC, map[string]string{"tolerance": "-1"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative tolerance, got %d", rr.Code)
	}
}

func TestHandleGrid_BBox(t *testing.T) {
	hdl := HandleGrid(testLogger(), testCfg())
	req := queryReq(t, map[string]string{"bbox": "11.8,57.6,12.1,57.8,EPSG:4326", "res": "6"})
	rr := httptest.NewRecorder()
	hdl(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if len(features(t, rr)) == 0 {
		t.Fatalf("no hexagons returned")
	}
}

func TestHandleGrid_ResOutOfRange(t *testing.T) {
	cfg := testCfg()
	cfg.HexResMax = 8
	hdl := HandleGrid(testLogger(), cfg)
	req := queryReq(t, map[string]string{"bbox": "11.8,57.6,12.1,57.8,EPSG:4326", "res": "12"})
	rr := httptest.NewRecorder()
	hdl(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for res beyond limit, got %d", rr.Code)
	}
}

func TestHandleGrid_MissingExtent(t *testing.T) {
	hdl := HandleGrid(testLogger(), testCfg())
	rr := httptest.NewRecorder()
	hdl(rr, queryReq(t, map[string]string{"res": "6"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleMap(t *testing.T) {
	hdl := HandleMap(testLogger(), testCfg())
	rr := postJSON(t, hdl, "/map", squareFC, map[string]string{"tooltip": "zone,pop", "title": "zones"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type = %q", ct)
	}
	html := rr.Body.String()
	if !strings.Contains(html, "<title>zones</title>") || !strings.Contains(html, "'zone'") {
		t.Fatalf("page missing title or tooltip fields")
	}
}

func TestHandleMap_Choropleth(t *testing.T) {
	hdl := HandleMap(testLogger(), testCfg())
	rr := postJSON(t, hdl, "/map", squareFC, map[string]string{"choropleth": "pop"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "__fill") {
		t.Fatalf("choropleth colors missing")
	}
}

func TestHandleMap_RejectsProjected(t *testing.T) {
	hdl := HandleMap(testLogger(), testCfg())
	rr := postJSON(t, hdl, "/map", squareFC, map[string]string{"crs": "EPSG:3857"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for projected layer, got %d", rr.Code)
	}
}

func TestHandleWFS_MergedMode(t *testing.T) {
	fe := &fakeExecutor{}
	hdl := HandleWFS(testLogger(), fe)

	req := queryReq(t, map[string]string{"layer": "demo:zones", "merged": "true"})
	rr := httptest.NewRecorder()
	hdl(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type = %q", ct)
	}
	if fe.lastQ.Layer != "demo:zones" {
		t.Fatalf("FetchLayer did not receive the parsed query: %+v", fe.lastQ)
	}
	if fe.lastAccept != "" {
		t.Fatalf("merged mode must not forward: accept = %q", fe.lastAccept)
	}
}
