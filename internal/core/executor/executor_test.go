package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/mohammed-shakir/geoflow/internal/core/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pageFC answers a GetFeature with n point features starting at offset,
// drawing from a fixed total.
func pageFC(total, start, count int) string {
	end := total
	if count > 0 && start+count < total {
		end = start + count
	}
	var feats []string
	for i := start; i < end; i++ {
		feats = append(feats, fmt.Sprintf(
			`{"type":"Feature","properties":{"n":%d},"geometry":{"type":"Point","coordinates":[%d,0]}}`, i, i))
	}
	return `{"type":"FeatureCollection","features":[` + strings.Join(feats, ",") + `]}`
}

func TestFetchGetFeature(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, pageFC(2, 0, 0))
	}))
	defer srv.Close()

	e, err := New(testLogger(), srv.Client(), srv.URL+"/ows")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body, ct, err := e.FetchGetFeature(context.Background(), model.QueryRequest{Layer: "demo:zones"})
	if err != nil {
		t.Fatalf("FetchGetFeature: %v", err)
	}
	if ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("feature count = %d", len(fc.Features))
	}
	for _, want := range []string{"service=WFS", "request=GetFeature", "typeNames=demo%3Azones"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("upstream query missing %q: %s", want, gotQuery)
		}
	}
}

func TestFetchGetFeature_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "layer not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, _ := New(testLogger(), srv.Client(), srv.URL+"/ows")
	_, _, err := e.FetchGetFeature(context.Background(), model.QueryRequest{Layer: "demo:missing"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected upstream status error, got %v", err)
	}
}

func TestFetchLayer_SingleRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, pageFC(3, 0, 0))
	}))
	defer srv.Close()

	e, _ := New(testLogger(), srv.Client(), srv.URL+"/ows")
	l, err := e.FetchLayer(context.Background(), model.QueryRequest{Layer: "demo:zones"})
	if err != nil {
		t.Fatalf("FetchLayer: %v", err)
	}
	if calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 without paging", calls)
	}
	if l.Len() != 3 {
		t.Fatalf("features = %d", l.Len())
	}
	if l.Name != "demo:zones" || l.CRS.EPSG != 4326 {
		t.Fatalf("layer identity wrong: %q %v", l.Name, l.CRS)
	}
}

func TestFetchLayer_Paging(t *testing.T) {
	const total = 5
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("startIndex"))
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))
		offsets = append(offsets, start)
		fmt.Fprint(w, pageFC(total, start, count))
	}))
	defer srv.Close()

	e, _ := New(testLogger(), srv.Client(), srv.URL+"/ows")
	e.SetPageSize(2)

	l, err := e.FetchLayer(context.Background(), model.QueryRequest{Layer: "demo:zones"})
	if err != nil {
		t.Fatalf("FetchLayer: %v", err)
	}
	if l.Len() != total {
		t.Fatalf("features = %d, want %d", l.Len(), total)
	}
	// pages of 2: offsets 0, 2, 4; the short last page stops the loop
	if len(offsets) != 3 || offsets[0] != 0 || offsets[1] != 2 || offsets[2] != 4 {
		t.Fatalf("offsets = %v", offsets)
	}
}

func TestForwardGetFeatureFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/gml+xml" {
			t.Errorf("Accept = %q", got)
		}
		if of := r.URL.Query().Get("outputFormat"); of != "application/gml+xml" {
			t.Errorf("outputFormat = %q", of)
		}
		w.Header().Set("Content-Type", "application/gml+xml")
		fmt.Fprint(w, "<wfs:FeatureCollection/>")
	}))
	defer srv.Close()

	e, _ := New(testLogger(), srv.Client(), srv.URL+"/ows")

	req := httptest.NewRequest(http.MethodGet, "/wfs?layer=demo:zones", nil)
	rr := httptest.NewRecorder()
	e.ForwardGetFeatureFormat(rr, req, model.QueryRequest{Layer: "demo:zones"}, "application/gml+xml")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "FeatureCollection") {
		t.Fatalf("body not streamed: %q", rr.Body.String())
	}
}

func TestForward_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connections now refused

	e, _ := New(testLogger(), http.DefaultClient, srv.URL+"/ows")

	req := httptest.NewRequest(http.MethodGet, "/wfs?layer=demo:zones", nil)
	rr := httptest.NewRecorder()
	e.ForwardGetFeature(rr, req, model.QueryRequest{Layer: "demo:zones"})

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestFetchLayer_PagingDedupsBoundaryFeatures(t *testing.T) {
	// servers without a stable sort can repeat features at page edges;
	// the merged layer must carry each id once
	pages := map[int]string{
		0: `{"type":"FeatureCollection","features":[
		  {"type":"Feature","id":"a","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}},
		  {"type":"Feature","id":"b","properties":{},"geometry":{"type":"Point","coordinates":[1,0]}}]}`,
		2: `{"type":"FeatureCollection","features":[
		  {"type":"Feature","id":"b","properties":{},"geometry":{"type":"Point","coordinates":[1,0]}},
		  {"type":"Feature","id":"c","properties":{},"geometry":{"type":"Point","coordinates":[2,0]}}]}`,
		4: `{"type":"FeatureCollection","features":[
		  {"type":"Feature","id":"d","properties":{},"geometry":{"type":"Point","coordinates":[3,0]}}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("startIndex"))
		fmt.Fprint(w, pages[start])
	}))
	defer srv.Close()

	e, _ := New(testLogger(), srv.Client(), srv.URL+"/ows")
	e.SetPageSize(2)

	l, err := e.FetchLayer(context.Background(), model.QueryRequest{Layer: "demo:zones"})
	if err != nil {
		t.Fatalf("FetchLayer: %v", err)
	}
	if l.Len() != 4 {
		t.Fatalf("features = %d, want 4 after id dedup", l.Len())
	}
	seen := map[any]bool{}
	for _, f := range l.FC.Features {
		if seen[f.ID] {
			t.Fatalf("id %v repeated in merged layer", f.ID)
		}
		seen[f.ID] = true
	}
}
