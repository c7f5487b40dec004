// Package executor coordinates executing upstream WFS requests and
// streaming responses.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geoflow/internal/core/model"
	"github.com/mohammed-shakir/geoflow/internal/core/observability"
	"github.com/mohammed-shakir/geoflow/internal/core/ogc"
	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/vector"
)

type Interface interface {
	FetchGetFeature(ctx context.Context, q model.QueryRequest) ([]byte, string, error)
	FetchLayer(ctx context.Context, q model.QueryRequest) (*vector.Layer, error)
	ForwardGetFeature(w http.ResponseWriter, r *http.Request, q model.QueryRequest)
	ForwardGetFeatureFormat(w http.ResponseWriter, r *http.Request, q model.QueryRequest, accept string)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	owsURL   *url.URL
	pageSize int
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, ows string) (*Executor, error) {
	u, err := url.Parse(ows)
	if err != nil {
		return nil, fmt.Errorf("parse ows url: %w", err)
	}
	return &Executor{
		logger:   logger,
		client:   client,
		owsURL:   u,
		startNow: time.Now,
	}, nil
}

// SetPageSize makes FetchLayer page through results count rows at a
// time. Zero fetches everything in one request.
func (e *Executor) SetPageSize(n int) { e.pageSize = n }

// ForwardWFS proxies a wfs request to the upstream /ows endpoint and
// streams the response
func (e *Executor) ForwardWFS(_ context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest) {
	e.forward(w, r, q, "application/json")
}

func (e *Executor) ForwardGetFeature(w http.ResponseWriter, r *http.Request, q model.QueryRequest) {
	e.ForwardWFS(r.Context(), w, r, q)
}

func (e *Executor) ForwardGetFeatureFormat(w http.ResponseWriter, r *http.Request, q model.QueryRequest, accept string) {
	if strings.TrimSpace(accept) == "" {
		accept = "application/json"
	}
	e.forward(w, r, q, accept)
}

func (e *Executor) forward(w http.ResponseWriter, r *http.Request, q model.QueryRequest, accept string) {
	params := ogc.BuildGetFeatureParamsFormat(q, accept)
	start := e.startNow()

	rt := http.RoundTripper(http.DefaultTransport)
	if e.client != nil && e.client.Transport != nil {
		rt = e.client.Transport
	}

	proxy := &httputil.ReverseProxy{
		Transport: rt,

		Rewrite: func(p *httputil.ProxyRequest) {
			p.Out.URL.Scheme = e.owsURL.Scheme
			p.Out.URL.Host = e.owsURL.Host
			p.Out.URL.Path = e.owsURL.Path
			p.Out.URL.RawPath = e.owsURL.EscapedPath()
			p.Out.URL.RawQuery = params.Encode()
			p.Out.Host = e.owsURL.Host
			p.Out.Header.Set("Accept", accept)
			p.SetXForwarded()
		},

		ModifyResponse: func(resp *http.Response) error {
			dur := time.Since(start)
			e.logger.Debug("forward done",
				"status", resp.StatusCode,
				"duration", dur.String())
			observability.ObserveUpstreamLatency("wfs", dur.Seconds())
			return nil
		},

		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			e.logger.Error("reverse proxy error", "err", err)
			http.Error(w, "upstream proxy error: "+err.Error(), http.StatusBadGateway)
		},
	}

	e.logger.Debug("forward WFS GetFeature",
		"layer", q.Layer, "accept", accept, "wfs_ows", e.owsURL.String())

	proxy.ServeHTTP(w, r)
}

func (e *Executor) FetchGetFeature(ctx context.Context, q model.QueryRequest) ([]byte, string, error) {
	params := ogc.BuildGetFeatureParams(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.owsURL.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	u := *e.owsURL
	u.RawQuery = params.Encode()
	req.URL = &u
	req.Host = e.owsURL.Host
	req.Header.Set("Accept", "application/json")

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("wfs", dur.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return b, resp.Header.Get("Content-Type"), nil
}

// FetchLayer pulls a whole feature type into a layer, paging when a page
// size is set. Pages are merged with id dedup because servers repeat
// boundary features across pages. WFS GetFeature answers in the requested
// bbox SRID, so the layer comes back as EPSG:4326.
func (e *Executor) FetchLayer(ctx context.Context, q model.QueryRequest) (*vector.Layer, error) {
	if e.pageSize <= 0 {
		l := vector.New(q.Layer, crs.EPSG(4326))
		body, _, err := e.FetchGetFeature(ctx, q)
		if err != nil {
			return nil, err
		}
		fc, err := geojson.UnmarshalFeatureCollection(body)
		if err != nil {
			return nil, fmt.Errorf("parse upstream geojson: %w", err)
		}
		l.FC = fc
		return l, nil
	}

	var pages []*vector.Layer
	page := q
	page.Count = e.pageSize
	for offset := 0; ; offset += e.pageSize {
		page.StartIndex = offset
		body, _, err := e.FetchGetFeature(ctx, page)
		if err != nil {
			return nil, err
		}
		fc, err := geojson.UnmarshalFeatureCollection(body)
		if err != nil {
			return nil, fmt.Errorf("parse upstream geojson: %w", err)
		}
		pl := vector.New(q.Layer, crs.EPSG(4326))
		pl.FC = fc
		pages = append(pages, pl)
		if len(fc.Features) < e.pageSize {
			break
		}
	}
	merged, err := vector.Merge(q.Layer, pages, vector.MergeOptions{DedupByID: true})
	if err != nil {
		return nil, fmt.Errorf("merge pages: %w", err)
	}
	return merged, nil
}
