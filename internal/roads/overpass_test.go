package roads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/fetcher"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/projection"
)

var box = model.BBox{MinLon: 80.9437, MinLat: 26.8444, MaxLon: 80.9487, MaxLat: 26.8490}

func newSource(t *testing.T, endpoint string, timeout time.Duration) *OverpassSource {
	t.Helper()
	utm, err := projection.ParseEPSG("EPSG:32644")
	require.NoError(t, err)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second})
	return NewOverpassSource(f, utm, endpoint, timeout)
}

func TestQuery(t *testing.T) {
	assert.Equal(t,
		`[out:json][timeout:25]way["highway"](26.844400,80.943700,26.849000,80.948700);out geom;`,
		Query(box))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, Query(box), r.FormValue("data"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"way","id":3,"tags":{"highway":"residential"},"geometry":[{"lat":26.845,"lon":80.945},{"lat":26.8455,"lon":80.9455}]},
			{"type":"node","id":9,"lat":26.845,"lon":80.945},
			{"type":"way","id":1,"tags":{"highway":"primary"},"geometry":[{"lat":26.845,"lon":80.945},{"lat":26.846,"lon":80.946},{"lat":26.847,"lon":80.946}]},
			{"type":"way","id":2,"tags":{"highway":"service"},"geometry":[{"lat":26.845,"lon":80.945}]}
		]}`))
	}))
	defer srv.Close()

	roads, err := newSource(t, srv.URL, 0).Fetch(context.Background(), box)
	require.NoError(t, err)
	require.Len(t, roads, 2)
	assert.Equal(t, int64(1), roads[0].ID)
	assert.Equal(t, "primary", roads[0].Highway)
	assert.Equal(t, 3, roads[0].Geometry.NumCoords())
	assert.Equal(t, 32644, roads[0].Geometry.SRID())
	assert.Greater(t, roads[0].Geometry.Coord(0).X(), 400000.0)
	assert.Equal(t, int64(3), roads[1].ID)
}

func TestFetch_NoWays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"version":0.6,"elements":[]}`))
	}))
	defer srv.Close()

	roads, err := newSource(t, srv.URL, 0).Fetch(context.Background(), box)
	require.NoError(t, err)
	assert.NotNil(t, roads)
	assert.Empty(t, roads)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }, "unexpected status 429"},
		{"client error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) }, "400 Bad Request"},
		{"json", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<osm/>")) }, "overpass engine error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newSource(t, srv.URL, 0).Fetch(context.Background(), box)
			require.Error(t, err)
			assert.Equal(t, failure.KindRemote, failure.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newSource(t, srv.URL, 50*time.Millisecond).Fetch(context.Background(), box)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestNewOverpassSource_Defaults(t *testing.T) {
	s := NewOverpassSource(nil, nil, "", 0)
	assert.Equal(t, DefaultOverpassURL, s.endpoint)
	assert.Equal(t, "https://example.test/api", NewOverpassSource(nil, nil, "https://example.test/api/", 0).endpoint)
	assert.Equal(t, 20*time.Second, s.timeout)
}
