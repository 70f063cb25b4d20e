package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place2dxf/internal/failure"
)

func newTestClient(srvURL string, opts ...Option) Client {
	base := []Option{WithBaseURL(srvURL), WithRateLimit(0)}
	return NewClient(append(base, opts...)...)
}

func TestGeocode_FirstMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Lucknow", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "ops@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "place2dxf-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"lat": "26.8381", "lon": "80.9346", "display_name": "Lucknow, Uttar Pradesh, India"},
			{"lat": "1", "lon": "2", "display_name": "other"}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithEmail("ops@example.com"), WithUserAgent("place2dxf-test"))
	res, err := c.Geocode(context.Background(), "  Lucknow ")
	require.NoError(t, err)
	assert.InDelta(t, 26.8381, res.Latitude, 1e-9)
	assert.InDelta(t, 80.9346, res.Longitude, 1e-9)
	assert.Equal(t, "Lucknow, Uttar Pradesh, India", res.DisplayName)
	assert.Equal(t, "nominatim", res.Source)
}

func TestGeocode_NoEmailParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["email"]
		assert.False(t, ok)
		_, _ = io.WriteString(w, `[{"lat":"1","lon":"2"}]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "x")
	require.NoError(t, err)
}

func TestGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
	assert.Contains(t, err.Error(), `no results for "Atlantis"`)
}

func TestGeocode_EmptyPlace(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestGeocode_ServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "Lucknow")
	require.Error(t, err)
	assert.Equal(t, failure.KindRemote, failure.KindOf(err))
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, int32(1), calls.Load(), "no retry")
}

func TestGeocode_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":"Unable to geocode"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "Lucknow")
	require.Error(t, err)
	assert.Equal(t, failure.KindRemote, failure.KindOf(err))
	assert.Contains(t, err.Error(), "parse response")
}

func TestGeocode_BadCoordinate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat":"north","lon":"2"}]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, failure.KindRemote, failure.KindOf(err))
	assert.Contains(t, err.Error(), "parse lat")
}

func TestGeocode_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.Geocode(context.Background(), "Lucknow")
	require.Error(t, err)
	assert.Equal(t, failure.KindRemote, failure.KindOf(err))
	assert.True(t, failure.IsTimeout(err))
}

func TestGeocode_DefaultBaseURLWithRewrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		_, _ = io.WriteString(w, `[{"lat":"10.5","lon":"20.25"}]`)
	}))
	defer srv.Close()

	hc, rt := newRewriteClient(srv.URL)
	c := NewClient(WithHTTPClient(hc), WithRateLimit(0))
	res, err := c.Geocode(context.Background(), "Somewhere")
	require.NoError(t, err)
	assert.InDelta(t, 10.5, res.Latitude, 1e-9)
	assert.InDelta(t, 20.25, res.Longitude, 1e-9)
	require.Len(t, rt.seen, 1)
	assert.Contains(t, rt.seen[0], DefaultBaseURL+"/search?")
}

func TestNewClient_Defaults(t *testing.T) {
	g := NewClient().(*geocoder)
	assert.Equal(t, DefaultBaseURL, g.baseURL)
	assert.Equal(t, 10*time.Second, g.timeout)
	assert.InDelta(t, 1.0, float64(g.limiter.Limit()), 1e-9)

	g = NewClient(WithBaseURL("http://local/"), WithRateLimit(2.5)).(*geocoder)
	assert.Equal(t, "http://local", g.baseURL)
	assert.InDelta(t, 2.5, float64(g.limiter.Limit()), 1e-9)
	assert.Equal(t, 2, g.limiter.Burst())
}
