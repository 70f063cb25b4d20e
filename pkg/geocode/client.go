// Package geocode resolves free-text place names to WGS84 coordinates via a
// Nominatim-compatible search service.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/place2dxf/internal/failure"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client geocodes place names.
type Client interface {
	// Geocode returns the first match for place.
	Geocode(ctx context.Context, place string) (*Result, error)
}

// Result holds the geocoding output for a place.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Source      string
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at another Nominatim-compatible service.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithEmail sets the contact address sent with every request, as the
// Nominatim usage policy asks.
func WithEmail(email string) Option {
	return func(g *geocoder) {
		g.email = email
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second limit for lookups.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	email      string
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
		userAgent:  "place2dxf/1.0",
		timeout:    10 * time.Second,
		limiter:    rate.NewLimiter(1, 1), // Nominatim policy: at most 1 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves place to its first Nominatim match.
func (g *geocoder) Geocode(ctx context.Context, place string) (*Result, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, failure.Validation("geocode: empty place")
	}
	return g.search(ctx, place)
}
