// Package roads fetches highway ways from an Overpass API endpoint.
package roads

import (
	"context"
	"slices"
	"strings"
	"time"

	overpass "github.com/cwbudde/go-overpass"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/projection"
)

const opOverpass = "roads: overpass"

// DefaultOverpassURL is the public interpreter endpoint used by default.
const DefaultOverpassURL = "https://overpass.kumi.systems/api/interpreter"

// Source fetches roads intersecting a geographic box.
type Source interface {
	Fetch(ctx context.Context, bbox model.BBox) ([]model.Road, error)
}

// OverpassSource queries `way[highway]` with inline geometry.
type OverpassSource struct {
	client   overpass.Client
	utm      *projection.UTM
	endpoint string
	timeout  time.Duration
}

// NewOverpassSource creates an OverpassSource that sends its requests
// through doer. An empty endpoint selects DefaultOverpassURL. Retries are
// left to doer.
func NewOverpassSource(doer overpass.HTTPClient, utm *projection.UTM, endpoint string, timeout time.Duration) *OverpassSource {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OverpassSource{
		client:   overpass.NewWithRetry(endpoint, 1, doer, overpass.RetryConfig{}),
		utm:      utm,
		endpoint: endpoint,
		timeout:  timeout,
	}
}

// Query returns the Overpass QL for highway ways in bbox.
func Query(bbox model.BBox) string {
	return overpass.NewQueryBuilder().
		Timeout(25).
		Way().
		TagExists("highway").
		BBox(bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon).
		OutputGeom().
		Build()
}

// Fetch implements Source.
func (s *OverpassSource) Fetch(ctx context.Context, bbox model.BBox) ([]model.Road, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.QueryContext(ctx, Query(bbox))
	if err != nil {
		if failure.IsTimeout(err) {
			return nil, failure.Remote(opOverpass, eris.Wrap(err, "request timed out"))
		}
		return nil, failure.Remote(opOverpass, err)
	}

	ids := make([]int64, 0, len(res.Ways))
	for id := range res.Ways {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	roads := make([]model.Road, 0, len(ids))
	var skipped int
	for _, id := range ids {
		way := res.Ways[id]
		if len(way.Geometry) < 2 {
			skipped++
			continue
		}
		flat := make([]float64, 0, 2*len(way.Geometry))
		for _, pt := range way.Geometry {
			flat = append(flat, pt.Lon, pt.Lat)
		}
		g, err := s.utm.ProjectGeometry(geom.NewLineStringFlat(geom.XY, flat))
		if err != nil {
			return nil, failure.Remote(opOverpass, err)
		}
		roads = append(roads, model.Road{
			ID:       id,
			Highway:  way.Tags["highway"],
			Geometry: g.(*geom.LineString),
		})
	}

	zap.L().Info("roads: fetched ways",
		zap.Int("roads", len(roads)),
		zap.Int("skipped", skipped),
	)
	return roads, nil
}
