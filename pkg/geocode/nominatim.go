package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/failure"
)

const opGeocode = "geocode"

// nominatimResult is one element of the /search JSON array. Nominatim
// encodes coordinates as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *geocoder) searchURL(place string) string {
	params := url.Values{
		"q":      {place},
		"format": {"json"},
		"limit":  {"1"},
	}
	if g.email != "" {
		params.Set("email", g.email)
	}
	return g.baseURL + "/search?" + params.Encode()
}

func (g *geocoder) search(ctx context.Context, place string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, failure.Remote(opGeocode, eris.Wrap(err, "rate limit"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.searchURL(place), nil)
	if err != nil {
		return nil, failure.Remote(opGeocode, eris.Wrap(err, "build request"))
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if failure.IsTimeout(err) {
			return nil, failure.Remote(opGeocode, eris.Wrap(err, "request timed out"))
		}
		return nil, failure.Remote(opGeocode, eris.Wrap(err, "request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, failure.Remotef(opGeocode, "nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, failure.Remote(opGeocode, eris.Wrap(err, "read body"))
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, failure.Remote(opGeocode, eris.Wrap(err, "parse response"))
	}

	if len(results) == 0 {
		return nil, failure.NotFound(opGeocode, "no results for "+strconv.Quote(place))
	}

	first := results[0]
	lat, err := strconv.ParseFloat(first.Lat, 64)
	if err != nil {
		return nil, failure.Remote(opGeocode, eris.Wrapf(err, "parse lat %q", first.Lat))
	}
	lon, err := strconv.ParseFloat(first.Lon, 64)
	if err != nil {
		return nil, failure.Remote(opGeocode, eris.Wrapf(err, "parse lon %q", first.Lon))
	}

	zap.L().Info("geocode: resolved place",
		zap.String("place", place),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
	)

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: first.DisplayName,
		Source:      "nominatim",
	}, nil
}
