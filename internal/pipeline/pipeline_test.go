package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/place2dxf/internal/buildings"
	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/monitoring"
	"github.com/sells-group/place2dxf/internal/projection"
	"github.com/sells-group/place2dxf/pkg/geocode"
)

type fixture struct {
	geo   *mockGeocoder
	bldg  *mockBuildings
	roads *mockRoads
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{geo: &mockGeocoder{}, bldg: &mockBuildings{}, roads: &mockRoads{}, dir: t.TempDir()}
}

func (f *fixture) pipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	utm, err := projection.ParseEPSG("EPSG:32644")
	require.NoError(t, err)
	opts.OutputDir = f.dir
	return New(f.geo, utm, f.bldg, f.roads, opts)
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.geo.AssertExpectations(t)
	f.bldg.AssertExpectations(t)
	f.roads.AssertExpectations(t)
}

var lucknow = &geocode.Result{Latitude: 26.8467, Longitude: 80.9462, Source: "nominatim"}

func square(x, y, d float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{x, y, x + d, y, x + d, y + d, x, y + d, x, y}, []int{10})
}

func sampleBuildings() *buildings.FetchResult {
	mp := geom.NewMultiPolygonFlat(geom.XY, append(square(0, 0, 1).FlatCoords(), square(5, 5, 1).FlatCoords()...), [][]int{{10}, {20}})
	return &buildings.FetchResult{
		Buildings: []model.Building{{Geometry: square(494600, 2969400, 10)}, {Geometry: mp}},
		Source:    "extract",
	}
}

func sampleRoads() []model.Road {
	return []model.Road{{ID: 1, Highway: "primary", Geometry: geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 10})}}
}

func bboxAround(pt model.Point) any {
	return mock.MatchedBy(func(b model.BBox) bool { return b.Valid() && b.Contains(pt) })
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)
	pt := model.Point{Lat: lucknow.Latitude, Lon: lucknow.Longitude}
	f.geo.On("Geocode", mock.Anything, "Hazratganj Lucknow").Return(lucknow, nil).Once()
	f.bldg.On("Fetch", mock.Anything, bboxAround(pt)).Return(sampleBuildings(), nil).Once()
	f.roads.On("Fetch", mock.Anything, bboxAround(pt)).Return(sampleRoads(), nil).Once()

	reg := prometheus.NewRegistry()
	p := f.pipeline(t, Options{Metrics: monitoring.NewMetrics(reg)})

	res, err := p.Run(context.Background(), model.PlaceQuery{Place: "  Hazratganj Lucknow "})
	require.NoError(t, err)
	f.assertExpectations(t)

	assert.Equal(t, "Hazratganj_Lucknow.dxf", res.FileName)
	assert.Equal(t, filepath.Join(f.dir, "Hazratganj_Lucknow.dxf"), res.Path)
	assert.Equal(t, DefaultBuffer, res.Buffer)
	assert.Equal(t, "extract", res.BuildingSource)
	assert.Equal(t, 2, res.Buildings)
	assert.Equal(t, 3, res.BuildingLines, "one polyline per constituent polygon")
	assert.Equal(t, 1, res.RoadLines)

	names := make([]string, 0, len(res.Stages))
	for _, s := range res.Stages {
		names = append(names, s.Name)
		assert.Empty(t, s.Error)
	}
	assert.Equal(t, []string{StageGeocode, StageProject, StageBuildings, StageRoads, StageDXF}, names)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "\nPOLYLINE\n"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRun_BufferOverride(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Lucknow").Return(lucknow, nil)

	var small, large model.BBox
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(&buildings.FetchResult{Source: "extract"}, nil).
		Run(func(args mock.Arguments) { small = args.Get(1).(model.BBox) }).Once()
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(&buildings.FetchResult{Source: "extract"}, nil).
		Run(func(args mock.Arguments) { large = args.Get(1).(model.BBox) }).Once()
	f.roads.On("Fetch", mock.Anything, mock.Anything).Return([]model.Road{}, nil)

	p := f.pipeline(t, Options{})
	_, err := p.Run(context.Background(), model.PlaceQuery{Place: "Lucknow", Buffer: 100})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), model.PlaceQuery{Place: "Lucknow", Buffer: 1000})
	require.NoError(t, err)

	assert.Greater(t, large.MaxLon-large.MinLon, 9*(small.MaxLon-small.MinLon))
}

func TestRun_EmptyPlace(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t, Options{}).Run(context.Background(), model.PlaceQuery{Place: "   "})
	require.Error(t, err)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	f.geo.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRun_InvalidBuffer(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t, Options{}).Run(context.Background(), model.PlaceQuery{Place: "Lucknow", Buffer: -5})
	require.Error(t, err)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	f.geo.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRun_GeocodeNotFound(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Atlantis").
		Return(nil, failure.NotFound("geocode", `no results for "Atlantis"`)).Once()

	res, err := f.pipeline(t, Options{}).Run(context.Background(), model.PlaceQuery{Place: "Atlantis"})
	require.Error(t, err)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
	require.Len(t, res.Stages, 1)
	assert.NotEmpty(t, res.Stages[0].Error)
	f.bldg.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	f.roads.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)

	entries, _ := os.ReadDir(f.dir)
	assert.Empty(t, entries, "no drawing written")
}

func TestRun_BuildingsFail(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Lucknow").Return(lucknow, nil)
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(nil, failure.Remotef("buildings: archive", "archive not configured"))

	_, err := f.pipeline(t, Options{}).Run(context.Background(), model.PlaceQuery{Place: "Lucknow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive not configured")
	f.roads.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRun_RoadsFailAbort(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Lucknow").Return(lucknow, nil)
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(sampleBuildings(), nil)
	f.roads.On("Fetch", mock.Anything, mock.Anything).Return(nil, errors.New("overpass 504"))

	_, err := f.pipeline(t, Options{}).Run(context.Background(), model.PlaceQuery{Place: "Lucknow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overpass 504")

	entries, _ := os.ReadDir(f.dir)
	assert.Empty(t, entries)
}

func TestRun_ParallelFetch(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Lucknow").Return(lucknow, nil)
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(sampleBuildings(), nil).Once()
	f.roads.On("Fetch", mock.Anything, mock.Anything).Return(sampleRoads(), nil).Once()

	res, err := f.pipeline(t, Options{ParallelFetch: true}).Run(context.Background(), model.PlaceQuery{Place: "Lucknow"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.BuildingLines)
	assert.Equal(t, 1, res.RoadLines)
	assert.Len(t, res.Stages, 5)
	f.assertExpectations(t)
}

func TestRun_ParallelFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Lucknow").Return(lucknow, nil)
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(sampleBuildings(), nil)
	f.roads.On("Fetch", mock.Anything, mock.Anything).Return(nil, errors.New("overpass down"))

	_, err := f.pipeline(t, Options{ParallelFetch: true}).Run(context.Background(), model.PlaceQuery{Place: "Lucknow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overpass down")
}

func TestRun_EmptyFeaturesStillWritesDrawing(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Empty Field").Return(lucknow, nil)
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(&buildings.FetchResult{Source: "archive"}, nil)
	f.roads.On("Fetch", mock.Anything, mock.Anything).Return([]model.Road{}, nil)

	res, err := f.pipeline(t, Options{}).Run(context.Background(), model.PlaceQuery{Place: "Empty Field"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.BuildingLines)
	assert.FileExists(t, res.Path)
}

func TestRun_OverwritesSameName(t *testing.T) {
	f := newFixture(t)
	f.geo.On("Geocode", mock.Anything, "Lucknow").Return(lucknow, nil)
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(sampleBuildings(), nil).Once()
	f.bldg.On("Fetch", mock.Anything, mock.Anything).Return(&buildings.FetchResult{}, nil).Once()
	f.roads.On("Fetch", mock.Anything, mock.Anything).Return([]model.Road{}, nil)

	p := f.pipeline(t, Options{})
	first, err := p.Run(context.Background(), model.PlaceQuery{Place: "Lucknow"})
	require.NoError(t, err)
	second, err := p.Run(context.Background(), model.PlaceQuery{Place: "Lucknow"})
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "POLYLINE", "last writer wins")
}

func TestNew_Defaults(t *testing.T) {
	p := New(nil, nil, nil, nil, Options{})
	assert.Equal(t, os.TempDir(), p.OutputDir())
	assert.Equal(t, DefaultBuffer, p.opts.DefaultBuffer)
}
