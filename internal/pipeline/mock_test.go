package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/place2dxf/internal/buildings"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/pkg/geocode"
)

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, place string) (*geocode.Result, error) {
	args := m.Called(ctx, place)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- Building Source Mock ---

type mockBuildings struct {
	mock.Mock
}

func (m *mockBuildings) Name() string { return "mock" }

func (m *mockBuildings) Fetch(ctx context.Context, bbox model.BBox) (*buildings.FetchResult, error) {
	args := m.Called(ctx, bbox)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*buildings.FetchResult), args.Error(1)
}

// --- Road Source Mock ---

type mockRoads struct {
	mock.Mock
}

func (m *mockRoads) Fetch(ctx context.Context, bbox model.BBox) ([]model.Road, error) {
	args := m.Called(ctx, bbox)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Road), args.Error(1)
}
