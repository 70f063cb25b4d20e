package buildings

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/projection"
)

// lucknowBox is roughly the 250 m buffer around central Lucknow.
var lucknowBox = model.BBox{MinLon: 80.9437, MinLat: 26.8444, MaxLon: 80.9487, MaxLat: 26.8490}

func targetUTM(t *testing.T) *projection.UTM {
	t.Helper()
	u, err := projection.ParseEPSG("EPSG:32644")
	require.NoError(t, err)
	return u
}

type stubSource struct {
	name  string
	res   *FetchResult
	err   error
	calls []model.BBox
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context, bbox model.BBox) (*FetchResult, error) {
	s.calls = append(s.calls, bbox)
	return s.res, s.err
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func readBytes(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
