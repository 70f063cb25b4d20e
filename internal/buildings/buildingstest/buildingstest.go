// Package buildingstest writes GeoPackage and ZIP fixtures for tests of the
// building sources.
package buildingstest

import (
	"archive/zip"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"
)

// EncodeGeometry builds a little-endian GeoPackage geometry blob with an
// XY envelope.
func EncodeGeometry(t testing.TB, g geom.T, srs int) []byte {
	t.Helper()
	body, err := wkb.Marshal(g, wkb.NDR)
	require.NoError(t, err)

	// flags: little endian, envelope indicator 1 (minx, maxx, miny, maxy).
	header := make([]byte, 8+32)
	copy(header, "GP")
	header[3] = 0x01 | 1<<1
	binary.LittleEndian.PutUint32(header[4:8], uint32(int32(srs)))
	b := g.Bounds()
	for i, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		binary.LittleEndian.PutUint64(header[8+8*i:], math.Float64bits(v))
	}
	return append(header, body...)
}

// EmptyGeometry is a header-only blob with the empty flag set.
func EmptyGeometry(srs int) []byte {
	header := make([]byte, 8)
	copy(header, "GP")
	header[3] = 0x01 | 0x10
	binary.LittleEndian.PutUint32(header[4:8], uint32(int32(srs)))
	return header
}

const schema = `
CREATE TABLE gpkg_contents (
	table_name TEXT PRIMARY KEY,
	data_type  TEXT NOT NULL,
	identifier TEXT,
	srs_id     INTEGER
);
CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL
);`

// WriteGeoPackage creates a GeoPackage at path with one feature table
// "building" holding blobs in insertion order.
func WriteGeoPackage(t testing.TB, path string, srs int, blobs ...[]byte) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	_, err = db.Exec(schema)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE attributes (id INTEGER PRIMARY KEY);
INSERT INTO gpkg_contents VALUES ('attributes', 'attributes', 'attributes', NULL);`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE building (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom BLOB, id TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO gpkg_contents VALUES ('building', 'features', 'building', ?)`, srs)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO gpkg_geometry_columns VALUES ('building', 'geom', 'GEOMETRY', ?, 0, 0)`, srs)
	require.NoError(t, err)

	for _, blob := range blobs {
		_, err = db.Exec(`INSERT INTO building (geom) VALUES (?)`, blob)
		require.NoError(t, err)
	}
}

// Entry is one file of a ZIP fixture.
type Entry struct {
	Name string
	// Path is copied into the archive; Data is used when Path is empty.
	Path string
	Data []byte
}

// WriteZIP writes entries to zipPath in order.
func WriteZIP(t testing.TB, zipPath string, entries ...Entry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(zipPath), 0o755))
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, e := range entries {
		data := e.Data
		if e.Path != "" {
			data, err = os.ReadFile(e.Path)
			require.NoError(t, err)
		}
		fw, err := w.Create(e.Name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

// GeoPackageZIP writes a GeoPackage of polygons under dir and returns the
// bytes of a ZIP holding it as "buildings.gpkg".
func GeoPackageZIP(t testing.TB, dir string, srs int, geoms ...geom.T) []byte {
	t.Helper()
	blobs := make([][]byte, 0, len(geoms))
	for _, g := range geoms {
		blobs = append(blobs, EncodeGeometry(t, g, srs))
	}
	gpkg := filepath.Join(dir, "fixture.gpkg")
	WriteGeoPackage(t, gpkg, srs, blobs...)

	zipPath := filepath.Join(dir, "fixture.zip")
	WriteZIP(t, zipPath, Entry{Name: "buildings.gpkg", Path: gpkg})
	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	return data
}

// Square returns a closed WGS84 square polygon of side d degrees with its
// south-west corner at lon, lat.
func Square(lon, lat, d float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		lon, lat, lon + d, lat, lon + d, lat + d, lon, lat + d, lon, lat,
	}, []int{10})
}
