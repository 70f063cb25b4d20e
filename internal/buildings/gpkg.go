package buildings

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const featureLayerQuery = `
SELECT c.table_name, g.column_name, COALESCE(g.srs_id, c.srs_id, 0)
FROM gpkg_contents c
JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
WHERE c.data_type = 'features'
ORDER BY c.rowid
LIMIT 1`

// readGeoPackage decodes the geometries of the first feature table of a
// GeoPackage into c.
func readGeoPackage(ctx context.Context, path string, c *collector) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	var table, column string
	var layerSRS int
	err = db.QueryRowContext(ctx, featureLayerQuery).Scan(&table, &column, &layerSRS)
	if eris.Is(err, sql.ErrNoRows) {
		return eris.New("gpkg: no feature table")
	}
	if err != nil {
		return eris.Wrap(err, "gpkg: read contents")
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", quoteIdent(column), quoteIdent(table)))
	if err != nil {
		return eris.Wrapf(err, "gpkg: query %s", table)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return eris.Wrap(err, "gpkg: scan geometry")
		}
		if len(blob) == 0 {
			c.skipped++
			continue
		}
		g, srid, err := DecodeGeometry(blob)
		if err != nil {
			return err
		}
		if g == nil {
			c.skipped++
			continue
		}
		if srid == 0 {
			srid = layerSRS
		}
		if err := c.add(g, srid); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "gpkg: iterate rows")
	}

	zap.L().Debug("buildings: read geopackage",
		zap.String("path", path),
		zap.String("table", table),
		zap.Int("srs", layerSRS),
		zap.Int("buildings", len(c.buildings)),
	)
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

const (
	gpkgFlagLittleEndian = 0x01
	gpkgFlagEmpty        = 0x10
)

// envelopeSizes maps the header's envelope indicator to its byte length.
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// DecodeGeometry parses a GeoPackage geometry blob: the "GP" header
// carrying the srs id and optional envelope, followed by WKB. An empty
// geometry returns a nil geometry and no error.
func DecodeGeometry(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: bad geometry header")
	}
	flags := blob[3]

	var order binary.ByteOrder = binary.BigEndian
	if flags&gpkgFlagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	indicator := int(flags>>1) & 0x07
	if indicator >= len(envelopeSizes) {
		return nil, 0, eris.Errorf("gpkg: bad envelope indicator %d", indicator)
	}
	offset := 8 + envelopeSizes[indicator]
	if len(blob) < offset {
		return nil, 0, eris.New("gpkg: truncated geometry header")
	}

	if flags&gpkgFlagEmpty != 0 {
		return nil, srid, nil
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, srid, nil
}
