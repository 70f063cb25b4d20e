package buildings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/projection"
)

const opArchive = "buildings: archive"

// DefaultRelease is the Overture release scanned when none is configured.
const DefaultRelease = "2025-06-25.0"

// Querier is the subset of *pgxpool.Pool the archive source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ArchiveOptions configures an ArchiveSource.
type ArchiveOptions struct {
	Release string
	Timeout time.Duration
}

// ArchiveSource scans the building theme of a columnar release through a
// Postgres-wire SQL endpoint over the parquet files.
type ArchiveSource struct {
	db   Querier
	utm  *projection.UTM
	opts ArchiveOptions
}

// NewArchiveSource creates an ArchiveSource. A nil db yields a source that
// fails every fetch as unconfigured.
func NewArchiveSource(db Querier, utm *projection.UTM, opts ArchiveOptions) *ArchiveSource {
	if opts.Release == "" {
		opts.Release = DefaultRelease
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &ArchiveSource{db: db, utm: utm, opts: opts}
}

// Name implements Source.
func (s *ArchiveSource) Name() string { return "archive" }

// ReleasePath is the glob of building parquet files for a release.
func ReleasePath(release string) string {
	return "s3://overturemaps-us-west-2/release/" + release + "/theme=buildings/type=building/*"
}

// query builds the scan. The bbox struct predicates let the engine skip row
// groups; $1..$4 are minLon, minLat, maxLon, maxLat.
func (s *ArchiveSource) query() string {
	path := strings.ReplaceAll(ReleasePath(s.opts.Release), "'", "''")
	return fmt.Sprintf(`SELECT ST_AsWKB(geometry) AS geometry
FROM read_parquet('%s', hive_partitioning = 1)
WHERE bbox.xmin <= $3 AND bbox.xmax >= $1
  AND bbox.ymin <= $4 AND bbox.ymax >= $2`, path)
}

// Fetch implements Source.
func (s *ArchiveSource) Fetch(ctx context.Context, bbox model.BBox) (*FetchResult, error) {
	if s.db == nil {
		return nil, failure.Remotef(opArchive, "archive not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	zap.L().Info("buildings: scanning archive",
		zap.String("release", s.opts.Release),
		zap.String("bbox", bbox.XYString()),
	)

	rows, err := s.db.Query(ctx, s.query(), bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat)
	if err != nil {
		return nil, failure.Remote(opArchive, eris.Wrap(err, "query"))
	}
	defer rows.Close()

	c := &collector{utm: s.utm}
	var outside int
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, failure.Remote(opArchive, eris.Wrap(err, "scan"))
		}
		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, failure.Remote(opArchive, eris.Wrap(err, "decode wkb"))
		}
		b := g.Bounds()
		if b.IsEmpty() || !bbox.Intersects(b.Min(0), b.Min(1), b.Max(0), b.Max(1)) {
			outside++
			continue
		}
		if err := c.add(g, srsWGS84); err != nil {
			return nil, failure.Remote(opArchive, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, failure.Remote(opArchive, eris.Wrap(err, "iterate rows"))
	}

	zap.L().Info("buildings: archive scan complete",
		zap.Int("buildings", len(c.buildings)),
		zap.Int("outside_bbox", outside),
		zap.Int("skipped", c.skipped),
	)
	return c.result(s.Name()), nil
}
