package buildings

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/projection"
)

// srsWGS84 is the geographic system extracts and the archive publish in.
const srsWGS84 = 4326

// toTarget brings a decoded geometry into the target system. GeoPackage
// "undefined" systems (0 and -1) are read as WGS84.
func toTarget(utm *projection.UTM, g geom.T, srid int) (geom.T, error) {
	switch srid {
	case srsWGS84, 0, -1:
		return utm.ProjectGeometry(g)
	case utm.EPSG():
		return utm.StampSRID(g)
	default:
		return nil, eris.Errorf("buildings: unsupported srs %d", srid)
	}
}

// collector accumulates buildings from decoded geometries.
type collector struct {
	utm       *projection.UTM
	buildings []model.Building
	skipped   int
}

// add converts g and keeps it when polygonal. Non-polygonal or empty
// geometries are counted as skipped; a geometry in an unsupported system
// is an error.
func (c *collector) add(g geom.T, srid int) error {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			c.skipped++
			return nil
		}
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			c.skipped++
			return nil
		}
	default:
		c.skipped++
		return nil
	}

	projected, err := toTarget(c.utm, g, srid)
	if err != nil {
		return err
	}
	b, err := model.NewBuilding(projected)
	if err != nil {
		return err
	}
	c.buildings = append(c.buildings, b)
	return nil
}

func (c *collector) result(source string) *FetchResult {
	return &FetchResult{Buildings: c.buildings, Source: source, Skipped: c.skipped}
}
