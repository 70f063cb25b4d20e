package model

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Building is a footprint in the target projected system. Geometry is
// either *geom.Polygon or *geom.MultiPolygon; NewBuilding enforces this.
type Building struct {
	Geometry geom.T
}

// NewBuilding wraps a polygonal geometry as a Building.
func NewBuilding(g geom.T) (Building, error) {
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return Building{Geometry: g}, nil
	case nil:
		return Building{}, eris.New("model: nil building geometry")
	default:
		return Building{}, eris.Errorf("model: unsupported building geometry %T", g)
	}
}

// Parts returns the number of constituent polygons.
func (b Building) Parts() int {
	switch g := b.Geometry.(type) {
	case *geom.Polygon:
		return 1
	case *geom.MultiPolygon:
		return g.NumPolygons()
	default:
		return 0
	}
}

// Road is one OSM way tagged highway=*, in the target projected system.
type Road struct {
	ID       int64            `json:"id"`
	Highway  string           `json:"highway"`
	Geometry *geom.LineString `json:"-"`
}
