package projection

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ProjectGeometry returns a copy of g with every WGS84 coordinate projected
// into the zone. The result carries the zone's EPSG code as its SRID.
// Only the first two ordinates are transformed; Z and M pass through.
func (u *UTM) ProjectGeometry(g geom.T) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		flat := u.projectFlat(t.FlatCoords(), t.Stride())
		return geom.NewPolygonFlat(t.Layout(), flat, t.Ends()).SetSRID(u.EPSG()), nil
	case *geom.MultiPolygon:
		flat := u.projectFlat(t.FlatCoords(), t.Stride())
		return geom.NewMultiPolygonFlat(t.Layout(), flat, t.Endss()).SetSRID(u.EPSG()), nil
	case *geom.LineString:
		flat := u.projectFlat(t.FlatCoords(), t.Stride())
		return geom.NewLineStringFlat(t.Layout(), flat).SetSRID(u.EPSG()), nil
	case nil:
		return nil, eris.New("projection: nil geometry")
	default:
		return nil, eris.Errorf("projection: unsupported geometry %T", g)
	}
}

// StampSRID tags an already-projected geometry with the zone's SRID.
func (u *UTM) StampSRID(g geom.T) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.SetSRID(u.EPSG()), nil
	case *geom.MultiPolygon:
		return t.SetSRID(u.EPSG()), nil
	case *geom.LineString:
		return t.SetSRID(u.EPSG()), nil
	default:
		return nil, eris.Errorf("projection: unsupported geometry %T", g)
	}
}

func (u *UTM) projectFlat(src []float64, stride int) []float64 {
	out := make([]float64, len(src))
	copy(out, src)
	for i := 0; i+1 < len(out); i += stride {
		out[i], out[i+1] = u.Forward(out[i], out[i+1])
	}
	return out
}
