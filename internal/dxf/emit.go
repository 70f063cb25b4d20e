package dxf

import (
	"strings"
	"unicode"

	"github.com/twpayne/go-geom"
	"golang.org/x/text/unicode/norm"
	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/model"
)

// Layer names of a generated drawing.
const (
	LayerBuildings = "BLDG"
	LayerRoads     = "ROAD"
)

// Emit builds a drawing with one closed polyline per building exterior ring
// and one open polyline per road. Interior rings are not drawn.
func Emit(buildings []model.Building, roads []model.Road) *Document {
	d := NewDocument()
	_ = d.AddLayer(LayerBuildings, ColorWhite)
	_ = d.AddLayer(LayerRoads, ColorRed)

	for _, b := range buildings {
		switch g := b.Geometry.(type) {
		case *geom.Polygon:
			d.addExterior(g)
		case *geom.MultiPolygon:
			for i := range g.NumPolygons() {
				d.addExterior(g.Polygon(i))
			}
		}
	}

	for _, r := range roads {
		if r.Geometry == nil {
			continue
		}
		_ = d.AddPolyline(LayerRoads, points(r.Geometry.FlatCoords(), r.Geometry.Stride()), false)
	}

	zap.L().Info("dxf: built drawing",
		zap.Int(LayerBuildings, d.Count(LayerBuildings)),
		zap.Int(LayerRoads, d.Count(LayerRoads)),
	)
	return d
}

func (d *Document) addExterior(p *geom.Polygon) {
	if p.NumLinearRings() == 0 {
		return
	}
	ring := p.LinearRing(0)
	pts := points(ring.FlatCoords(), ring.Stride())
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	_ = d.AddPolyline(LayerBuildings, pts, true)
}

func points(flat []float64, stride int) [][2]float64 {
	if stride < 2 {
		return nil
	}
	out := make([][2]float64, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, [2]float64{flat[i], flat[i+1]})
	}
	return out
}

// FileName derives the drawing's file name from a place: NFC-normalised,
// spaces become underscores, path separators and control characters are
// removed.
func FileName(place string) string {
	s := norm.NFC.String(strings.TrimSpace(place))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r == '/' || r == '\\':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		s = "place"
	}
	return s + ".dxf"
}
