package buildings

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// readShapefile decodes every polygon record of a shapefile into c. The
// extract publishes shapefiles in WGS84; a .prj naming a projected system
// is rejected.
func readShapefile(path string, c *collector) error {
	if err := checkPRJ(path); err != nil {
		return err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return eris.Wrapf(err, "buildings: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			c.skipped++
			continue
		}
		g := shapeToGeom(poly)
		if g == nil {
			c.skipped++
			continue
		}
		if err := c.add(g, srsWGS84); err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil {
		return eris.Wrapf(err, "buildings: read shapefile %s", path)
	}

	zap.L().Debug("buildings: read shapefile",
		zap.String("path", path),
		zap.Int("buildings", len(c.buildings)),
		zap.Int("skipped", c.skipped),
	)
	return nil
}

func checkPRJ(shpPath string) error {
	prj := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(strings.TrimSpace(strings.ToUpper(string(data))), "PROJCS") {
		return eris.New("buildings: projected shapefile not supported")
	}
	return nil
}

// shapeToGeom groups the rings of a shapefile polygon into polygons.
// Clockwise rings start a new polygon; counter-clockwise rings are holes
// of the polygon before them. A single group yields *geom.Polygon.
func shapeToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("buildings: skipping degenerate shapefile ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if signedArea(flat) < 0 || len(polys) == 0 {
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(ring); err != nil {
				continue
			}
			polys = append(polys, poly)
			continue
		}
		if err := polys[len(polys)-1].Push(ring); err != nil {
			zap.L().Debug("buildings: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
		}
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, poly := range polys {
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	return mp
}

// signedArea is the shoelace area of a flat XY ring; negative when the ring
// runs clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := range n {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
