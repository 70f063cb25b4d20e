package projection

import (
	"math"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
)

// AOI is the square area of interest around a point: axis aligned in the
// projected system, plus its geographic envelope.
type AOI struct {
	CenterX float64
	CenterY float64
	Buffer  float64

	MinX, MinY, MaxX, MaxY float64

	BBox model.BBox
}

// Corners returns the four projected corners (SW, SE, NE, NW).
func (a AOI) Corners() [4][2]float64 {
	return [4][2]float64{
		{a.MinX, a.MinY},
		{a.MaxX, a.MinY},
		{a.MaxX, a.MaxY},
		{a.MinX, a.MaxY},
	}
}

// BufferAOI projects the point, builds a square of side 2×buffer centred on
// it and envelopes the reprojected corners as a geographic box.
func (u *UTM) BufferAOI(pt model.Point, buffer float64) (AOI, error) {
	if math.IsNaN(buffer) || math.IsInf(buffer, 0) || buffer <= 0 {
		return AOI{}, failure.Validation("buffer must be a positive number of metres")
	}
	if math.IsNaN(pt.Lat) || math.IsNaN(pt.Lon) || math.Abs(pt.Lat) > 90 || math.Abs(pt.Lon) > 180 {
		return AOI{}, failure.Validation("point out of range")
	}

	x, y := u.Forward(pt.Lon, pt.Lat)
	aoi := AOI{
		CenterX: x,
		CenterY: y,
		Buffer:  buffer,
		MinX:    x - buffer,
		MinY:    y - buffer,
		MaxX:    x + buffer,
		MaxY:    y + buffer,
	}

	bbox := model.BBox{
		MinLon: math.Inf(1),
		MinLat: math.Inf(1),
		MaxLon: math.Inf(-1),
		MaxLat: math.Inf(-1),
	}
	for _, c := range aoi.Corners() {
		lon, lat := u.Inverse(c[0], c[1])
		bbox.MinLon = math.Min(bbox.MinLon, lon)
		bbox.MinLat = math.Min(bbox.MinLat, lat)
		bbox.MaxLon = math.Max(bbox.MaxLon, lon)
		bbox.MaxLat = math.Max(bbox.MaxLat, lat)
	}
	aoi.BBox = bbox
	return aoi, nil
}
