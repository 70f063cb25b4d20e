package model

import (
	"fmt"
	"math"
)

// PlaceQuery is a single drawing request: a free-text place and a buffer
// distance in metres around its geocoded point.
type PlaceQuery struct {
	Place  string  `json:"place"`
	Buffer float64 `json:"buffer"`
}

// Point is a WGS84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is a geographic bounding box in WGS84 degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Valid reports whether the box has finite, ordered corners.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat
}

// Contains reports whether the point lies inside or on the box.
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Intersects reports whether the box overlaps the given extent.
func (b BBox) Intersects(minLon, minLat, maxLon, maxLat float64) bool {
	return minLon <= b.MaxLon && maxLon >= b.MinLon && minLat <= b.MaxLat && maxLat >= b.MinLat
}

// XYString formats the box as "minLon,minLat,maxLon,maxLat".
func (b BBox) XYString() string {
	return fmt.Sprintf("%s,%s,%s,%s", coord(b.MinLon), coord(b.MinLat), coord(b.MaxLon), coord(b.MaxLat))
}

// SWNEString formats the box as "south,west,north,east" (Overpass order).
func (b BBox) SWNEString() string {
	return fmt.Sprintf("%s,%s,%s,%s", coord(b.MinLat), coord(b.MinLon), coord(b.MaxLat), coord(b.MaxLon))
}

func coord(v float64) string {
	return fmt.Sprintf("%.7f", v)
}
