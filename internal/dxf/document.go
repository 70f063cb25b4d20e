// Package dxf builds CAD drawings of building footprints and road lines and
// writes them as AutoCAD R12 ASCII DXF.
package dxf

import (
	"math"

	"github.com/rotisserie/eris"
)

// ACI colour numbers used by the drawing.
const (
	ColorRed   = 1
	ColorWhite = 7
)

// Layer is a named drawing layer with an ACI colour.
type Layer struct {
	Name  string
	Color int
}

// Polyline is a 2D polyline entity on a layer.
type Polyline struct {
	Layer  string
	Points [][2]float64
	Closed bool
}

// Document is an in-memory drawing. Entities keep insertion order.
type Document struct {
	layers   []Layer
	entities []Polyline
	counts   map[string]int
}

// NewDocument returns an empty drawing with no layers.
func NewDocument() *Document {
	return &Document{counts: make(map[string]int)}
}

// AddLayer declares a layer. Names are unique.
func (d *Document) AddLayer(name string, color int) error {
	if name == "" {
		return eris.New("dxf: empty layer name")
	}
	if _, ok := d.counts[name]; ok {
		return eris.Errorf("dxf: duplicate layer %q", name)
	}
	d.layers = append(d.layers, Layer{Name: name, Color: color})
	d.counts[name] = 0
	return nil
}

// AddPolyline appends a polyline to a declared layer. Points are copied;
// their geometry is not validated.
func (d *Document) AddPolyline(layer string, points [][2]float64, closed bool) error {
	if _, ok := d.counts[layer]; !ok {
		return eris.Errorf("dxf: unknown layer %q", layer)
	}
	pts := make([][2]float64, len(points))
	copy(pts, points)
	d.entities = append(d.entities, Polyline{Layer: layer, Points: pts, Closed: closed})
	d.counts[layer]++
	return nil
}

// Layers returns the declared layers in declaration order.
func (d *Document) Layers() []Layer {
	out := make([]Layer, len(d.layers))
	copy(out, d.layers)
	return out
}

// Entities returns the polylines in insertion order.
func (d *Document) Entities() []Polyline {
	return d.entities
}

// Count returns the number of polylines on layer.
func (d *Document) Count(layer string) int {
	return d.counts[layer]
}

// Extents returns the bounding box of every vertex, or ok=false for a
// drawing without vertices.
func (d *Document) Extents() (minPt, maxPt [2]float64, ok bool) {
	minPt = [2]float64{math.Inf(1), math.Inf(1)}
	maxPt = [2]float64{math.Inf(-1), math.Inf(-1)}
	for _, e := range d.entities {
		for _, p := range e.Points {
			minPt[0] = math.Min(minPt[0], p[0])
			minPt[1] = math.Min(minPt[1], p[1])
			maxPt[0] = math.Max(maxPt[0], p[0])
			maxPt[1] = math.Max(maxPt[1], p[1])
			ok = true
		}
	}
	return minPt, maxPt, ok
}
