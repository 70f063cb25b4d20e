package dxf

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
)

// groupWriter emits DXF group code/value pairs and keeps the first error.
type groupWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (g *groupWriter) pair(code int, value string) {
	if g.err != nil {
		return
	}
	var buf []byte
	if code < 100 {
		buf = append(buf, ' ')
	}
	if code < 10 {
		buf = append(buf, ' ')
	}
	buf = strconv.AppendInt(buf, int64(code), 10)
	buf = append(buf, '\n')
	buf = append(buf, value...)
	buf = append(buf, '\n')
	n, err := g.w.Write(buf)
	g.n += int64(n)
	g.err = err
}

func (g *groupWriter) integer(code, v int) { g.pair(code, strconv.Itoa(v)) }

func (g *groupWriter) float(code int, v float64) {
	g.pair(code, strconv.FormatFloat(v, 'f', -1, 64))
}

func (g *groupWriter) point(base int, x, y float64) {
	g.float(base, x)
	g.float(base+10, y)
	g.float(base+20, 0)
}

func (g *groupWriter) beginSection(name string) {
	g.pair(0, "SECTION")
	g.pair(2, name)
}

func (g *groupWriter) endSection() { g.pair(0, "ENDSEC") }

// WriteTo writes the drawing as R12 ASCII DXF.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	g := &groupWriter{w: bufio.NewWriter(w)}

	g.beginSection("HEADER")
	g.pair(9, "$ACADVER")
	g.pair(1, "AC1009")
	if minPt, maxPt, ok := d.Extents(); ok {
		g.pair(9, "$EXTMIN")
		g.point(10, minPt[0], minPt[1])
		g.pair(9, "$EXTMAX")
		g.point(10, maxPt[0], maxPt[1])
	}
	g.endSection()

	g.beginSection("TABLES")
	g.pair(0, "TABLE")
	g.pair(2, "LTYPE")
	g.integer(70, 1)
	g.pair(0, "LTYPE")
	g.pair(2, "CONTINUOUS")
	g.integer(70, 0)
	g.pair(3, "Solid line")
	g.integer(72, 65)
	g.integer(73, 0)
	g.float(40, 0)
	g.pair(0, "ENDTAB")

	g.pair(0, "TABLE")
	g.pair(2, "LAYER")
	g.integer(70, len(d.layers))
	for _, l := range d.layers {
		g.pair(0, "LAYER")
		g.pair(2, l.Name)
		g.integer(70, 0)
		g.integer(62, l.Color)
		g.pair(6, "CONTINUOUS")
	}
	g.pair(0, "ENDTAB")
	g.endSection()

	g.beginSection("ENTITIES")
	for _, e := range d.entities {
		flags := 0
		if e.Closed {
			flags = 1
		}
		g.pair(0, "POLYLINE")
		g.pair(8, e.Layer)
		g.integer(66, 1)
		g.point(10, 0, 0)
		g.integer(70, flags)
		for _, p := range e.Points {
			g.pair(0, "VERTEX")
			g.pair(8, e.Layer)
			g.point(10, p[0], p[1])
		}
		g.pair(0, "SEQEND")
		g.pair(8, e.Layer)
	}
	g.endSection()
	g.pair(0, "EOF")

	if g.err != nil {
		return g.n, eris.Wrap(g.err, "dxf: write")
	}
	if err := g.w.Flush(); err != nil {
		return g.n, eris.Wrap(err, "dxf: flush")
	}
	return g.n, nil
}

// SaveAs writes the drawing to path, replacing any existing file. The file
// is written beside path and renamed into place.
func (d *Document) SaveAs(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dxf-*")
	if err != nil {
		return eris.Wrap(err, "dxf: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := d.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "dxf: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "dxf: rename")
	}
	return nil
}
