// Package pipeline runs one place-to-drawing request end to end: geocode,
// buffer, fetch buildings and roads, emit the DXF.
package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/place2dxf/internal/buildings"
	"github.com/sells-group/place2dxf/internal/dxf"
	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
	"github.com/sells-group/place2dxf/internal/monitoring"
	"github.com/sells-group/place2dxf/internal/projection"
	"github.com/sells-group/place2dxf/internal/roads"
	"github.com/sells-group/place2dxf/pkg/geocode"
)

// Stage names, reported in logs, metrics and Result.Stages.
const (
	StageGeocode   = "geocode"
	StageProject   = "project"
	StageBuildings = "buildings"
	StageRoads     = "roads"
	StageDXF       = "dxf"
)

// DefaultBuffer is the half-side of the square AOI in metres.
const DefaultBuffer = 250.0

// Options configures a Pipeline.
type Options struct {
	OutputDir     string
	DefaultBuffer float64
	// ParallelFetch runs the building and road fetches concurrently.
	ParallelFetch bool
	Metrics       *monitoring.Metrics
}

// Pipeline turns a place query into a DXF file in OutputDir.
type Pipeline struct {
	geocoder  geocode.Client
	utm       *projection.UTM
	buildings buildings.Source
	roads     roads.Source
	opts      Options
}

// New creates a Pipeline.
func New(gc geocode.Client, utm *projection.UTM, b buildings.Source, r roads.Source, opts Options) *Pipeline {
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.DefaultBuffer <= 0 {
		opts.DefaultBuffer = DefaultBuffer
	}
	return &Pipeline{geocoder: gc, utm: utm, buildings: b, roads: r, opts: opts}
}

// StageResult records one stage's outcome.
type StageResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result describes a generated drawing.
type Result struct {
	Place          string        `json:"place"`
	FileName       string        `json:"file_name"`
	Path           string        `json:"path"`
	Point          model.Point   `json:"point"`
	BBox           model.BBox    `json:"bbox"`
	Buffer         float64       `json:"buffer"`
	BuildingSource string        `json:"building_source"`
	Buildings      int           `json:"buildings"`
	Roads          int           `json:"roads"`
	BuildingLines  int           `json:"building_polylines"`
	RoadLines      int           `json:"road_polylines"`
	Stages         []StageResult `json:"stages"`
}

// Run executes every stage in order and stops at the first failure.
// A zero buffer selects the default.
func (p *Pipeline) Run(ctx context.Context, q model.PlaceQuery) (*Result, error) {
	place := strings.TrimSpace(q.Place)
	if place == "" {
		return nil, failure.Validation("missing ?place")
	}
	buffer := q.Buffer
	if buffer == 0 {
		buffer = p.opts.DefaultBuffer
	}
	if buffer < 0 || math.IsNaN(buffer) || math.IsInf(buffer, 0) {
		return nil, failure.Validation("invalid ?buffer")
	}

	log := zap.L().With(zap.String("place", place), zap.Float64("buffer", buffer))
	log.Info("pipeline: starting")

	res := &Result{Place: place, Buffer: buffer}

	var mu sync.Mutex
	track := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		d := time.Since(start)
		p.opts.Metrics.ObserveStage(name, d)

		sr := StageResult{Name: name, Duration: d}
		if err != nil {
			sr.Error = err.Error()
			log.Error("pipeline: stage failed", zap.String("stage", name),
				zap.Int64("duration_ms", d.Milliseconds()), zap.Error(err))
		} else {
			log.Debug("pipeline: stage complete", zap.String("stage", name),
				zap.Int64("duration_ms", d.Milliseconds()))
		}
		mu.Lock()
		res.Stages = append(res.Stages, sr)
		mu.Unlock()
		return err
	}

	err := track(StageGeocode, func() error {
		gr, err := p.geocoder.Geocode(ctx, place)
		if err != nil {
			return err
		}
		res.Point = model.Point{Lat: gr.Latitude, Lon: gr.Longitude}
		return nil
	})
	if err != nil {
		return res, err
	}

	var aoi projection.AOI
	err = track(StageProject, func() error {
		var err error
		aoi, err = p.utm.BufferAOI(res.Point, buffer)
		return err
	})
	if err != nil {
		return res, err
	}
	res.BBox = aoi.BBox
	log.Info("pipeline: area of interest", zap.String("bbox", aoi.BBox.XYString()))

	var bldgs []model.Building
	var rds []model.Road
	fetchBuildings := func(ctx context.Context) error {
		return track(StageBuildings, func() error {
			fr, err := p.buildings.Fetch(ctx, aoi.BBox)
			if err != nil {
				return err
			}
			bldgs = fr.Buildings
			res.BuildingSource = fr.Source
			p.opts.Metrics.BuildingSource(fr.Source)
			return nil
		})
	}
	fetchRoads := func(ctx context.Context) error {
		return track(StageRoads, func() error {
			var err error
			rds, err = p.roads.Fetch(ctx, aoi.BBox)
			return err
		})
	}

	if p.opts.ParallelFetch {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return fetchBuildings(gctx) })
		g.Go(func() error { return fetchRoads(gctx) })
		err = g.Wait()
	} else {
		err = fetchBuildings(ctx)
		if err == nil {
			err = fetchRoads(ctx)
		}
	}
	if err != nil {
		return res, err
	}
	res.Buildings = len(bldgs)
	res.Roads = len(rds)
	log.Info("pipeline: fetched features",
		zap.String("building_source", res.BuildingSource),
		zap.Int("buildings", res.Buildings),
		zap.Int("roads", res.Roads),
	)

	err = track(StageDXF, func() error {
		doc := dxf.Emit(bldgs, rds)
		res.BuildingLines = doc.Count(dxf.LayerBuildings)
		res.RoadLines = doc.Count(dxf.LayerRoads)
		res.FileName = dxf.FileName(place)
		res.Path = filepath.Join(p.opts.OutputDir, res.FileName)
		if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
			return eris.Wrap(err, "pipeline: create output dir")
		}
		return doc.SaveAs(res.Path)
	})
	if err != nil {
		return res, err
	}

	log.Info("pipeline: wrote drawing",
		zap.String("file", res.FileName),
		zap.Int(dxf.LayerBuildings, res.BuildingLines),
		zap.Int(dxf.LayerRoads, res.RoadLines),
	)
	return res, nil
}

// OutputDir is the directory drawings are written to.
func (p *Pipeline) OutputDir() string { return p.opts.OutputDir }
