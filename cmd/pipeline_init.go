package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/buildings"
	"github.com/sells-group/place2dxf/internal/config"
	"github.com/sells-group/place2dxf/internal/fetcher"
	"github.com/sells-group/place2dxf/internal/monitoring"
	"github.com/sells-group/place2dxf/internal/pipeline"
	"github.com/sells-group/place2dxf/internal/projection"
	"github.com/sells-group/place2dxf/internal/roads"
	"github.com/sells-group/place2dxf/pkg/geocode"
)

// pipelineEnv holds the wired pipeline and the resources behind it.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
	Pool     *pgxpool.Pool // nil when the archive is not configured
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Pool != nil {
		pe.Pool.Close()
	}
}

// initPipeline validates cfg for mode and builds every client the pipeline
// needs. Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	utm, err := projection.ParseEPSG(c.Projection.CRS)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   c.HTTP.UserAgent,
		MaxAttempts: c.HTTP.MaxAttempts,
		Limits:      c.HTTP.Limits(),
	})

	gc := geocode.NewClient(
		geocode.WithBaseURL(c.Geocode.BaseURL),
		geocode.WithEmail(c.Geocode.Email),
		geocode.WithUserAgent(c.HTTP.UserAgent),
		geocode.WithTimeout(c.Geocode.Timeout()),
		geocode.WithRateLimit(c.Geocode.RateLimit),
	)

	pool, err := initArchivePool(ctx, c.Archive)
	if err != nil {
		return nil, err
	}
	var db buildings.Querier
	if pool != nil {
		db = pool
		metrics.WatchPool(func() monitoring.PoolStat { return pool.Stat() })
	}

	var extract buildings.Source = buildings.NewExtractSource(f, utm, buildings.ExtractOptions{
		BaseURL:         c.Extract.BaseURL,
		Timeout:         c.Extract.Timeout(),
		DownloadTimeout: c.Extract.DownloadTimeout(),
	})
	if c.Extract.BreakerThreshold > 0 {
		extract = buildings.NewBreakerSource(extract, buildings.BreakerOptions{
			Threshold: c.Extract.BreakerThreshold,
			Cooldown:  c.Extract.BreakerCooldown(),
		})
	}
	archive := buildings.NewArchiveSource(db, utm, buildings.ArchiveOptions{
		Release: c.Archive.Release,
		Timeout: c.Archive.Timeout(),
	})
	src := buildings.NewFallbackSource(extract, archive,
		buildings.WithFallbackHook(func(error) { metrics.Fallback() }),
	)

	rd := roads.NewOverpassSource(f, utm, c.Overpass.BaseURL, c.Overpass.Timeout())

	p := pipeline.New(gc, utm, src, rd, pipeline.Options{
		OutputDir:     c.Server.OutputDir,
		DefaultBuffer: c.Pipeline.DefaultBuffer,
		ParallelFetch: c.Pipeline.ParallelFetch,
		Metrics:       metrics,
	})

	zap.L().Info("pipeline initialized",
		zap.String("crs", utm.String()),
		zap.String("output_dir", p.OutputDir()),
		zap.Bool("archive_configured", pool != nil),
		zap.Bool("parallel_fetch", c.Pipeline.ParallelFetch),
	)

	return &pipelineEnv{Pipeline: p, Metrics: metrics, Registry: reg, Pool: pool}, nil
}

// initArchivePool connects to the columnar scan engine. The engine speaks
// the Postgres wire protocol but not extended-protocol prepares, so queries
// go out in simple mode.
func initArchivePool(ctx context.Context, c config.ArchiveConfig) (*pgxpool.Pool, error) {
	if c.DatabaseURL == "" {
		return nil, nil
	}
	pcfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "archive: parse database url")
	}
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, eris.Wrap(err, "archive: connect")
	}
	return pool, nil
}
