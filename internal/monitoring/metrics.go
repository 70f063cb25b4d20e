// Package monitoring exposes Prometheus metrics for the HTTP surface, the
// pipeline stages and the building-source fallback.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "place2dxf"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg            prometheus.Registerer
	requests       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	buildingSource *prometheus.CounterVec
	fallbacks      prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"stage"}),
		buildingSource: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "building_source_total",
			Help:      "Successful building fetches by the source that served them.",
		}, []string{"source"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Times the primary building source failed and the fallback was used.",
		}),
	}
}

// ObserveRequest counts one HTTP response.
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// BuildingSource counts a building fetch served by source.
func (m *Metrics) BuildingSource(source string) {
	if m == nil {
		return
	}
	m.buildingSource.WithLabelValues(source).Inc()
}

// Fallback counts one use of the fallback building source.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// PoolStat is the subset of *pgxpool.Stat reported as gauges.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// WatchPool registers gauges that read the archive pool's stats at scrape
// time.
func (m *Metrics) WatchPool(stat func() PoolStat) {
	if m == nil || stat == nil {
		return
	}
	f := promauto.With(m.reg)
	gauge := func(name, help string, read func(PoolStat) int32) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stat())) })
	}
	gauge("pool_conns_acquired", "Connections currently acquired from the archive pool.", PoolStat.AcquiredConns)
	gauge("pool_conns_idle", "Idle connections in the archive pool.", PoolStat.IdleConns)
	gauge("pool_conns_open", "Total connections open in the archive pool.", PoolStat.TotalConns)
}
