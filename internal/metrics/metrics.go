// Package metrics implements three metric kinds: atomic counters,
// last-write-wins gauges, and per-operation latency reservoirs summarized
// with rank-based percentiles.
//
// Counters and gauges are backed by github.com/prometheus/client_golang
// against a private *prometheus.Registry (never the global
// DefaultRegisterer, which would panic on double registration across
// tests). Because metric names are caller-supplied, each name gets its own
// lazily registered prometheus.Counter/prometheus.Gauge the first time it's
// used, tracked in a mutex-guarded map.
//
// Percentiles use github.com/montanaflynn/stats, whose Percentile function
// takes rank p*n over the sorted samples: the sample at that 1-based rank
// when p*n is whole, otherwise the mean of the samples at ranks floor(p*n)
// and floor(p*n)+1. It does not interpolate at index p*(n-1).
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Collector holds all counters, gauges, and latency reservoirs for one
// service instance.
type Collector struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge

	reservoirMu sync.Mutex
	reservoirs  map[string][]float64
}

// New returns an empty Collector backed by its own Prometheus registry.
func New() *Collector {
	return &Collector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		reservoirs: make(map[string][]float64),
	}
}

// Registry exposes the private Prometheus registry, e.g. for
// promhttp.HandlerFor in cmd/server.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// IncrCounter adds delta (≥0) to the named monotonic counter, registering
// it on first use.
func (c *Collector) IncrCounter(name string, delta float64) {
	c.mu.Lock()
	counter, ok := c.counters[name]
	if !ok {
		counter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: sanitize(name),
			Help: fmt.Sprintf("fingermatch counter %s", name),
		})
		c.registry.MustRegister(counter)
		c.counters[name] = counter
	}
	c.mu.Unlock()

	counter.Add(delta)
}

// Counter returns the current value of a named counter, or 0 if never
// incremented.
func (c *Collector) Counter(name string) float64 {
	c.mu.Lock()
	counter, ok := c.counters[name]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	var m dto.Metric
	counter.Write(&m)
	return m.GetCounter().GetValue()
}

// SetGauge sets the named gauge to value (last-write-wins), registering it
// on first use.
func (c *Collector) SetGauge(name string, value float64) {
	c.mu.Lock()
	gauge, ok := c.gauges[name]
	if !ok {
		gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: sanitize(name),
			Help: fmt.Sprintf("fingermatch gauge %s", name),
		})
		c.registry.MustRegister(gauge)
		c.gauges[name] = gauge
	}
	c.mu.Unlock()

	gauge.Set(value)
}

// RecordLatency appends one microsecond sample to the named reservoir.
func (c *Collector) RecordLatency(op string, microseconds float64) {
	c.reservoirMu.Lock()
	defer c.reservoirMu.Unlock()
	c.reservoirs[op] = append(c.reservoirs[op], microseconds)
}

// Snapshot is a percentile summary of a latency reservoir.
type Snapshot struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

// LatencySnapshot summarizes the named reservoir. Returns the zero
// Snapshot if the reservoir has no samples yet.
func (c *Collector) LatencySnapshot(op string) Snapshot {
	c.reservoirMu.Lock()
	samples := append([]float64(nil), c.reservoirs[op]...)
	c.reservoirMu.Unlock()

	return summarize(samples)
}

func summarize(samples []float64) Snapshot {
	if len(samples) == 0 {
		return Snapshot{}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mean, _ := stats.Mean(stats.Float64Data(sorted))
	p50, _ := stats.Percentile(stats.Float64Data(sorted), 50)
	p95, _ := stats.Percentile(stats.Float64Data(sorted), 95)
	p99, _ := stats.Percentile(stats.Float64Data(sorted), 99)

	return Snapshot{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  mean,
		P50:   p50,
		P95:   p95,
		P99:   p99,
	}
}

// ScopedTimer records one sample to a named reservoir when Close is
// called, using wall-clock monotonic time.
type ScopedTimer struct {
	collector *Collector
	op        string
	start     time.Time
}

// StartTimer begins timing op against collector.
func (c *Collector) StartTimer(op string) *ScopedTimer {
	return &ScopedTimer{collector: c, op: op, start: time.Now()}
}

// Close records the elapsed time in microseconds since StartTimer.
func (t *ScopedTimer) Close() {
	t.collector.RecordLatency(t.op, float64(time.Since(t.start).Microseconds()))
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			out[i] = ch
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 || (out[0] >= '0' && out[0] <= '9') {
		return "m_" + string(out)
	}
	return string(out)
}
