package observability

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds registered metrics and renders them in the
// Prometheus text exposition format. Series are keyed by name plus labels,
// so one metric name may carry several label sets.
type MetricsRegistry struct {
	mu     sync.RWMutex
	series map[string]metric
	help   map[string]string
	kinds  map[string]string
}

type metric interface {
	write(w io.Writer)
}

type Counter struct {
	name   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

type Gauge struct {
	name   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

type Histogram struct {
	name    string
	labels  map[string]string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		series: make(map[string]metric),
		help:   make(map[string]string),
		kinds:  make(map[string]string),
	}
}

// register returns the existing series for name+labels or stores m.
func (r *MetricsRegistry) register(name, kind, help string, labels map[string]string, m metric) metric {
	key := name + formatLabels(labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.series[key]; ok {
		return existing
	}
	r.series[key] = m
	r.help[name] = help
	r.kinds[name] = kind
	return m
}

func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	return r.register(name, "counter", help, labels, &Counter{name: name, labels: labels}).(*Counter)
}

func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	return r.register(name, "gauge", help, labels, &Gauge{name: name, labels: labels}).(*Gauge)
}

func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{name: name, labels: labels, buckets: buckets, counts: make([]uint64, len(buckets))}
	return r.register(name, "histogram", help, labels, h).(*Histogram)
}

// DefaultBuckets are latency buckets in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Counter) write(w io.Writer) {
	io.WriteString(w, c.name+formatLabels(c.labels)+" "+formatFloat(c.Value())+"\n")
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *Gauge) write(w io.Writer) {
	io.WriteString(w, g.name+formatLabels(g.labels)+" "+formatFloat(g.Value())+"\n")
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// counts are recorded per bucket already cumulative since Observe
// increments every bucket whose bound is >= v.
func (h *Histogram) write(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, bound := range h.buckets {
		labels := withLabel(h.labels, "le", formatFloat(bound))
		io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+strconv.FormatUint(h.counts[i], 10)+"\n")
	}
	io.WriteString(w, h.name+"_bucket"+formatLabels(withLabel(h.labels, "le", "+Inf"))+" "+strconv.FormatUint(h.count, 10)+"\n")
	io.WriteString(w, h.name+"_sum"+formatLabels(h.labels)+" "+formatFloat(h.sum)+"\n")
	io.WriteString(w, h.name+"_count"+formatLabels(h.labels)+" "+strconv.FormatUint(h.count, 10)+"\n")
}

func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes every series sorted by key, with one HELP/TYPE
// header per metric name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lastName := ""
	for _, k := range keys {
		name := k
		if i := strings.IndexByte(k, '{'); i >= 0 {
			name = k[:i]
		}
		if name != lastName {
			io.WriteString(w, "# HELP "+name+" "+r.help[name]+"\n")
			io.WriteString(w, "# TYPE "+name+" "+r.kinds[name]+"\n")
			lastName = name
		}
		r.series[k].write(w)
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k + "=" + strconv.Quote(labels[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for lk, lv := range labels {
		out[lk] = lv
	}
	out[k] = v
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PipelineMetrics are the service-level series for assembly, linking and
// the record source.
type PipelineMetrics struct {
	Registry *MetricsRegistry

	AssembliesTotal     *Counter
	AssemblyErrorsTotal *Counter
	AssemblyDuration    *Histogram
	GraphNodes          *Gauge
	GraphEdges          *Gauge

	FetchRequestsTotal *Counter
	FetchRetriesTotal  *Counter

	CacheHitsTotal   *Counter
	CacheMissesTotal *Counter

	LinksWrittenTotal *Counter
	LinksFailedTotal  *Counter
}

func NewPipelineMetrics() *PipelineMetrics {
	r := NewMetricsRegistry()
	return &PipelineMetrics{
		Registry: r,

		AssembliesTotal:     r.NewCounter("impactgraph_assemblies_total", "Completed graph assemblies", nil),
		AssemblyErrorsTotal: r.NewCounter("impactgraph_assembly_errors_total", "Graph assemblies that failed", nil),
		AssemblyDuration:    r.NewHistogram("impactgraph_assembly_duration_seconds", "Graph assembly duration", nil, nil),
		GraphNodes:          r.NewGauge("impactgraph_graph_nodes", "Nodes in the latest graph", nil),
		GraphEdges:          r.NewGauge("impactgraph_graph_edges", "Edges in the latest graph", nil),

		FetchRequestsTotal: r.NewCounter("impactgraph_fetch_requests_total", "Record store page requests", nil),
		FetchRetriesTotal:  r.NewCounter("impactgraph_fetch_retries_total", "Record store requests retried", nil),

		CacheHitsTotal:   r.NewCounter("impactgraph_cache_hits_total", "Snapshot cache hits", nil),
		CacheMissesTotal: r.NewCounter("impactgraph_cache_misses_total", "Snapshot cache misses", nil),

		LinksWrittenTotal: r.NewCounter("impactgraph_links_written_total", "Problem link sets written", nil),
		LinksFailedTotal:  r.NewCounter("impactgraph_links_failed_total", "Problem link writes that failed", nil),
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordAssembly records one assembly run and, on success, the graph size
// and per-kind warning counts.
func (m *PipelineMetrics) RecordAssembly(d time.Duration, nodes, edges int, warnings map[string]int, err error) {
	m.AssembliesTotal.Inc()
	m.AssemblyDuration.ObserveDuration(d)
	if err != nil {
		m.AssemblyErrorsTotal.Inc()
		return
	}
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.Set(float64(edges))
	for kind, n := range warnings {
		m.Registry.NewGauge("impactgraph_graph_warnings", "Warnings in the latest graph by kind",
			map[string]string{"kind": kind}).Set(float64(n))
	}
}

func (m *PipelineMetrics) RecordApply(written, failed int) {
	m.LinksWrittenTotal.Add(float64(written))
	m.LinksFailedTotal.Add(float64(failed))
}

var (
	globalMetrics *PipelineMetrics
	metricsOnce   sync.Once
)

// Metrics returns the process-wide metrics instance.
func Metrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPipelineMetrics()
	})
	return globalMetrics
}
