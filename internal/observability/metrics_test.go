package observability

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter_Add(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_counter", "Test counter", nil)

	c.Inc()
	c.Add(3.5)

	if c.Value() != 4.5 {
		t.Fatalf("expected 4.5, got %f", c.Value())
	}
}

func TestRegistry_SameSeriesReturnsExisting(t *testing.T) {
	r := NewMetricsRegistry()
	a := r.NewCounter("dup_total", "dup", map[string]string{"kind": "x"})
	b := r.NewCounter("dup_total", "dup", map[string]string{"kind": "x"})
	other := r.NewCounter("dup_total", "dup", map[string]string{"kind": "y"})

	a.Inc()
	if b.Value() != 1 {
		t.Fatalf("expected shared series, got %f", b.Value())
	}
	if other.Value() != 0 {
		t.Fatalf("expected distinct series for other labels, got %f", other.Value())
	}
}

func TestGauge_Set(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.NewGauge("test_gauge", "Test gauge", nil)

	g.Set(42)
	g.Set(10)
	if g.Value() != 10 {
		t.Fatalf("expected 10, got %f", g.Value())
	}
}

func TestHistogram_Write(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("latency_seconds", "Latency", nil, []float64{0.1, 1})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(2)

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		`latency_seconds_sum 2.55`,
		`latency_seconds_count 3`,
		"# TYPE latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWritePrometheus_OneHeaderPerName(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewGauge("warnings", "Warnings by kind", map[string]string{"kind": "a"}).Set(1)
	r.NewGauge("warnings", "Warnings by kind", map[string]string{"kind": "b"}).Set(2)

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	out := buf.String()

	if n := strings.Count(out, "# HELP warnings"); n != 1 {
		t.Fatalf("expected one HELP line, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, `warnings{kind="a"} 1`) || !strings.Contains(out, `warnings{kind="b"} 2`) {
		t.Fatalf("missing labelled series:\n%s", out)
	}
}

func TestPipelineMetrics_Handler(t *testing.T) {
	m := NewPipelineMetrics()
	m.RecordAssembly(120*time.Millisecond, 30, 44, map[string]int{"dangling_reference": 2}, nil)
	m.RecordAssembly(time.Millisecond, 0, 0, nil, errors.New("down"))
	m.RecordApply(3, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"impactgraph_assemblies_total 2",
		"impactgraph_assembly_errors_total 1",
		"impactgraph_graph_nodes 30",
		`impactgraph_graph_warnings{kind="dangling_reference"} 2`,
		"impactgraph_links_written_total 3",
		"impactgraph_links_failed_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestMetrics_Singleton(t *testing.T) {
	if Metrics() != Metrics() {
		t.Fatal("expected the same instance")
	}
}
