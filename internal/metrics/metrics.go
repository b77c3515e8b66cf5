package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/resolve"
)

// AssemblyMetrics collects statistics for one fetch-and-assemble run.
type AssemblyMetrics struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Source     SourceMetrics `json:"source"`
	Graph      GraphMetrics  `json:"graph"`
	Stages     []StageMetric `json:"stages"`
	Reused     bool          `json:"reused"`
	Errors     []string      `json:"errors,omitempty"`
}

type SourceMetrics struct {
	Tables      int            `json:"tables"`
	Records     map[string]int `json:"records"`
	Fingerprint string         `json:"fingerprint"`
}

type GraphMetrics struct {
	Nodes       map[graph.NodeKind]int      `json:"nodes"`
	Edges       int                         `json:"edges"`
	Warnings    map[resolve.WarningKind]int `json:"warnings"`
	FieldErrors int                         `json:"field_errors"`
	Cap         int                         `json:"cap"`
}

type StageMetric struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Errors   int           `json:"errors"`
}

// New starts tracking a run.
func New() *AssemblyMetrics {
	return &AssemblyMetrics{StartedAt: time.Now()}
}

// CollectSource records per-table record counts of a fetched snapshot.
func (m *AssemblyMetrics) CollectSource(tables map[string][]record.Record, fingerprint string) {
	m.Source.Tables = len(tables)
	m.Source.Records = make(map[string]int, len(tables))
	for name, recs := range tables {
		m.Source.Records[name] = len(recs)
	}
	m.Source.Fingerprint = fingerprint
}

func (m *AssemblyMetrics) CollectGraph(g *graph.Graph) {
	r := g.Report()
	m.Graph = GraphMetrics{
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		Warnings:    r.Warnings,
		FieldErrors: r.FieldErrors,
		Cap:         g.Cap,
	}
}

func (m *AssemblyMetrics) AddStage(name string, d time.Duration, errCount int) {
	m.Stages = append(m.Stages, StageMetric{Name: name, Duration: d, Errors: errCount})
}

// Finish marks the run as complete.
func (m *AssemblyMetrics) Finish(errs []string) {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.Errors = errs
}

// PrintSummary writes a human-readable summary.
func (m *AssemblyMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       IMPACTGRAPH ASSEMBLY REPORT    ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Fingerprint: %-23s║\n", short(m.Source.Fingerprint))
	fmt.Fprintf(w, "║ Cap:         %-23d║\n", m.Graph.Cap)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ SOURCE (%d tables)\n", m.Source.Tables)
	for _, name := range sortedKeys(m.Source.Records) {
		fmt.Fprintf(w, "║   %-22s %6d\n", name, m.Source.Records[name])
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ GRAPH\n")
	nodes := make(map[string]int, len(m.Graph.Nodes))
	for k, v := range m.Graph.Nodes {
		nodes[string(k)] = v
	}
	for _, kind := range sortedKeys(nodes) {
		fmt.Fprintf(w, "║   %-22s %6d\n", kind, nodes[kind])
	}
	fmt.Fprintf(w, "║   %-22s %6d\n", "edges", m.Graph.Edges)
	if len(m.Graph.Warnings) > 0 || m.Graph.FieldErrors > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ WARNINGS\n")
		for _, kind := range resolve.Kinds(m.Graph.Warnings) {
			fmt.Fprintf(w, "║   %-22s %6d\n", kind, m.Graph.Warnings[kind])
		}
		if m.Graph.FieldErrors > 0 {
			fmt.Fprintf(w, "║   %-22s %6d\n", "field errors", m.Graph.FieldErrors)
		}
	}
	if len(m.Stages) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STAGES\n")
		for _, s := range m.Stages {
			status := "OK"
			if s.Errors > 0 {
				status = fmt.Sprintf("%d errors", s.Errors)
			}
			fmt.Fprintf(w, "║   %-14s %8s  %s\n", s.Name, s.Duration.Round(time.Millisecond), status)
		}
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *AssemblyMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func short(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
