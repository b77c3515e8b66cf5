package resolve

import (
	"sort"
	"sync"
)

type WarningKind string

const (
	KindDangling     WarningKind = "dangling_reference"
	KindMalformed    WarningKind = "malformed_field"
	KindMissingField WarningKind = "missing_field"
	KindPruned       WarningKind = "link_pruned"
	KindAmbiguous    WarningKind = "ambiguous_link"
)

// Warning is a non-fatal integrity finding. MissingID is set for dangling
// and pruned links; Detail carries free text for the other kinds.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Table     string      `json:"table"`
	SourceID  string      `json:"sourceId"`
	Field     string      `json:"field"`
	MissingID string      `json:"missingId,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// Sink receives warnings as they are found.
type Sink interface {
	Warn(w Warning)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Warning)

func (f SinkFunc) Warn(w Warning) { f(w) }

// Discard drops every warning.
var Discard Sink = SinkFunc(func(Warning) {})

// Collector keeps warnings in arrival order. Safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Warn(w Warning) {
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
}

// Warnings returns a copy of everything collected so far.
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}

// Counts tallies warnings by kind.
func (c *Collector) Counts() map[WarningKind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountByKind(c.warnings)
}

func CountByKind(ws []Warning) map[WarningKind]int {
	out := make(map[WarningKind]int)
	for _, w := range ws {
		out[w.Kind]++
	}
	return out
}

// Kinds returns the kinds present in counts, sorted.
func Kinds(counts map[WarningKind]int) []WarningKind {
	out := make([]WarningKind, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
