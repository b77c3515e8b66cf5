package graph

import (
	"time"

	"github.com/efebarandurmaz/impactgraph/internal/resolve"
)

// Snapshot is the JSON view of a graph handed to API consumers. Every
// reference is an inline {id, name} object.
type Snapshot struct {
	Worldviews        []*Worldview       `json:"worldviews"`
	Outcomes          []*Outcome         `json:"outcomes"`
	ProblemCategories []*ProblemCategory `json:"problemCategories"`
	Problems          []*Problem         `json:"problems"`
	Projects          []*Project         `json:"projects"`
	Organizations     []*Organization    `json:"organizations"`
	People            []*Person          `json:"people"`
	Programs          []*Program         `json:"programs"`
	Aggregates        Aggregates         `json:"aggregates"`
	AssembledAt       time.Time          `json:"assembledAt"`
	Fingerprint       string             `json:"fingerprint"`
	WarningCount      int                `json:"warningCount"`
}

func (g *Graph) Snapshot() Snapshot {
	return Snapshot{
		Worldviews:        nonNil(g.Worldviews),
		Outcomes:          nonNil(g.Outcomes),
		ProblemCategories: nonNil(g.ProblemCategories),
		Problems:          nonNil(g.Problems),
		Projects:          nonNil(g.Projects),
		Organizations:     nonNil(g.Organizations),
		People:            nonNil(g.People),
		Programs:          nonNil(g.Programs),
		Aggregates:        g.Aggregates,
		AssembledAt:       g.AssembledAt,
		Fingerprint:       g.Fingerprint,
		WarningCount:      len(g.Warnings) + len(g.FieldErrors),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Report summarises one assembly.
type Report struct {
	Nodes       map[NodeKind]int            `json:"nodes"`
	Edges       int                         `json:"edges"`
	Warnings    map[resolve.WarningKind]int `json:"warnings"`
	FieldErrors int                         `json:"fieldErrors"`
	Fingerprint string                      `json:"fingerprint"`
}

func (g *Graph) Report() Report {
	nodes := make(map[NodeKind]int, len(g.Aggregates.Totals))
	for k, v := range g.Aggregates.Totals {
		nodes[k] = v
	}
	return Report{
		Nodes:       nodes,
		Edges:       g.index.Len(),
		Warnings:    resolve.CountByKind(g.Warnings),
		FieldErrors: len(g.FieldErrors),
		Fingerprint: g.Fingerprint,
	}
}

// NodeCount is the total number of nodes across all tables.
func (r Report) NodeCount() int {
	n := 0
	for _, v := range r.Nodes {
		n += v
	}
	return n
}
