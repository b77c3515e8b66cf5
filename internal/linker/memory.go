package linker

import (
	"context"
	"sync"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

// MemoryWriter is an in-process LinkWriter.
type MemoryWriter struct {
	mu     sync.Mutex
	links  map[string][]string
	writes int
	// Fail makes SetProblemProjects fail for the listed problems.
	Fail map[string]error
}

func NewMemoryWriter(links map[string][]string) *MemoryWriter {
	m := &MemoryWriter{links: make(map[string][]string, len(links))}
	for id, ids := range links {
		m.links[id] = append([]string{}, ids...)
	}
	return m
}

func (m *MemoryWriter) Name() string { return "memory" }

func (m *MemoryWriter) ProblemProjects(_ context.Context, problemID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.links[problemID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeNotFound, "problem %s", problemID)
	}
	return append([]string{}, ids...), nil
}

func (m *MemoryWriter) SetProblemProjects(_ context.Context, problemID string, projectIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[problemID]; err != nil {
		return err
	}
	if _, ok := m.links[problemID]; !ok {
		return apperr.Newf(apperr.CodeNotFound, "problem %s", problemID)
	}
	m.links[problemID] = append([]string{}, projectIDs...)
	m.writes++
	return nil
}

// Links returns a copy of the current link sets.
func (m *MemoryWriter) Links() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.links))
	for id, ids := range m.links {
		out[id] = append([]string{}, ids...)
	}
	return out
}

// Writes counts successful SetProblemProjects calls.
func (m *MemoryWriter) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
