package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository used by tests and by the
// CLI when no Qdrant endpoint is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	dim    int
	order  []string
	points map[string]Point
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{points: make(map[string]Point)}
}

func (m *MemoryRepository) EnsureCollection(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("collection has dimension %d, want %d", m.dim, dim)
	}
	m.dim = dim
	return nil
}

func (m *MemoryRepository) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if m.dim != 0 && len(p.Vector) != m.dim {
			return fmt.Errorf("point %s has dimension %d, want %d", p.ID, len(p.Vector), m.dim)
		}
		if _, ok := m.points[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		m.points[p.ID] = p
	}
	return nil
}

// Search scores by dot product. Ties keep insertion order.
func (m *MemoryRepository) Search(_ context.Context, vec []float32, topK int, minScore float32) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Match, 0, len(m.order))
	for _, id := range m.order {
		p := m.points[id]
		score := dot(vec, p.Vector)
		if score < minScore {
			continue
		}
		out = append(out, Match{ID: id, Score: score, Payload: p.Payload})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *MemoryRepository) Close() error { return nil }

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float32
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

var _ Repository = (*MemoryRepository)(nil)
