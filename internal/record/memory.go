package record

import (
	"context"
	"fmt"
	"sync"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

// MemorySource serves tables held in memory. It is used by tests and by the
// file source after loading.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[string][]Record
	// Fail, when set, is returned for the named tables.
	Fail map[string]error
}

func NewMemorySource(tables map[string][]Record) *MemorySource {
	if tables == nil {
		tables = make(map[string][]Record)
	}
	return &MemorySource{tables: tables}
}

// Put replaces a table's records.
func (m *MemorySource) Put(table string, recs []Record) {
	m.mu.Lock()
	m.tables[table] = recs
	m.mu.Unlock()
}

func (m *MemorySource) FetchAll(ctx context.Context, table string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.Fail[table]; ok {
		return nil, err
	}
	recs, ok := m.tables[table]
	if !ok {
		return nil, apperr.New(apperr.CodeDataUnavailable, fmt.Sprintf("table %q not found", table))
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}
