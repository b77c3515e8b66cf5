// Package resolve turns link fields holding foreign record ids into typed
// references. Ids that do not exist in the target table are dropped and
// reported through a Sink; a missing foreign key is never an error.
package resolve

import (
	"errors"
	"fmt"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/record"
)

// ErrMalformedTable marks a table whose ids cannot be indexed. It is the
// only fatal condition in resolution.
var ErrMalformedTable = errors.New("malformed table")

// Ref is a resolved reference with the display fields consumers need.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayFunc extracts the display name of a target record.
type DisplayFunc func(record.Record) string

// NameField returns a DisplayFunc reading the given field.
func NameField(field string) DisplayFunc {
	return func(r record.Record) string { return r.String(field) }
}

// Index maps a table's ids to display references.
type Index struct {
	table string
	refs  map[string]Ref
	order []string
}

// NewIndex indexes records by id. Empty or repeated ids make the table
// malformed.
func NewIndex(table string, records []record.Record, display DisplayFunc) (*Index, error) {
	ix := &Index{
		table: table,
		refs:  make(map[string]Ref, len(records)),
		order: make([]string, 0, len(records)),
	}
	for i, r := range records {
		if r.ID == "" {
			return nil, malformed(table, fmt.Sprintf("record at position %d has no id", i))
		}
		if _, dup := ix.refs[r.ID]; dup {
			return nil, malformed(table, fmt.Sprintf("duplicate id %s", r.ID))
		}
		name := ""
		if display != nil {
			name = display(r)
		}
		ix.refs[r.ID] = Ref{ID: r.ID, Name: name}
		ix.order = append(ix.order, r.ID)
	}
	return ix, nil
}

func malformed(table, msg string) error {
	return apperr.Wrap(apperr.CodeMalformedTable, ErrMalformedTable, fmt.Sprintf("table %s: %s", table, msg))
}

func (ix *Index) Table() string { return ix.table }
func (ix *Index) Len() int      { return len(ix.refs) }

func (ix *Index) Lookup(id string) (Ref, bool) {
	ref, ok := ix.refs[id]
	return ref, ok
}

// IDs returns the indexed ids in source order.
func (ix *Index) IDs() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Resolved is the outcome for one source record.
type Resolved struct {
	SourceID string
	Refs     []Ref
}

// Resolver resolves link fields of records from one source table.
type Resolver struct {
	Table string
	Sink  Sink
}

func (r Resolver) sink() Sink {
	if r.Sink == nil {
		return Discard
	}
	return r.Sink
}

// Resolve returns one Resolved per input record, in input order.
func (r Resolver) Resolve(records []record.Record, ix *Index, field string) []Resolved {
	out := make([]Resolved, 0, len(records))
	for _, rec := range records {
		out = append(out, Resolved{SourceID: rec.ID, Refs: r.ResolveOne(rec, ix, field)})
	}
	return out
}

// ResolveOne resolves a single record's link field. Repeated ids collapse
// to their first occurrence. A field that is not a list of ids resolves to
// nothing and is reported as malformed.
func (r Resolver) ResolveOne(rec record.Record, ix *Index, field string) []Ref {
	ids, ok := rec.IDs(field)
	if !ok {
		r.sink().Warn(Warning{
			Kind:     KindMalformed,
			Table:    r.Table,
			SourceID: rec.ID,
			Field:    field,
			Detail:   fmt.Sprintf("expected a list of record ids, got %T", rec.Fields[field]),
		})
		return []Ref{}
	}
	refs := make([]Ref, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if ref, ok := r.Lookup(rec.ID, field, ix, id); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Lookup resolves one id on behalf of sourceID, reporting a dangling
// reference when it is not in ix.
func (r Resolver) Lookup(sourceID, field string, ix *Index, id string) (Ref, bool) {
	if ref, ok := ix.Lookup(id); ok {
		return ref, true
	}
	r.sink().Warn(Warning{
		Kind:      KindDangling,
		Table:     r.Table,
		SourceID:  sourceID,
		Field:     field,
		MissingID: id,
		Detail:    "not found in " + ix.Table(),
	})
	return Ref{}, false
}

// Resolve is Resolver.Resolve for callers that do not track the source
// table name.
func Resolve(records []record.Record, ix *Index, field string, sink Sink) []Resolved {
	return Resolver{Sink: sink}.Resolve(records, ix, field)
}
