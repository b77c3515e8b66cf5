// Package record models raw rows pulled from the tabular record store and
// the all-or-nothing snapshot fetch that feeds graph assembly.
package record

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Record is one raw row: an opaque id plus a field map whose values are
// whatever the store's JSON decoded into (string, float64, bool, []any).
type Record struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Source supplies the full, ordered set of records of a logical table.
type Source interface {
	FetchAll(ctx context.Context, table string) ([]Record, error)
}

// Has reports whether the field is present at all.
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// String returns a scalar field as text. Lookup fields that arrive as arrays
// are joined with ", ". Absent or unsupported values yield "".
func (r Record) String(field string) string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case []any, []string:
		return strings.Join(r.Strings(field), ", ")
	default:
		s, _ := scalarString(t)
		return s
	}
}

// Strings returns a multi-value field (tags, multi-selects). A single string
// becomes a one-element slice; non-scalar elements are skipped.
func (r Record) Strings(field string) []string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := scalarString(e); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarString(t); ok && s != "" {
			return []string{s}
		}
		return nil
	}
}

// IDs returns a link field's foreign identifiers. ok is false when the field
// is present but is not a string or an array of strings; an absent field is
// an empty, well-formed link.
func (r Record) IDs(field string) (ids []string, ok bool) {
	v, present := r.Fields[field]
	if !present || v == nil {
		return nil, true
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, true
		}
		return []string{t}, true
	case []string:
		return append([]string(nil), t...), true
	case []any:
		ids = make([]string, 0, len(t))
		for _, e := range t {
			s, isString := e.(string)
			if !isString {
				return nil, false
			}
			ids = append(ids, s)
		}
		return ids, true
	default:
		return nil, false
	}
}

// Number returns a numeric field; strings holding numbers are parsed.
func (r Record) Number(field string) (float64, bool) {
	switch t := r.Fields[field].(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
