// Package file serves record tables from JSON exports on disk. Each table
// lives in <dir>/<table>.json using the same {"records": [...]} shape the
// REST API returns, so a saved API response can be dropped in unchanged.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/record"
)

type Source struct {
	dir string
}

func New(dir string) *Source {
	return &Source{dir: dir}
}

func (s *Source) FetchAll(ctx context.Context, table string) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(table)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Newf(apperr.CodeDataUnavailable, "table %q: %s not found", table, path)
		}
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, "read "+path)
	}

	var doc struct {
		Records []record.Record `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedTable, err, fmt.Sprintf("decode %s", path))
	}
	return doc.Records, nil
}

// Save writes tables to dir in the format FetchAll reads. Used by
// `assemble --export` to capture an offline snapshot.
func Save(dir string, tables map[string][]record.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, recs := range tables {
		if recs == nil {
			recs = []record.Record{}
		}
		data, err := json.MarshalIndent(map[string]any{"records": recs}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}
