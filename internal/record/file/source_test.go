package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/record"
)

func TestSource_FetchAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Problems.json"), []byte(`{
		"records": [
			{"id": "p1", "fields": {"Name": "Poison Control Data Gaps", "Projects": ["j1", "j2"]}},
			{"id": "p2", "fields": {"Name": "Training Shortage"}}
		]
	}`), 0o644))

	recs, err := New(dir).FetchAll(context.Background(), "Problems")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	ids, ok := recs[0].IDs("Projects")
	assert.True(t, ok)
	assert.Equal(t, []string{"j1", "j2"}, ids)
}

func TestSource_MissingFile(t *testing.T) {
	_, err := New(t.TempDir()).FetchAll(context.Background(), "Worldviews")
	assert.True(t, apperr.Is(err, apperr.CodeDataUnavailable))
}

func TestSource_BadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Outcomes.json"), []byte(`{"records": [`), 0o644))

	_, err := New(dir).FetchAll(context.Background(), "Outcomes")
	assert.True(t, apperr.Is(err, apperr.CodeMalformedTable))
}

func TestSave_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snap")
	tables := map[string][]record.Record{
		"Projects": {{ID: "j1", Fields: map[string]any{"Name": "Rural Naloxone"}}},
		"People":   nil,
	}
	require.NoError(t, Save(dir, tables))

	src := New(dir)
	recs, err := src.FetchAll(context.Background(), "Projects")
	require.NoError(t, err)
	assert.Equal(t, "Rural Naloxone", recs[0].String("Name"))

	people, err := src.FetchAll(context.Background(), "People")
	require.NoError(t, err)
	assert.Empty(t, people)
}
