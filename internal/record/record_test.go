package record

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

func TestRecord_Accessors(t *testing.T) {
	r := Record{ID: "rec1", Fields: map[string]any{
		"Name":     "Poison Control Data Gaps",
		"Tags":     []any{"rural", "", "data"},
		"Single":   "only",
		"Score":    float64(3),
		"NumText":  " 4.5 ",
		"Projects": []any{"recA", "recB"},
		"Bad":      []any{"recA", 7.0},
		"Lookup":   []any{"Ohio", "Kentucky"},
	}}

	assert.Equal(t, "Poison Control Data Gaps", r.String("Name"))
	assert.Equal(t, "Ohio, Kentucky", r.String("Lookup"))
	assert.Equal(t, "3", r.String("Score"))
	assert.Equal(t, "", r.String("Missing"))

	assert.Equal(t, []string{"rural", "data"}, r.Strings("Tags"))
	assert.Equal(t, []string{"only"}, r.Strings("Single"))
	assert.Nil(t, r.Strings("Missing"))

	ids, ok := r.IDs("Projects")
	assert.True(t, ok)
	assert.Equal(t, []string{"recA", "recB"}, ids)

	_, ok = r.IDs("Bad")
	assert.False(t, ok)
	_, ok = r.IDs("Score")
	assert.False(t, ok)

	ids, ok = r.IDs("Missing")
	assert.True(t, ok)
	assert.Empty(t, ids)

	n, ok := r.Number("NumText")
	assert.True(t, ok)
	assert.Equal(t, 4.5, n)
	_, ok = r.Number("Name")
	assert.False(t, ok)

	assert.True(t, r.Has("Name"))
	assert.False(t, r.Has("Missing"))
}

func TestFetchTables_AllSucceed(t *testing.T) {
	src := NewMemorySource(map[string][]Record{
		"Problems": {{ID: "p1"}},
		"Projects": {{ID: "j1"}, {ID: "j2"}},
	})

	got, err := FetchTables(context.Background(), src, []string{"Problems", "Projects"})
	require.NoError(t, err)
	assert.Len(t, got["Problems"], 1)
	assert.Len(t, got["Projects"], 2)
	assert.Equal(t, []string{"Problems", "Projects"}, TableNames(got))
}

func TestFetchTables_AnyFailureIsDataUnavailable(t *testing.T) {
	src := NewMemorySource(map[string][]Record{
		"Problems": {{ID: "p1"}},
		"Projects": {{ID: "j1"}},
	})
	src.Fail = map[string]error{"Projects": errors.New("503 from upstream")}

	got, err := FetchTables(context.Background(), src, []string{"Problems", "Projects"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, apperr.CodeDataUnavailable, apperr.CodeOf(err))
	assert.True(t, apperr.IsRetryable(err))
}

func TestFetchTables_MissingTable(t *testing.T) {
	src := NewMemorySource(nil)
	_, err := FetchTables(context.Background(), src, []string{"Worldviews"})
	assert.True(t, apperr.Is(err, apperr.CodeDataUnavailable))
}

func TestFetchTables_NilSource(t *testing.T) {
	_, err := FetchTables(context.Background(), nil, []string{"Worldviews"})
	assert.True(t, apperr.Is(err, apperr.CodeDataUnavailable))
}

func TestComputeFingerprint_StableAndSensitive(t *testing.T) {
	a := map[string][]Record{
		"Problems": {{ID: "p1", Fields: map[string]any{"Name": "x", "Category": []any{"c1"}}}},
		"Projects": {{ID: "j1", Fields: map[string]any{"Name": "y"}}},
	}
	b := map[string][]Record{
		"Projects": {{ID: "j1", Fields: map[string]any{"Name": "y"}}},
		"Problems": {{ID: "p1", Fields: map[string]any{"Category": []any{"c1"}, "Name": "x"}}},
	}

	fa, fb := ComputeFingerprint(a), ComputeFingerprint(b)
	assert.Equal(t, fa.Composite, fb.Composite)
	assert.Empty(t, fa.Changed(fb))

	b["Projects"][0].Fields["Name"] = "z"
	fc := ComputeFingerprint(b)
	assert.NotEqual(t, fa.Composite, fc.Composite)
	assert.Equal(t, []string{"Projects"}, fa.Changed(fc))
}

func TestFingerprint_ChangedIncludesOneSidedTables(t *testing.T) {
	fa := ComputeFingerprint(map[string][]Record{"A": nil})
	fb := ComputeFingerprint(map[string][]Record{"B": nil})
	assert.Equal(t, []string{"A", "B"}, fa.Changed(fb))
}
