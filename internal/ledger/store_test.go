package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "whatever", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidConfig))
}

func TestRecordAndHistory(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, linker.AppliedChange{
		RunID: "run-1", ProposalID: "prop-1", ProblemID: "recP",
		Before: []string{"a", "b", "c", "d"}, After: []string{"a", "b", "c"}, AppliedAt: t0,
	}))
	require.NoError(t, s.Record(ctx, linker.AppliedChange{
		RunID: "run-2", ProposalID: "prop-2", ProblemID: "recP",
		Before: []string{"a", "b", "c"}, After: nil, AppliedAt: t0.Add(time.Hour),
	}))
	require.NoError(t, s.Record(ctx, linker.AppliedChange{
		RunID: "run-2", ProposalID: "prop-2", ProblemID: "recQ",
		Before: nil, After: []string{"x"}, AppliedAt: t0.Add(time.Hour),
	}))

	hist, err := s.History(ctx, "recP", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "run-2", hist[0].RunID)
	assert.Equal(t, []string{}, hist[0].After)
	assert.Equal(t, []string{"a", "b", "c", "d"}, hist[1].Before)
	assert.True(t, hist[1].AppliedAt.Equal(t0))

	limited, err := s.History(ctx, "recP", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	run, err := s.Run(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.Equal(t, "recP", run[0].ProblemID)
	assert.Equal(t, "recQ", run[1].ProblemID)

	none, err := s.History(ctx, "recNone", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_AsApplyRecorder(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	writer := linker.NewMemoryWriter(map[string][]string{"recP": {"a"}})
	applier := &linker.Applier{Writer: writer, Recorder: s}
	p := &linker.Proposal{
		ID:   "prop-9",
		Mode: linker.ModeFill,
		Updates: []linker.Update{{
			ProblemID: "recP", ProjectIDs: []string{"a", "b"}, Added: []string{"b"}, Removed: []string{},
		}},
	}

	res, err := applier.Apply(ctx, p, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"recP"}, res.Written)

	hist, err := s.History(ctx, "recP", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, res.RunID, hist[0].RunID)
	assert.Equal(t, "prop-9", hist[0].ProposalID)
	assert.Equal(t, []string{"a"}, hist[0].Before)
	assert.Equal(t, []string{"a", "b"}, hist[0].After)
}
