package linker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph/graphtest"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

func fillInputs() ([]ProblemInput, []ProjectInput) {
	problems := []ProblemInput{{
		ID:     "p1",
		Text:   scoring.ProblemText{Name: "Rural naloxone access", Description: "overdose training"},
		Linked: []string{"a"},
	}}
	projects := []ProjectInput{
		{ID: "a", Text: scoring.ProjectText{Name: "Existing", Description: "unrelated"}},
		{ID: "b", Text: scoring.ProjectText{Description: "naloxone kits for rural clinics"}},
		{ID: "c", Text: scoring.ProjectText{Description: "overdose response training"}},
		{ID: "d", Text: scoring.ProjectText{Description: "overdose"}},
		{ID: "e", Text: scoring.ProjectText{Description: "naloxone training"}},
	}
	return problems, projects
}

func TestPropose_PruneFromGraph(t *testing.T) {
	problems, projects := FromGraph(graphtest.Graph())

	p := Propose(problems, projects, nil, Options{Mode: ModePrune})

	require.Len(t, p.Updates, 1)
	u := p.Updates[0]
	assert.Equal(t, graphtest.CappedProblem, u.ProblemID)
	assert.Equal(t, []string{"recJ5", "recJ4", "recJ3"}, u.ProjectIDs)
	assert.Empty(t, u.Added)
	assert.Equal(t, []string{"recJ0", "recJ1a", "recJ2", "recJ1b"}, u.Removed)
	assert.Equal(t, 5, u.Scores["recJ5"])
	assert.Equal(t, 0, u.Scores["recJ0"])
	assert.Equal(t, ModePrune, p.Mode)
	assert.Equal(t, 3, p.Cap)
	assert.NotEmpty(t, p.ID)
}

func TestPropose_FillAddsAcceptedTopRanked(t *testing.T) {
	problems, projects := fillInputs()

	p := Propose(problems, projects, scoring.Default(), Options{Mode: ModeFill})

	require.Len(t, p.Updates, 1)
	u := p.Updates[0]
	assert.Equal(t, []string{"a", "b", "e"}, u.ProjectIDs)
	assert.Equal(t, []string{"b", "e"}, u.Added)
	assert.Empty(t, u.Removed)
	assert.Equal(t, map[string]int{"b": 5, "e": 4}, u.Scores)
}

func TestPropose_FillNeverAddsRejected(t *testing.T) {
	problems := []ProblemInput{{ID: "p", Text: scoring.ProblemText{Description: "policy"}}}
	projects := []ProjectInput{{ID: "j", Text: scoring.ProjectText{Description: "training"}}}

	p := Propose(problems, projects, nil, Options{Mode: ModeFill})
	assert.Empty(t, p.Updates)
	assert.NotNil(t, p.Updates)
}

func TestPropose_CandidateSourceNarrowsFill(t *testing.T) {
	problems, projects := fillInputs()

	p := Propose(problems, projects, nil, Options{
		Mode:       ModeFill,
		Candidates: CandidateMap{"p1": {"c", "d", "gone"}},
	})

	require.Len(t, p.Updates, 1)
	assert.Equal(t, []string{"a", "c"}, p.Updates[0].ProjectIDs)
}

func TestPropose_PruneModeDoesNotFill(t *testing.T) {
	problems, projects := fillInputs()

	p := Propose(problems, projects, nil, Options{Mode: ModePrune})
	assert.Empty(t, p.Updates)
}

func TestPropose_Deterministic(t *testing.T) {
	problems, projects := FromGraph(graphtest.Graph())
	now := func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	a := Propose(problems, projects, nil, Options{Now: now})
	b := Propose(problems, projects, nil, Options{Now: now})

	assert.Equal(t, a.Updates, b.Updates)
	assert.Equal(t, a.GeneratedAt, b.GeneratedAt)
	assert.Equal(t, ModeBoth, a.Mode)
}

func TestPropose_CapOverride(t *testing.T) {
	problems, projects := fillInputs()

	p := Propose(problems, projects, nil, Options{Mode: ModeBoth, Cap: 2})
	require.Len(t, p.Updates, 1)
	assert.Equal(t, []string{"a", "b"}, p.Updates[0].ProjectIDs)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Prune ")
	require.NoError(t, err)
	assert.Equal(t, ModePrune, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBoth, m)

	_, err = ParseMode("everything")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidConfig))
}

func TestDiff(t *testing.T) {
	added, removed := Diff([]string{"a", "b", "c"}, []string{"c", "d", "a"})
	assert.Equal(t, []string{"d"}, added)
	assert.Equal(t, []string{"b"}, removed)

	assert.True(t, SameSet([]string{"a", "b"}, []string{"b", "a", "a"}))
	assert.False(t, SameSet([]string{"a"}, nil))
	assert.True(t, SameSet(nil, []string{}))
}

func proposalFor(links map[string][]string) *Proposal {
	p := &Proposal{ID: "prop-1", Mode: ModeBoth, Cap: 3}
	for _, id := range sortedKeys(links) {
		p.Updates = append(p.Updates, Update{ProblemID: id, ProjectIDs: links[id]})
	}
	return p
}

func TestApply_RequiresConfirmation(t *testing.T) {
	w := NewMemoryWriter(map[string][]string{"p1": {"a"}})
	a := &Applier{Writer: w}

	res, err := a.Apply(context.Background(), proposalFor(map[string][]string{"p1": {"b"}}), false)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.True(t, IsNotConfirmed(err))
	assert.Equal(t, apperr.CodeNotConfirmed, apperr.CodeOf(err))
	assert.Equal(t, []string{"a"}, w.Links()["p1"])
	assert.Zero(t, w.Writes())
}

func TestApply_Idempotent(t *testing.T) {
	w := NewMemoryWriter(map[string][]string{
		"p1": {"a", "b", "c", "d"},
		"p2": {"x"},
		"p3": {"y", "z"},
	})
	m := observability.NewPipelineMetrics()
	a := &Applier{Writer: w, Metrics: m}
	p := proposalFor(map[string][]string{
		"p1": {"a", "b", "c"},
		"p2": {"x", "q"},
		"p3": {"z", "y"},
	})

	first, err := a.Apply(context.Background(), p, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, first.Written)
	assert.Equal(t, []string{"p3"}, first.Unchanged)
	assert.Empty(t, first.Failed)
	afterFirst := w.Links()

	second, err := a.Apply(context.Background(), p, true)
	require.NoError(t, err)
	assert.Empty(t, second.Written)
	assert.Equal(t, []string{"p1", "p2", "p3"}, second.Unchanged)
	assert.Equal(t, afterFirst, w.Links())
	assert.Equal(t, 2, w.Writes())
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, float64(2), m.LinksWrittenTotal.Value())
}

func TestApply_FailuresDoNotStopOthers(t *testing.T) {
	w := NewMemoryWriter(map[string][]string{"p1": {"a"}, "p2": {"b"}})
	w.Fail = map[string]error{"p1": errors.New("boom")}
	a := &Applier{Writer: w}

	res, err := a.Apply(context.Background(), proposalFor(map[string][]string{
		"p1":      {"c"},
		"p2":      {"c"},
		"missing": {"c"},
	}), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"p2"}, res.Written)
	assert.Contains(t, res.Failed["p1"], "boom")
	assert.Contains(t, res.Failed, "missing")
	assert.Equal(t, []string{"c"}, w.Links()["p2"])
	assert.Equal(t, []string{"a"}, w.Links()["p1"])
}

type fakeRecorder struct {
	mu      sync.Mutex
	changes []AppliedChange
}

func (r *fakeRecorder) Record(_ context.Context, c AppliedChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func TestApply_RecordsWrites(t *testing.T) {
	w := NewMemoryWriter(map[string][]string{"p1": {"a"}, "p2": {"b"}})
	rec := &fakeRecorder{}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := &Applier{Writer: w, Recorder: rec, Now: func() time.Time { return at }}

	res, err := a.Apply(context.Background(), proposalFor(map[string][]string{"p1": {"a", "c"}, "p2": {"b"}}), true)
	require.NoError(t, err)

	require.Len(t, rec.changes, 1)
	c := rec.changes[0]
	assert.Equal(t, res.RunID, c.RunID)
	assert.Equal(t, "prop-1", c.ProposalID)
	assert.Equal(t, "p1", c.ProblemID)
	assert.Equal(t, []string{"a"}, c.Before)
	assert.Equal(t, []string{"a", "c"}, c.After)
	assert.Equal(t, at, c.AppliedAt)
}

type batchWriter struct {
	*MemoryWriter
	batches int
}

func (b *batchWriter) SetProblemProjectsBatch(ctx context.Context, sets map[string][]string) map[string]error {
	b.batches++
	out := map[string]error{}
	for id, ids := range sets {
		if err := b.SetProblemProjects(ctx, id, ids); err != nil {
			out[id] = err
		}
	}
	return out
}

func TestApply_UsesBatchWriter(t *testing.T) {
	bw := &batchWriter{MemoryWriter: NewMemoryWriter(map[string][]string{"p1": {}, "p2": {}})}
	a := &Applier{Writer: bw}

	res, err := a.Apply(context.Background(), proposalFor(map[string][]string{"p1": {"a"}, "p2": {"b"}}), true)
	require.NoError(t, err)

	assert.Equal(t, 1, bw.batches)
	assert.Equal(t, []string{"p1", "p2"}, res.Written)
}

func TestApply_RejectsInvalidProposal(t *testing.T) {
	a := &Applier{Writer: NewMemoryWriter(nil)}
	p := &Proposal{Updates: []Update{{ProblemID: "p1", ProjectIDs: []string{"a", "a"}}}}

	_, err := a.Apply(context.Background(), p, true)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidConfig))
}

func TestProposalJSON(t *testing.T) {
	problems, projects := FromGraph(graphtest.Graph())
	p := Propose(problems, projects, nil, Options{Mode: ModePrune})

	var buf bytes.Buffer
	require.NoError(t, WriteProposal(&buf, p))
	assert.Contains(t, buf.String(), `"problemId": "recGaps"`)
	assert.Contains(t, buf.String(), `"generatedAt"`)

	back, err := ReadProposal(&buf)
	require.NoError(t, err)
	assert.Equal(t, p.Updates, back.Updates)
	assert.True(t, p.GeneratedAt.Equal(back.GeneratedAt))
}

func TestReadProposal_RejectsDuplicates(t *testing.T) {
	in := `{"id":"x","mode":"prune","updates":[{"problemId":"p1","projectIds":[]},{"problemId":"p1","projectIds":[]}]}`
	_, err := ReadProposal(strings.NewReader(in))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidConfig))

	_, err = ReadProposal(strings.NewReader(`{"updates":[],"extra":1}`))
	assert.Error(t, err)
}

func TestSaveLoadProposal(t *testing.T) {
	path := t.TempDir() + "/proposal.json"
	p := proposalFor(map[string][]string{"p1": {"a"}})

	require.NoError(t, SaveProposal(path, p))
	back, err := LoadProposal(path)
	require.NoError(t, err)
	assert.Equal(t, "prop-1", back.ID)
	assert.Equal(t, []string{"a"}, back.Updates[0].ProjectIDs)

	_, err = LoadProposal(path + ".missing")
	assert.Error(t, err)
}
