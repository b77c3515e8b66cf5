package linker

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
)

// ErrNotConfirmed is returned by Apply when the caller did not confirm.
var ErrNotConfirmed = apperr.New(apperr.CodeNotConfirmed, "applying links requires explicit confirmation")

// LinkWriter reads and replaces the full project link set of a problem.
type LinkWriter interface {
	ProblemProjects(ctx context.Context, problemID string) ([]string, error)
	SetProblemProjects(ctx context.Context, problemID string, projectIDs []string) error
}

// BatchLinkWriter is implemented by writers that can replace many link
// sets in fewer round trips. The result maps problem ids to failures.
type BatchLinkWriter interface {
	LinkWriter
	SetProblemProjectsBatch(ctx context.Context, sets map[string][]string) map[string]error
}

// AppliedChange is one link set actually written.
type AppliedChange struct {
	RunID      string
	ProposalID string
	ProblemID  string
	Before     []string
	After      []string
	AppliedAt  time.Time
}

// Recorder keeps a history of applied changes.
type Recorder interface {
	Record(ctx context.Context, change AppliedChange) error
}

type ApplyResult struct {
	RunID     string            `json:"runId"`
	Written   []string          `json:"written"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed"`
}

type Applier struct {
	Writer   LinkWriter
	Recorder Recorder
	Log      *logger.Logger
	Metrics  *observability.PipelineMetrics
	Now      func() time.Time
}

// Apply writes every update whose target set differs from the writer's
// current set. Reapplying the same proposal writes nothing. A failed
// update does not stop the others; its error is reported in the result.
func (a *Applier) Apply(ctx context.Context, p *Proposal, confirm bool) (*ApplyResult, error) {
	if !confirm {
		return nil, ErrNotConfirmed
	}
	if a.Writer == nil {
		return nil, apperr.New(apperr.CodeInvalidConfig, "no link writer configured")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	log := logger.OrNop(a.Log)
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	ctx, span := observability.StartApplySpan(ctx, writerName(a.Writer))
	defer span.End()

	res := &ApplyResult{
		RunID:     uuid.NewString(),
		Written:   []string{},
		Unchanged: []string{},
		Failed:    map[string]string{},
	}
	log = log.With("run_id", res.RunID, "proposal_id", p.ID)

	before := make(map[string][]string, len(p.Updates))
	pending := make(map[string][]string)
	for _, u := range p.Updates {
		if err := ctx.Err(); err != nil {
			res.Failed[u.ProblemID] = err.Error()
			continue
		}
		current, err := a.Writer.ProblemProjects(ctx, u.ProblemID)
		if err != nil {
			log.Warn("read links failed", "problem_id", u.ProblemID, "error", err)
			res.Failed[u.ProblemID] = err.Error()
			continue
		}
		if SameSet(current, u.ProjectIDs) {
			res.Unchanged = append(res.Unchanged, u.ProblemID)
			continue
		}
		before[u.ProblemID] = current
		pending[u.ProblemID] = u.ProjectIDs
	}

	results := a.write(ctx, pending)
	for _, id := range sortedKeys(results) {
		if err := results[id]; err != nil {
			log.Warn("write links failed", "problem_id", id, "error", err)
			res.Failed[id] = err.Error()
			continue
		}
		res.Written = append(res.Written, id)
		if a.Recorder == nil {
			continue
		}
		change := AppliedChange{
			RunID:      res.RunID,
			ProposalID: p.ID,
			ProblemID:  id,
			Before:     before[id],
			After:      pending[id],
			AppliedAt:  now().UTC(),
		}
		if err := a.Recorder.Record(ctx, change); err != nil {
			log.Warn("record applied change failed", "problem_id", id, "error", err)
		}
	}

	if a.Metrics != nil {
		a.Metrics.RecordApply(len(res.Written), len(res.Failed))
	}
	observability.RecordApplyResult(span, len(res.Written), len(res.Unchanged), len(res.Failed))
	log.Info("links applied",
		"written", len(res.Written), "unchanged", len(res.Unchanged), "failed", len(res.Failed))
	return res, nil
}

// write replaces every pending set, batching when the writer supports it.
// The result has one entry per problem id; nil means written.
func (a *Applier) write(ctx context.Context, pending map[string][]string) map[string]error {
	out := make(map[string]error, len(pending))
	if len(pending) == 0 {
		return out
	}
	if bw, ok := a.Writer.(BatchLinkWriter); ok {
		failed := bw.SetProblemProjectsBatch(ctx, pending)
		for id := range pending {
			out[id] = failed[id]
		}
		return out
	}
	for _, id := range sortedKeys(pending) {
		if err := ctx.Err(); err != nil {
			out[id] = err
			continue
		}
		out[id] = a.Writer.SetProblemProjects(ctx, id, pending[id])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writerName(w LinkWriter) string {
	if n, ok := w.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}

// IsNotConfirmed reports whether err is a refusal to apply.
func IsNotConfirmed(err error) bool {
	return errors.Is(err, ErrNotConfirmed) || apperr.Is(err, apperr.CodeNotConfirmed)
}
