package temporal

import (
	"context"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

// GraphSource returns the current assembled graph.
type GraphSource interface {
	Graph(ctx context.Context) (*graph.Graph, error)
}

// CandidateFunc precomputes fill candidates for a graph, e.g. from the
// vector index.
type CandidateFunc func(ctx context.Context, g *graph.Graph) (linker.CandidateSource, error)

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Graph      GraphSource
	Scorer     *scoring.Scorer
	Writer     linker.LinkWriter
	Recorder   linker.Recorder
	Candidates CandidateFunc
	Metrics    *observability.PipelineMetrics
	Log        *logger.Logger
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// ProposeResult is the serializable output of ProposeLinksActivity.
type ProposeResult struct {
	Proposal    *linker.Proposal
	Fingerprint string
}

// ApplyInput carries a reviewed proposal into ApplyLinksActivity.
type ApplyInput struct {
	Proposal *linker.Proposal
	Confirm  bool
}

func ProposeLinksActivity(ctx context.Context, input LinkProposalInput) (ProposeResult, error) {
	if deps == nil || deps.Graph == nil {
		return ProposeResult{}, activityError(apperr.New(apperr.CodeInvalidConfig, "no graph source configured"))
	}
	mode, err := linker.ParseMode(input.Mode)
	if err != nil {
		return ProposeResult{}, activityError(err)
	}

	ctx, span := observability.StartProposeSpan(ctx, string(mode))
	defer span.End()

	g, err := deps.Graph.Graph(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return ProposeResult{}, activityError(err)
	}

	opts := linker.Options{Mode: mode, Cap: input.Cap}
	if input.UseCandidates && deps.Candidates != nil {
		src, err := deps.Candidates(ctx, g)
		if err != nil {
			observability.RecordError(span, err)
			return ProposeResult{}, activityError(err)
		}
		opts.Candidates = src
	}

	problems, projects := linker.FromGraph(g)
	p := linker.Propose(problems, projects, deps.Scorer, opts)
	observability.RecordProposeResult(span, len(problems), len(p.Updates))

	logger.OrNop(deps.Log).Info("links proposed",
		"proposal_id", p.ID, "mode", string(p.Mode), "updates", len(p.Updates), "fingerprint", g.Fingerprint)
	return ProposeResult{Proposal: p, Fingerprint: g.Fingerprint}, nil
}

func ApplyLinksActivity(ctx context.Context, input ApplyInput) (*linker.ApplyResult, error) {
	if deps == nil {
		return nil, activityError(apperr.New(apperr.CodeInvalidConfig, "activities not configured"))
	}
	if input.Proposal == nil {
		return nil, activityError(apperr.New(apperr.CodeInvalidConfig, "no proposal to apply"))
	}
	applier := &linker.Applier{
		Writer:   deps.Writer,
		Recorder: deps.Recorder,
		Log:      deps.Log,
		Metrics:  deps.Metrics,
	}
	res, err := applier.Apply(ctx, input.Proposal, input.Confirm)
	if err != nil {
		return nil, activityError(err)
	}
	return res, nil
}

// activityError marks every coded error except DATA_UNAVAILABLE as
// non-retryable so Temporal does not retry bad input.
func activityError(err error) error {
	if err == nil || apperr.IsRetryable(err) {
		return err
	}
	code := apperr.CodeOf(err)
	return temporal.NewNonRetryableApplicationError(err.Error(), string(code), err)
}
