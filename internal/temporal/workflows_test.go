package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/graph/graphtest"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
)

type staticGraph struct{ g *graph.Graph }

func (s staticGraph) Graph(context.Context) (*graph.Graph, error) { return s.g, nil }

// sourceLinks seeds a writer with the curated links of every problem.
func sourceLinks(g *graph.Graph) map[string][]string {
	out := make(map[string][]string, len(g.Problems))
	for _, p := range g.Problems {
		ids := []string{}
		for _, r := range p.SourceProjects() {
			ids = append(ids, r.ID)
		}
		out[p.ID] = ids
	}
	return out
}

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env    *testsuite.TestWorkflowEnvironment
	writer *linker.MemoryWriter
}

func (s *WorkflowSuite) SetupTest() {
	g := graphtest.Graph()
	s.writer = linker.NewMemoryWriter(sourceLinks(g))
	SetDependencies(&Dependencies{Graph: staticGraph{g}, Writer: s.writer})

	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(ProposeLinksActivity)
	s.env.RegisterActivity(ApplyLinksActivity)
}

func (s *WorkflowSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
	SetDependencies(nil)
}

func (s *WorkflowSuite) TestProposeOnlyByDefault() {
	s.env.ExecuteWorkflow(LinkProposalWorkflow, LinkProposalInput{Mode: "prune"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var out LinkProposalOutput
	s.NoError(s.env.GetWorkflowResult(&out))
	s.Require().NotNil(out.Proposal)
	s.Require().Len(out.Proposal.Updates, 1)
	s.Equal(graphtest.CappedProblem, out.Proposal.Updates[0].ProblemID)
	s.Equal("fixture", out.Fingerprint)
	s.Nil(out.Applied)
	s.Equal(0, s.writer.Writes())
}

func (s *WorkflowSuite) TestApplyWritesProposal() {
	s.env.ExecuteWorkflow(LinkProposalWorkflow, LinkProposalInput{Mode: "prune", Apply: true})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var out LinkProposalOutput
	s.NoError(s.env.GetWorkflowResult(&out))
	s.Require().NotNil(out.Applied)
	s.Equal([]string{graphtest.CappedProblem}, out.Applied.Written)
	s.Equal([]string{"recJ5", "recJ4", "recJ3"}, s.writer.Links()[graphtest.CappedProblem])
}

func (s *WorkflowSuite) TestApplySkippedWhenNothingChanges() {
	s.env.ExecuteWorkflow(LinkProposalWorkflow, LinkProposalInput{Mode: "prune", Cap: 10, Apply: true})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var out LinkProposalOutput
	s.NoError(s.env.GetWorkflowResult(&out))
	s.Empty(out.Proposal.Updates)
	s.Nil(out.Applied)
	s.Equal(0, s.writer.Writes())
}

func (s *WorkflowSuite) TestInvalidModeFailsWithoutRetry() {
	s.env.ExecuteWorkflow(LinkProposalWorkflow, LinkProposalInput{Mode: "sideways"})
	s.True(s.env.IsWorkflowCompleted())

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal("INVALID_CONFIGURATION", appErr.Type())
	s.True(appErr.NonRetryable())
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func TestApplyLinksActivity_RequiresConfirmation(t *testing.T) {
	g := graphtest.Graph()
	writer := linker.NewMemoryWriter(sourceLinks(g))
	SetDependencies(&Dependencies{Graph: staticGraph{g}, Writer: writer})
	t.Cleanup(func() { SetDependencies(nil) })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(ApplyLinksActivity)

	p := &linker.Proposal{ID: "p", Updates: []linker.Update{{ProblemID: graphtest.CappedProblem, ProjectIDs: []string{"recJ5"}}}}
	_, err := env.ExecuteActivity(ApplyLinksActivity, ApplyInput{Proposal: p})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_CONFIRMED", appErr.Type())
	assert.Equal(t, 0, writer.Writes())

	val, err := env.ExecuteActivity(ApplyLinksActivity, ApplyInput{Proposal: p, Confirm: true})
	require.NoError(t, err)
	var res linker.ApplyResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, []string{graphtest.CappedProblem}, res.Written)
}

func TestProposeLinksActivity_UsesCandidates(t *testing.T) {
	g := graphtest.Graph()
	SetDependencies(&Dependencies{
		Graph: staticGraph{g},
		Candidates: func(ctx context.Context, g *graph.Graph) (linker.CandidateSource, error) {
			return linker.CandidateMap{graphtest.PoisonProblem: {}}, nil
		},
	})
	t.Cleanup(func() { SetDependencies(nil) })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(ProposeLinksActivity)

	val, err := env.ExecuteActivity(ProposeLinksActivity, LinkProposalInput{Mode: "fill", UseCandidates: true})
	require.NoError(t, err)
	var res ProposeResult
	require.NoError(t, val.Get(&res))
	_, ok := res.Proposal.Update(graphtest.PoisonProblem)
	assert.False(t, ok, "empty candidate list leaves nothing to fill")
}
