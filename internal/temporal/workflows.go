package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/impactgraph/internal/linker"
)

// LinkProposalInput holds the workflow parameters.
type LinkProposalInput struct {
	Mode string
	// Cap overrides the taxonomy cap when positive.
	Cap int
	// UseCandidates narrows fills to the configured candidate source.
	UseCandidates bool
	// Apply writes the proposal after generating it. It is the explicit
	// confirmation; without it the workflow only proposes.
	Apply bool
}

// LinkProposalOutput holds the workflow result.
type LinkProposalOutput struct {
	Proposal    *linker.Proposal
	Fingerprint string
	Applied     *linker.ApplyResult
}

// LinkProposalWorkflow proposes problem link changes from the current graph
// and, only when the input asks for it, applies them.
func LinkProposalWorkflow(ctx workflow.Context, input LinkProposalInput) (*LinkProposalOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	log := workflow.GetLogger(ctx)

	var proposed ProposeResult
	if err := workflow.ExecuteActivity(ctx, ProposeLinksActivity, input).Get(ctx, &proposed); err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}
	out := &LinkProposalOutput{Proposal: proposed.Proposal, Fingerprint: proposed.Fingerprint}

	if !input.Apply {
		log.Info("proposal ready for review", "updates", len(proposed.Proposal.Updates))
		return out, nil
	}
	if len(proposed.Proposal.Updates) == 0 {
		log.Info("nothing to apply")
		return out, nil
	}

	var applied linker.ApplyResult
	err := workflow.ExecuteActivity(ctx, ApplyLinksActivity, ApplyInput{
		Proposal: proposed.Proposal,
		Confirm:  true,
	}).Get(ctx, &applied)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	out.Applied = &applied
	return out, nil
}
