package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(LinkProposalWorkflow)
	w.RegisterActivity(ProposeLinksActivity)
	w.RegisterActivity(ApplyLinksActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// RunLinkProposal starts LinkProposalWorkflow and waits for its result.
func RunLinkProposal(ctx context.Context, c client.Client, taskQueue string, input LinkProposalInput) (*LinkProposalOutput, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "link-proposal-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}, LinkProposalWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("start link proposal workflow: %w", err)
	}
	var out LinkProposalOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("link proposal workflow %s: %w", run.GetID(), err)
	}
	return &out, nil
}
