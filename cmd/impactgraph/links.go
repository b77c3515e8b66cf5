package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	temporalmod "github.com/efebarandurmaz/impactgraph/internal/temporal"
)

func newLinksCmd(configPath *string) *cobra.Command {
	linksCmd := &cobra.Command{
		Use:   "links",
		Short: "Propose and apply Problem→Project link changes",
	}

	var (
		mode          string
		capOverride   int
		useCandidates bool
		outPath       string
	)
	proposeCmd := &cobra.Command{
		Use:   "propose",
		Short: "Compute target link sets without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPropose(cmd.Context(), *configPath, mode, capOverride, useCandidates, outPath)
		},
	}
	proposeCmd.Flags().StringVar(&mode, "mode", "both", "fill, prune or both")
	proposeCmd.Flags().IntVar(&capOverride, "cap", 0, "Override the taxonomy cap")
	proposeCmd.Flags().BoolVar(&useCandidates, "candidates", false, "Narrow fills to the vector index candidates")
	proposeCmd.Flags().StringVar(&outPath, "out", "", "Write the proposal to this file instead of stdout")

	var (
		proposalPath string
		confirm      bool
	)
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Write a reviewed proposal to the link store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), *configPath, proposalPath, confirm)
		},
	}
	applyCmd.Flags().StringVar(&proposalPath, "proposal", "", "Proposal file produced by 'links propose'")
	applyCmd.Flags().BoolVar(&confirm, "confirm", false, "Actually write the changes")
	_ = applyCmd.MarkFlagRequired("proposal")

	var (
		runMode       string
		runCap        int
		runCandidates bool
		runApply      bool
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the link proposal workflow on Temporal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), *configPath, temporalmod.LinkProposalInput{
				Mode:          runMode,
				Cap:           runCap,
				UseCandidates: runCandidates,
				Apply:         runApply,
			})
		},
	}
	runCmd.Flags().StringVar(&runMode, "mode", "both", "fill, prune or both")
	runCmd.Flags().IntVar(&runCap, "cap", 0, "Override the taxonomy cap")
	runCmd.Flags().BoolVar(&runCandidates, "candidates", false, "Narrow fills to the vector index candidates")
	runCmd.Flags().BoolVar(&runApply, "apply", false, "Write the proposal without a review step (omit to only propose)")

	var historyLimit int
	historyCmd := &cobra.Command{
		Use:   "history <problem-id>",
		Short: "Show applied link changes for a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), *configPath, args[0], historyLimit)
		},
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of changes")

	linksCmd.AddCommand(proposeCmd, applyCmd, runCmd, historyCmd)
	return linksCmd
}

func runPropose(ctx context.Context, configPath, modeName string, capOverride int, useCandidates bool, outPath string) error {
	mode, err := linker.ParseMode(modeName)
	if err != nil {
		return err
	}
	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, span := observability.StartProposeSpan(ctx, string(mode))
	defer span.End()

	g, err := a.Explorer.Graph(ctx)
	if err != nil {
		return err
	}
	opts := linker.Options{Mode: mode, Cap: capOverride}
	if useCandidates {
		candidates := a.Candidates()
		if candidates == nil {
			return apperr.New(apperr.CodeInvalidConfig, "--candidates needs vector.host")
		}
		src, err := candidates(ctx, g)
		if err != nil {
			return err
		}
		opts.Candidates = src
	}

	problems, projects := linker.FromGraph(g)
	p := linker.Propose(problems, projects, a.Scorer, opts)
	observability.RecordProposeResult(span, len(problems), len(p.Updates))
	a.Log.Info("links proposed", "proposal_id", p.ID, "mode", string(p.Mode), "updates", len(p.Updates))

	if outPath == "" {
		return linker.WriteProposal(os.Stdout, p)
	}
	if err := linker.SaveProposal(outPath, p); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Proposal %s: %d updates written to %s\n", p.ID, len(p.Updates), outPath)
	return nil
}

func runApply(ctx context.Context, configPath, proposalPath string, confirm bool) error {
	p, err := linker.LoadProposal(proposalPath)
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Fprintf(os.Stderr, "Proposal %s has %d updates. Re-run with --confirm to write them.\n", p.ID, len(p.Updates))
		return linker.ErrNotConfirmed
	}

	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := a.Writer()
	if err != nil {
		return err
	}
	applier := &linker.Applier{
		Writer:   w,
		Recorder: a.Recorder(),
		Log:      a.Log,
		Metrics:  a.Metrics,
	}
	res, err := applier.Apply(ctx, p, confirm)
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return apperr.Newf(apperr.CodeDataUnavailable, "%d link updates failed", len(res.Failed))
	}
	return nil
}

func runWorkflow(ctx context.Context, configPath string, input temporalmod.LinkProposalInput) error {
	if _, err := linker.ParseMode(input.Mode); err != nil {
		return err
	}
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeDataUnavailable, err, "temporal client")
	}
	defer c.Close()

	log.Info("starting link proposal workflow", "task_queue", cfg.Temporal.TaskQueue, "mode", input.Mode, "apply", input.Apply)
	out, err := temporalmod.RunLinkProposal(ctx, c, cfg.Temporal.TaskQueue, input)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runHistory(ctx context.Context, configPath, problemID string, limit int) error {
	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()
	if a.Ledger == nil {
		return apperr.New(apperr.CodeInvalidConfig, "ledger.dsn is not configured")
	}
	changes, err := a.Ledger.History(ctx, problemID, limit)
	if err != nil {
		return err
	}
	return printJSON(changes)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
