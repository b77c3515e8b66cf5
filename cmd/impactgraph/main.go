package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/impactgraph/internal/app"
	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/config"
	"github.com/efebarandurmaz/impactgraph/internal/explorer"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/record/file"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

var version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "impactgraph",
		Short:         "Assemble and explore the problem/solution knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/impactgraph.yaml", "Config file path")

	var (
		jsonOut   bool
		exportDir string
	)
	assembleCmd := &cobra.Command{
		Use:   "assemble",
		Short: "Fetch every table and assemble the graph once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssemble(cmd.Context(), configPath, jsonOut, exportDir)
		},
	}
	assembleCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the graph snapshot as JSON")
	assembleCmd.Flags().StringVar(&exportDir, "export", "", "Also save the fetched tables to this directory")

	var candidateLimit int
	candidatesCmd := &cobra.Command{
		Use:   "candidates <problem-id>",
		Short: "Score every project against one problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCandidates(cmd.Context(), configPath, args[0], candidateLimit)
		},
	}
	candidatesCmd.Flags().IntVar(&candidateLimit, "limit", 10, "Number of projects to show (0 for all)")

	taxonomyCmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Relevance taxonomy operations",
	}
	taxonomyValidateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a taxonomy file (the embedded one when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return validateTaxonomy(path)
		},
	}
	taxonomyCmd.AddCommand(taxonomyValidateCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the assembled graph into external stores",
	}
	syncCmd.AddCommand(&cobra.Command{
		Use:   "neo4j",
		Short: "Upsert every node and relationship into Neo4j",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncNeo4j(cmd.Context(), configPath)
		},
	})

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build candidate indexes",
	}
	indexCmd.AddCommand(&cobra.Command{
		Use:   "qdrant",
		Short: "Index project feature vectors into Qdrant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexQdrant(cmd.Context(), configPath)
		},
	})

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		assembleCmd,
		candidatesCmd,
		newLinksCmd(&configPath),
		syncCmd,
		indexCmd,
		taxonomyCmd,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ae *apperr.Error
		if errors.As(err, &ae) {
			fmt.Fprintf(os.Stderr, "Code:  %s\n", ae.Code)
		}
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger.
func setup(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

// openApp loads configuration and connects every configured backend. The
// returned cleanup closes them and flushes the logger.
func openApp(ctx context.Context, configPath string) (*app.App, func(), error) {
	cfg, log, err := setup(configPath)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn("closing backends", "error", err)
		}
		log.Sync()
	}
	return a, cleanup, nil
}

func runAssemble(ctx context.Context, configPath string, jsonOut bool, exportDir string) error {
	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	g, err := a.Explorer.Graph(ctx)
	if err != nil {
		if report := a.Explorer.LastReport(); report != nil && !jsonOut {
			report.PrintSummary(os.Stderr)
		}
		return err
	}

	if exportDir != "" {
		names := make([]string, 0, 8)
		for _, n := range a.Config.Tables.Source() {
			names = append(names, n)
		}
		sort.Strings(names)
		tables, err := record.FetchTables(ctx, a.Source, names)
		if err != nil {
			return err
		}
		if err := file.Save(exportDir, tables); err != nil {
			return fmt.Errorf("export tables: %w", err)
		}
		a.Log.Info("tables exported", "dir", exportDir, "tables", len(tables))
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g.Snapshot())
	}
	a.Explorer.LastReport().PrintSummary(os.Stdout)
	return nil
}

func runCandidates(ctx context.Context, configPath, problemID string, limit int) error {
	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	g, err := a.Explorer.Graph(ctx)
	if err != nil {
		return err
	}
	scored, err := explorer.CandidatesFor(g, a.Scorer, problemID)
	if err != nil {
		return err
	}
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	p, _ := g.Problem(problemID)
	fmt.Printf("%s (%s)  threshold=%d cap=%d\n\n", p.Name, p.ID, a.Scorer.Threshold(), a.Scorer.Cap())
	for _, c := range scored {
		mark := " "
		if c.Linked {
			mark = "*"
		}
		verdict := "rejected"
		if c.Accepted {
			verdict = "accepted"
		}
		fmt.Printf("%s %3d  %-8s  %-14s %s  %v\n", mark, c.Score, verdict, c.Project.ID, c.Project.Name, c.Categories)
	}
	return nil
}

func validateTaxonomy(path string) error {
	tax, err := scoring.LoadTaxonomy(path)
	if err != nil {
		return err
	}
	s, err := scoring.New(tax)
	if err != nil {
		return err
	}
	source := path
	if source == "" {
		source = "embedded taxonomy"
	}
	fmt.Printf("%s: ok (%d dimensions, threshold %d, cap %d)\n", source, len(s.Dimensions()), s.Threshold(), s.Cap())
	return nil
}

func runSyncNeo4j(ctx context.Context, configPath string) error {
	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()
	if a.Neo4j == nil {
		return apperr.New(apperr.CodeInvalidConfig, "graph.uri is not configured")
	}

	g, err := a.Explorer.Graph(ctx)
	if err != nil {
		return err
	}
	if err := a.Neo4j.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := a.Neo4j.StoreGraph(ctx, g); err != nil {
		return err
	}
	r := g.Report()
	fmt.Printf("Mirrored %d nodes and %d edges into Neo4j (fingerprint %s)\n", r.NodeCount(), r.Edges, g.Fingerprint)
	return nil
}

func runIndexQdrant(ctx context.Context, configPath string) error {
	a, cleanup, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()
	if a.Index == nil {
		return apperr.New(apperr.CodeInvalidConfig, "vector.host is not configured")
	}

	g, err := a.Explorer.Graph(ctx)
	if err != nil {
		return err
	}
	n, err := a.Index.IndexProjects(ctx, g)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d of %d projects into %s\n", n, len(g.Projects), a.Config.Vector.Collection)
	return nil
}
