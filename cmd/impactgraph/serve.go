package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/impactgraph/internal/api"
	"github.com/efebarandurmaz/impactgraph/internal/app"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API over the current graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, configPath, addr string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "impactgraph",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return err
	}

	gs := server.NewGracefulServer(
		&server.HealthConfig{Version: version},
		&server.ShutdownConfig{Timeout: cfg.Server.ShutdownTimeout, Logger: log},
	)
	a.RegisterHealth(gs.Health)
	for _, h := range a.ShutdownHooks() {
		gs.RegisterHook(h)
	}
	if tp != nil {
		gs.RegisterHook(server.TracingShutdownHook(tp.Shutdown))
	}
	gs.RegisterHook(server.LoggerShutdownHook(log))

	router := api.NewRouter(api.RouterConfig{
		Graph:        a.Explorer,
		Health:       gs.Health,
		Metrics:      a.Metrics,
		Log:          log,
		AllowOrigins: cfg.Server.AllowOrigins,
		RetryAfter:   cfg.Server.RetryAfter,
		ServiceName:  "impactgraph",
	})

	// Warm the graph so the first request does not pay for assembly.
	go func() {
		if _, err := a.Explorer.Graph(ctx); err != nil {
			log.Warn("initial assembly failed", "error", err)
		}
	}()

	log.Info("serving api", "addr", cfg.Server.Addr, "version", version)
	return gs.ListenAndServe(cfg.Server.Addr, router)
}
