package main

import (
	"context"
	"fmt"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/impactgraph/internal/app"
	"github.com/efebarandurmaz/impactgraph/internal/config"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/server"
	temporalmod "github.com/efebarandurmaz/impactgraph/internal/temporal"
)

func main() {
	configPath := "configs/impactgraph.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

// run starts the worker and blocks until a shutdown signal has been handled.
// Every resource opened before a failure is released before it returns.
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	zl, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	ctx := context.Background()
	var tracingShutdown func(context.Context) error
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "impactgraph-worker",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		zl.Warn("tracing disabled", "error", err)
	} else {
		tracingShutdown = tp.Shutdown
	}

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		releaseEarly(tracingShutdown, zl)
		return fmt.Errorf("backends: %w", err)
	}

	temporalmod.SetDependencies(a.TemporalDependencies())

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		_ = a.Close(context.Background())
		releaseEarly(tracingShutdown, zl)
		return fmt.Errorf("temporal client: %w", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		_ = a.Close(context.Background())
		releaseEarly(tracingShutdown, zl)
		return fmt.Errorf("worker: %w", err)
	}

	sh := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  zl,
	})
	for _, h := range shutdownHooks(w.Stop, c.Close, a.ShutdownHooks(), tracingShutdown, zl) {
		sh.Register(h)
	}
	sh.Start()

	zl.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)
	sh.Wait()
	return nil
}

// shutdownHooks orders worker teardown: stop polling, close the Temporal
// client and the app's stores, flush traces, then flush the logger.
func shutdownHooks(stopWorker, closeClient func(), stores []server.ShutdownHook, tracing func(context.Context) error, log *logger.Logger) []server.ShutdownHook {
	hooks := []server.ShutdownHook{
		server.TemporalWorkerShutdownHook(stopWorker),
		server.StoreShutdownHook("temporal-client", func(context.Context) error {
			closeClient()
			return nil
		}),
	}
	hooks = append(hooks, stores...)
	if tracing != nil {
		hooks = append(hooks, server.TracingShutdownHook(tracing))
	}
	return append(hooks, server.LoggerShutdownHook(log))
}

func releaseEarly(tracing func(context.Context) error, log *logger.Logger) {
	if tracing != nil {
		_ = tracing(context.Background())
	}
	log.Sync()
}
