// Package app builds the configured record source, cache, stores and
// indexes into the services the CLI, API server and worker share.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookgo/clock"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/cache"
	"github.com/efebarandurmaz/impactgraph/internal/config"
	"github.com/efebarandurmaz/impactgraph/internal/explorer"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/graph/neo4j"
	"github.com/efebarandurmaz/impactgraph/internal/ledger"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/record/airtable"
	"github.com/efebarandurmaz/impactgraph/internal/record/file"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
	"github.com/efebarandurmaz/impactgraph/internal/server"
	"github.com/efebarandurmaz/impactgraph/internal/temporal"
	"github.com/efebarandurmaz/impactgraph/internal/vector"
	"github.com/efebarandurmaz/impactgraph/internal/vector/qdrant"
)

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Metrics  *observability.PipelineMetrics
	Scorer   *scoring.Scorer
	Source   record.Source
	Cache    *cache.Cache
	Explorer *explorer.Service

	// Optional backends; nil when not configured.
	Airtable *airtable.Client
	Redis    *cache.Redis
	Neo4j    *neo4j.Store
	Ledger   *ledger.Store
	Index    *vector.Index

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

type Option func(*App)

// WithSource replaces the configured record source.
func WithSource(src record.Source) Option {
	return func(a *App) { a.Source = src }
}

// WithVectorRepository indexes into repo instead of Qdrant.
func WithVectorRepository(repo vector.Repository) Option {
	return func(a *App) { a.Index = vector.NewIndex(repo, a.Scorer, a.Log) }
}

func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(a *App) { a.Metrics = m }
}

// New connects every configured backend. Anything opened before a failure
// is closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, apperr.New(apperr.CodeInvalidConfig, "no configuration")
	}
	scorer, err := LoadScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		Log:     logger.OrNop(log),
		Metrics: observability.Metrics(),
		Scorer:  scorer,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.build(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	if a.Source == nil {
		src, err := a.openSource()
		if err != nil {
			return err
		}
		a.Source = src
	}
	if err := a.openCache(ctx); err != nil {
		return err
	}
	a.Explorer = explorer.New(a.Source, explorer.Config{
		Tables: cfg.Tables,
		Fields: cfg.Fields,
		Scorer: a.Scorer,
		Cap:    cfg.Scoring.Cap,
	}, explorer.WithLogger(a.Log), explorer.WithMetrics(a.Metrics))

	if cfg.Graph.URI != "" {
		store, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			return err
		}
		a.Neo4j = store
		a.onClose("neo4j", store.Close)
	}

	if cfg.Ledger.DSN != "" {
		store, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN, a.Log)
		if err != nil {
			return err
		}
		a.Ledger = store
		a.onClose("ledger", func(context.Context) error { return store.Close() })
	}

	if a.Index == nil && cfg.Vector.Host != "" {
		repo, err := qdrant.New(qdrant.Config{
			Host:       cfg.Vector.Host,
			Port:       cfg.Vector.Port,
			Collection: cfg.Vector.Collection,
		})
		if err != nil {
			return apperr.Wrap(apperr.CodeInvalidConfig, err, "qdrant")
		}
		a.Index = vector.NewIndex(repo, a.Scorer, a.Log)
		a.onClose("qdrant", func(context.Context) error { return repo.Close() })
	}

	a.Log.Info("backends ready",
		"source", cfg.Source.Kind,
		"cache", a.cacheBackend(),
		"neo4j", a.Neo4j != nil,
		"ledger", a.Ledger != nil,
		"vector", a.Index != nil)
	return nil
}

// LoadScorer builds the scorer from the configured taxonomy file, or the
// embedded taxonomy when none is set.
func LoadScorer(cfg config.ScoringConfig) (*scoring.Scorer, error) {
	tax, err := scoring.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	return scoring.New(tax)
}

func (a *App) openSource() (record.Source, error) {
	switch a.Config.Source.Kind {
	case "file":
		if a.Config.Source.Dir == "" {
			return nil, apperr.New(apperr.CodeInvalidConfig, "source.dir is required for the file source")
		}
		return file.New(a.Config.Source.Dir), nil
	case "airtable", "":
		c, err := a.airtableClient()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, apperr.Newf(apperr.CodeInvalidConfig, "unknown source kind %q", a.Config.Source.Kind)
	}
}

func (a *App) airtableClient() (*airtable.Client, error) {
	if a.Airtable != nil {
		return a.Airtable, nil
	}
	at := a.Config.Source.Airtable
	c, err := airtable.New(airtable.Config{
		BaseURL:           at.BaseURL,
		APIKey:            at.APIKey,
		BaseID:            at.BaseID,
		RequestsPerSecond: at.RequestsPerSecond,
		MaxRetries:        at.MaxRetries,
		Timeout:           at.Timeout,
	}, a.Log, airtable.WithMetrics(a.Metrics))
	if err != nil {
		return nil, err
	}
	a.Airtable = c
	return c, nil
}

func (a *App) openCache(ctx context.Context) error {
	cc := a.Config.Cache
	if cc.Backend == "none" || cc.TTL <= 0 {
		return nil
	}
	var store cache.Store
	switch cc.Backend {
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
			Prefix:   a.Config.Redis.Prefix,
		})
		if err != nil {
			return apperr.Wrap(apperr.CodeDataUnavailable, err, "redis cache")
		}
		a.Redis = r
		a.onClose("redis", func(context.Context) error { return r.Close() })
		store = r
	case "memory", "":
		store = cache.NewMemory(clock.New())
	default:
		return apperr.Newf(apperr.CodeInvalidConfig, "unknown cache backend %q", cc.Backend)
	}
	a.Cache = cache.New(store, cc.TTL, cache.WithLogger(a.Log), cache.WithMetrics(a.Metrics))
	a.Source = cache.NewCachedSource(a.Cache, a.Source)
	return nil
}

func (a *App) cacheBackend() string {
	switch {
	case a.Cache == nil:
		return "none"
	case a.Redis != nil:
		return "redis"
	default:
		return "memory"
	}
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Writer returns the link store apply writes to.
func (a *App) Writer() (linker.LinkWriter, error) {
	switch a.Config.Links.Writer {
	case "neo4j":
		if a.Neo4j == nil {
			return nil, apperr.New(apperr.CodeInvalidConfig, "links writer neo4j needs graph.uri")
		}
		return a.Neo4j, nil
	case "airtable", "":
		c, err := a.airtableClient()
		if err != nil {
			return nil, err
		}
		table := a.Config.Tables.Source()[graph.TableProblems]
		field := a.Config.Fields.WithDefaults().Problem.Projects
		return airtable.NewProblemLinks(c, table, field), nil
	default:
		return nil, apperr.Newf(apperr.CodeInvalidConfig, "unknown links writer %q", a.Config.Links.Writer)
	}
}

// Recorder returns the ledger, or nil when no ledger is configured.
func (a *App) Recorder() linker.Recorder {
	if a.Ledger == nil {
		return nil
	}
	return a.Ledger
}

// Candidates returns vector-backed fill candidates, or nil without an
// index.
func (a *App) Candidates() temporal.CandidateFunc {
	if a.Index == nil {
		return nil
	}
	topK := a.Config.Vector.TopK
	return func(ctx context.Context, g *graph.Graph) (linker.CandidateSource, error) {
		m, err := a.Index.CandidateMap(ctx, g, topK)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// TemporalDependencies builds the activity dependencies. A writer that
// cannot be built leaves apply unconfigured rather than failing proposals.
func (a *App) TemporalDependencies() *temporal.Dependencies {
	d := &temporal.Dependencies{
		Graph:      a.Explorer,
		Scorer:     a.Scorer,
		Recorder:   a.Recorder(),
		Candidates: a.Candidates(),
		Metrics:    a.Metrics,
		Log:        a.Log,
	}
	w, err := a.Writer()
	if err != nil {
		a.Log.Warn("link writer unavailable", "error", err)
		return d
	}
	d.Writer = w
	return d
}

// RegisterHealth adds one check per configured backend. The record source
// is required; mirrors and caches only degrade health.
func (a *App) RegisterHealth(h *server.HealthServer) {
	h.RegisterCheck("graph", server.GraphHealthChecker(a.Explorer.Last))
	if a.Airtable != nil {
		table := a.Config.Tables.Source()[graph.TableProblems]
		h.RegisterCheck("airtable", server.DependencyChecker("record_source", true, func(ctx context.Context) error {
			return a.Airtable.Ping(ctx, table)
		}))
	}
	if a.Redis != nil {
		h.RegisterCheck("redis", server.DependencyChecker("cache", false, a.Redis.Ping))
	}
	if a.Neo4j != nil {
		h.RegisterCheck("neo4j", server.DependencyChecker("graph_store", false, a.Neo4j.Ping))
	}
	if a.Ledger != nil {
		h.RegisterCheck("ledger", server.DependencyChecker("ledger", false, a.Ledger.Ping))
	}
}

// ShutdownHooks closes every opened backend after the server stops.
func (a *App) ShutdownHooks() []server.ShutdownHook {
	hooks := make([]server.ShutdownHook, 0, len(a.closers))
	for _, c := range a.closers {
		hooks = append(hooks, server.StoreShutdownHook(c.name, c.fn))
	}
	return hooks
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
