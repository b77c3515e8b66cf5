// Package explorer serves the current assembled graph. It fetches every
// table, reuses the last graph while the snapshot fingerprint is unchanged
// and publishes a new graph only after a complete, successful assembly.
package explorer

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/metrics"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/resolve"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

type Config struct {
	Tables graph.TableNames
	Fields graph.FieldNames
	Scorer *scoring.Scorer
	Cap    int
}

type Service struct {
	src     record.Source
	cfg     Config
	log     *logger.Logger
	metrics *observability.PipelineMetrics
	group   singleflight.Group

	mu         sync.RWMutex
	last       *graph.Graph
	lastFP     record.Fingerprint
	lastReport *metrics.AssemblyMetrics
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(src record.Source, cfg Config, opts ...Option) *Service {
	if cfg.Scorer == nil {
		cfg.Scorer = scoring.Default()
	}
	s := &Service{src: src, cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)
	return s
}

func (s *Service) Scorer() *scoring.Scorer { return s.cfg.Scorer }

// Last returns the last published graph, or nil before the first success.
func (s *Service) Last() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// LastReport returns the metrics of the most recent run, successful or not.
func (s *Service) LastReport() *metrics.AssemblyMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Graph returns the graph for the current source snapshot. Concurrent
// callers share one fetch. A fetch or assembly failure returns an error
// and leaves the last published graph in place.
//
// The shared fetch is not tied to the first caller's cancellation; a caller
// whose ctx ends stops waiting without failing the others.
func (s *Service) Graph(ctx context.Context) (*graph.Graph, error) {
	ch := s.group.DoChan("graph", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*graph.Graph), nil
	}
}

func (s *Service) refresh(ctx context.Context) (*graph.Graph, error) {
	report := metrics.New()
	names := s.cfg.Tables.Source()
	storeNames := make([]string, 0, len(names))
	for _, n := range names {
		storeNames = append(storeNames, n)
	}
	sort.Strings(storeNames)

	fetchStart := time.Now()
	fetched, err := record.FetchTables(ctx, s.src, storeNames)
	if err != nil {
		report.AddStage("fetch", time.Since(fetchStart), 1)
		s.fail(report, err, time.Since(fetchStart))
		return nil, err
	}
	report.AddStage("fetch", time.Since(fetchStart), 0)

	fp := record.ComputeFingerprint(fetched)
	report.CollectSource(fetched, fp.Composite)

	s.mu.RLock()
	last, lastFP := s.last, s.lastFP
	s.mu.RUnlock()
	if last != nil && lastFP.Composite == fp.Composite {
		report.Reused = true
		report.CollectGraph(last)
		report.Finish(nil)
		s.setReport(report)
		return last, nil
	}

	ctx, span := observability.StartAssembleSpan(ctx)
	defer span.End()
	start := time.Now()
	g, err := graph.Assemble(graph.FromSource(fetched, s.cfg.Tables), graph.Options{
		Fields:      s.cfg.Fields,
		Scorer:      s.cfg.Scorer,
		Cap:         s.cfg.Cap,
		Fingerprint: fp.Composite,
	})
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		report.AddStage("assemble", elapsed, 1)
		s.fail(report, err, elapsed)
		return nil, err
	}
	report.AddStage("assemble", elapsed, 0)
	report.CollectGraph(g)
	report.Finish(nil)

	r := g.Report()
	observability.RecordAssembleResult(span, r.NodeCount(), r.Edges, len(g.Warnings))
	if s.metrics != nil {
		s.metrics.RecordAssembly(elapsed, r.NodeCount(), r.Edges, warningCounts(r.Warnings), nil)
	}

	s.mu.Lock()
	s.last = g
	s.lastFP = fp
	s.lastReport = report
	s.mu.Unlock()

	s.log.Info("graph assembled",
		"fingerprint", fp.Composite,
		"changed_tables", lastFP.Changed(fp),
		"nodes", r.NodeCount(),
		"edges", r.Edges,
		"warnings", len(g.Warnings),
		"field_errors", len(g.FieldErrors),
		"duration_ms", elapsed.Milliseconds())
	return g, nil
}

func (s *Service) fail(report *metrics.AssemblyMetrics, err error, d time.Duration) {
	report.Finish([]string{err.Error()})
	s.setReport(report)
	if s.metrics != nil {
		s.metrics.RecordAssembly(d, 0, 0, nil, err)
	}
	s.log.Warn("graph refresh failed", "code", apperr.CodeOf(err), "error", err)
}

func (s *Service) setReport(r *metrics.AssemblyMetrics) {
	s.mu.Lock()
	s.lastReport = r
	s.mu.Unlock()
}

func warningCounts(m map[resolve.WarningKind]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// CandidateScore is one project scored against a problem.
type CandidateScore struct {
	Project graph.Ref `json:"project"`
	// Linked is true when the project is among the problem's capped links.
	Linked bool `json:"linked"`
	scoring.Breakdown
}

// Candidates scores every project against a problem, best first. Ties
// keep project order.
func (s *Service) Candidates(ctx context.Context, problemID string) ([]CandidateScore, error) {
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return CandidatesFor(g, s.cfg.Scorer, problemID)
}

func CandidatesFor(g *graph.Graph, scorer *scoring.Scorer, problemID string) ([]CandidateScore, error) {
	p, ok := g.Problem(problemID)
	if !ok {
		return nil, apperr.Newf(apperr.CodeNotFound, "problem %s not found", problemID)
	}
	linked := make(map[string]bool, len(p.Projects))
	for _, r := range p.Projects {
		linked[r.ID] = true
	}
	out := make([]CandidateScore, 0, len(g.Projects))
	for _, j := range g.Projects {
		out = append(out, CandidateScore{
			Project:   graph.Ref{ID: j.ID, Name: j.Name},
			Linked:    linked[j.ID],
			Breakdown: scorer.Breakdown(p.Text(), j.Text()),
		})
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Score > out[k].Score })
	return out, nil
}
