// Package vector indexes projects by their taxonomy features so fill
// candidates for a problem can be found by similarity search.
//
// A project is stored as its feature vector (1 per matched category, the
// weight per matched bonus term). A problem queries with a 0/1 indicator of
// the same features, so the dot product of the two is exactly the
// relevance score and the score threshold becomes the search cutoff.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

// Namespace seeds the deterministic point ids.
var Namespace = uuid.MustParse("6f1c8f5e-3b7a-5d2e-9a41-2c9f0e7b8d13")

const (
	DefaultTopK = 50
	batchSize   = 256
)

// PointID maps a project id to its stable point id.
func PointID(projectID string) string {
	return uuid.NewSHA1(Namespace, []byte(projectID)).String()
}

type Index struct {
	repo   Repository
	scorer *scoring.Scorer
	log    *logger.Logger
}

func NewIndex(repo Repository, scorer *scoring.Scorer, log *logger.Logger) *Index {
	if scorer == nil {
		scorer = scoring.Default()
	}
	return &Index{repo: repo, scorer: scorer, log: logger.OrNop(log)}
}

// IndexProjects upserts every project with at least one feature. It returns
// the number of points written.
func (ix *Index) IndexProjects(ctx context.Context, g *graph.Graph) (int, error) {
	ctx, span := observability.StartSyncSpan(ctx, "qdrant")
	defer span.End()

	if err := ix.repo.EnsureCollection(ctx, len(ix.scorer.Dimensions())); err != nil {
		observability.RecordError(span, err)
		return 0, apperr.Wrap(apperr.CodeDataUnavailable, err, "ensure vector collection")
	}

	points := make([]Point, 0, len(g.Projects))
	skipped := 0
	for _, p := range g.Projects {
		vec := ix.scorer.Features(p.Text().Corpus())
		if isZero(vec) {
			skipped++
			continue
		}
		points = append(points, Point{
			ID:     PointID(p.ID),
			Vector: vec,
			Payload: map[string]string{
				"project_id": p.ID,
				"name":       p.Name,
				"status":     p.Status,
			},
		})
	}

	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		if err := ix.repo.Upsert(ctx, points[start:end]); err != nil {
			observability.RecordError(span, err)
			return start, apperr.Wrap(apperr.CodeDataUnavailable, err, fmt.Sprintf("upsert points %d-%d", start, end))
		}
	}

	ix.log.Info("projects indexed", "points", len(points), "skipped_featureless", skipped)
	return len(points), nil
}

// Candidates returns up to topK project ids whose score against problem
// reaches the scorer threshold, best first.
func (ix *Index) Candidates(ctx context.Context, problem scoring.ProblemText, topK int) ([]string, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	query := indicator(ix.scorer.Features(problem.Corpus()))
	if isZero(query) {
		return []string{}, nil
	}
	matches, err := ix.repo.Search(ctx, query, topK, float32(ix.scorer.Threshold()))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, "vector search")
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if id := m.Payload["project_id"]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CandidateMap precomputes candidates for every problem in g.
func (ix *Index) CandidateMap(ctx context.Context, g *graph.Graph, topK int) (linker.CandidateMap, error) {
	out := make(linker.CandidateMap, len(g.Problems))
	for _, p := range g.Problems {
		ids, err := ix.Candidates(ctx, p.Text(), topK)
		if err != nil {
			return nil, fmt.Errorf("candidates for %s: %w", p.ID, err)
		}
		out[p.ID] = ids
	}
	return out, nil
}

func indicator(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		if x != 0 {
			out[i] = 1
		}
	}
	return out
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
