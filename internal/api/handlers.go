package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/explorer"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/metrics"
	"github.com/efebarandurmaz/impactgraph/internal/resolve"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

// GraphService is what the handlers read from. *explorer.Service
// satisfies it.
type GraphService interface {
	Graph(ctx context.Context) (*graph.Graph, error)
	Scorer() *scoring.Scorer
	LastReport() *metrics.AssemblyMetrics
}

type GraphHandler struct {
	log        *logger.Logger
	svc        GraphService
	retryAfter time.Duration
}

func NewGraphHandler(log *logger.Logger, svc GraphService, retryAfter time.Duration) *GraphHandler {
	return &GraphHandler{
		log:        logger.OrNop(log).With("handler", "GraphHandler"),
		svc:        svc,
		retryAfter: retryAfter,
	}
}

// current loads the graph or writes the error response. It returns nil
// when the request has already been answered.
func (h *GraphHandler) current(c *gin.Context) *graph.Graph {
	g, err := h.svc.Graph(c.Request.Context())
	if err != nil {
		h.log.Warn("graph unavailable", "path", c.FullPath(), "code", apperr.CodeOf(err), "error", err)
		RespondError(c, err, h.retryAfter)
		return nil
	}
	return g
}

// GET /api/graph
func (h *GraphHandler) Snapshot(c *gin.Context) {
	if g := h.current(c); g != nil {
		RespondOK(c, g.Snapshot())
	}
}

// GET /api/aggregates
func (h *GraphHandler) Aggregates(c *gin.Context) {
	g := h.current(c)
	if g == nil {
		return
	}
	RespondOK(c, gin.H{"aggregates": g.Aggregates, "fingerprint": g.Fingerprint})
}

// GET /api/warnings?kind=
func (h *GraphHandler) Warnings(c *gin.Context) {
	g := h.current(c)
	if g == nil {
		return
	}
	warnings := g.Warnings
	if kind := c.Query("kind"); kind != "" {
		warnings = make([]resolve.Warning, 0, len(g.Warnings))
		for _, w := range g.Warnings {
			if string(w.Kind) == kind {
				warnings = append(warnings, w)
			}
		}
	}
	RespondOK(c, gin.H{
		"warnings":    orEmpty(warnings),
		"fieldErrors": orEmpty(g.FieldErrors),
		"counts":      resolve.CountByKind(g.Warnings),
		"fingerprint": g.Fingerprint,
	})
}

// GET /api/status
func (h *GraphHandler) Status(c *gin.Context) {
	report := h.svc.LastReport()
	if report == nil {
		RespondError(c, apperr.New(apperr.CodeNotFound, "no assembly has run yet"), 0)
		return
	}
	RespondOK(c, report)
}

// GET /api/problems/:id/candidates?limit=&accepted=
func (h *GraphHandler) Candidates(c *gin.Context) {
	g := h.current(c)
	if g == nil {
		return
	}
	scorer := h.svc.Scorer()
	id := c.Param("id")
	cands, err := explorer.CandidatesFor(g, scorer, id)
	if err != nil {
		RespondError(c, err, 0)
		return
	}
	if c.Query("accepted") == "true" {
		kept := cands[:0]
		for _, cand := range cands {
			if cand.Accepted {
				kept = append(kept, cand)
			}
		}
		cands = kept
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			RespondError(c, apperr.Newf(apperr.CodeInvalidConfig, "limit must be a non-negative integer, got %q", raw), 0)
			return
		}
		if n < len(cands) {
			cands = cands[:n]
		}
	}
	p, _ := g.Problem(id)
	RespondOK(c, gin.H{
		"problem":    graph.Ref{ID: p.ID, Name: p.Name},
		"threshold":  scorer.Threshold(),
		"cap":        g.Cap,
		"candidates": cands,
	})
}

// list serves every node of one kind.
func list[T any](h *GraphHandler, nodes func(*graph.Graph) []T) gin.HandlerFunc {
	return func(c *gin.Context) {
		g := h.current(c)
		if g == nil {
			return
		}
		items := orEmpty(nodes(g))
		RespondOK(c, gin.H{"items": items, "count": len(items), "fingerprint": g.Fingerprint})
	}
}

// get serves one node by id, or 404.
func get[T any](h *GraphHandler, kind graph.NodeKind, find func(*graph.Graph, string) (T, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		g := h.current(c)
		if g == nil {
			return
		}
		id := c.Param("id")
		item, ok := find(g, id)
		if !ok {
			RespondError(c, apperr.Newf(apperr.CodeNotFound, "%s %s not found", kind, id), 0)
			return
		}
		RespondOK(c, gin.H{"item": item, "fingerprint": g.Fingerprint})
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
