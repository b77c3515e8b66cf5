// Package api is the read-only JSON API over the assembled graph.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/server"
)

type RouterConfig struct {
	Graph        GraphService
	Health       *server.HealthServer
	Metrics      *observability.PipelineMetrics
	Log          *logger.Logger
	AllowOrigins []string
	// RetryAfter is advertised on 503 responses. Defaults to 30s.
	RetryAfter  time.Duration
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "impactgraph"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(RequestLogger(cfg.Log))
	r.Use(CORS(cfg.AllowOrigins))

	if cfg.Health != nil {
		h := gin.WrapH(cfg.Health.Handler())
		for _, p := range []string{"/health", "/ready", "/live", "/healthz", "/readyz", "/livez"} {
			r.GET(p, h)
		}
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	gh := NewGraphHandler(cfg.Log, cfg.Graph, cfg.RetryAfter)

	api := r.Group("/api")
	{
		api.GET("/graph", gh.Snapshot)
		api.GET("/aggregates", gh.Aggregates)
		api.GET("/warnings", gh.Warnings)
		api.GET("/status", gh.Status)

		api.GET("/worldviews", list(gh, func(g *graph.Graph) []*graph.Worldview { return g.Worldviews }))
		api.GET("/worldviews/:id", get(gh, graph.KindWorldview, (*graph.Graph).Worldview))
		api.GET("/outcomes", list(gh, func(g *graph.Graph) []*graph.Outcome { return g.Outcomes }))
		api.GET("/outcomes/:id", get(gh, graph.KindOutcome, (*graph.Graph).Outcome))
		api.GET("/problem-categories", list(gh, func(g *graph.Graph) []*graph.ProblemCategory { return g.ProblemCategories }))
		api.GET("/problem-categories/:id", get(gh, graph.KindProblemCategory, (*graph.Graph).ProblemCategory))
		api.GET("/problems", list(gh, func(g *graph.Graph) []*graph.Problem { return g.Problems }))
		api.GET("/problems/:id", get(gh, graph.KindProblem, (*graph.Graph).Problem))
		api.GET("/problems/:id/candidates", gh.Candidates)
		api.GET("/projects", list(gh, func(g *graph.Graph) []*graph.Project { return g.Projects }))
		api.GET("/projects/:id", get(gh, graph.KindProject, (*graph.Graph).Project))
		api.GET("/organizations", list(gh, func(g *graph.Graph) []*graph.Organization { return g.Organizations }))
		api.GET("/organizations/:id", get(gh, graph.KindOrganization, (*graph.Graph).Organization))
		api.GET("/people", list(gh, func(g *graph.Graph) []*graph.Person { return g.People }))
		api.GET("/people/:id", get(gh, graph.KindPerson, (*graph.Graph).Person))
		api.GET("/programs", list(gh, func(g *graph.Graph) []*graph.Program { return g.Programs }))
		api.GET("/programs/:id", get(gh, graph.KindProgram, (*graph.Graph).Program))
	}

	r.NoRoute(func(c *gin.Context) {
		RespondError(c, apperr.Newf(apperr.CodeNotFound, "no route for %s %s", c.Request.Method, c.Request.URL.Path), 0)
	})
	return r
}
