package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/explorer"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/graph/graphtest"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	src    *record.MemorySource
	svc    *explorer.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	names := graph.DefaultTableNames().Source()
	tables := map[string][]record.Record{}
	for logical, recs := range graphtest.Tables() {
		tables[names[logical]] = recs
	}
	src := record.NewMemorySource(tables)
	svc := explorer.New(src, explorer.Config{})

	health := server.NewHealthServer(&server.HealthConfig{Version: "test"})
	health.RegisterCheck("graph", server.GraphHealthChecker(svc.Last))

	return &fixture{
		router: NewRouter(RouterConfig{
			Graph:   svc,
			Health:  health,
			Metrics: observability.NewPipelineMetrics(),
		}),
		src: src,
		svc: svc,
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestGraphSnapshot(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/graph")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[map[string]any](t, w)
	assert.NotEmpty(t, body["fingerprint"])
	assert.Len(t, body["problems"], 2)
	assert.Len(t, body["people"], 2)
	assert.Equal(t, float64(7), body["warningCount"])
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/problems")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		Items []graph.Problem `json:"items"`
		Count int             `json:"count"`
	}](t, w)
	assert.Equal(t, 2, list.Count)
	assert.Len(t, list.Items, 2)

	w = f.get(t, "/api/problems/"+graphtest.PoisonProblem)
	require.Equal(t, http.StatusOK, w.Code)
	one := decodeBody[struct {
		Item graph.Problem `json:"item"`
	}](t, w)
	assert.Equal(t, "Poison center underfunding", one.Item.Name)
	require.NotNil(t, one.Item.Category)
	assert.Equal(t, "recC1", one.Item.Category.ID)

	w = f.get(t, "/api/organizations/recOrgA")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Poison Control Network")
}

func TestUnknownIDIs404(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/problems/recNope", "/api/worldviews/recNope", "/api/problems/recNope/candidates"} {
		w := f.get(t, path)
		require.Equal(t, http.StatusNotFound, w.Code, path)
		env := decodeBody[ErrorEnvelope](t, w)
		assert.Equal(t, "NOT_FOUND", env.Error.Code)
		assert.False(t, env.Error.Retryable)
	}
}

func TestUnknownRouteIs404Envelope(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/nothing-here")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody[ErrorEnvelope](t, w).Error.Code)
}

func TestSourceFailureIs503WithRetryAfter(t *testing.T) {
	f := newFixture(t)
	f.src.Fail = map[string]error{"Problems": errors.New("connection reset")}

	w := f.get(t, "/api/problems")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	env := decodeBody[ErrorEnvelope](t, w)
	assert.Equal(t, "DATA_UNAVAILABLE", env.Error.Code)
	assert.True(t, env.Error.Retryable)
}

func TestCandidates(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/problems/"+graphtest.PoisonProblem+"/candidates?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		Problem    graph.Ref                 `json:"problem"`
		Threshold  int                       `json:"threshold"`
		Candidates []explorer.CandidateScore `json:"candidates"`
	}](t, w)
	assert.Equal(t, graphtest.PoisonProblem, body.Problem.ID)
	assert.Equal(t, 2, body.Threshold)
	require.Len(t, body.Candidates, 1)
	assert.Equal(t, "recHotline", body.Candidates[0].Project.ID)
	assert.Equal(t, 4, body.Candidates[0].Score)

	w = f.get(t, "/api/problems/"+graphtest.PoisonProblem+"/candidates?accepted=true")
	require.Equal(t, http.StatusOK, w.Code)
	accepted := decodeBody[struct {
		Candidates []explorer.CandidateScore `json:"candidates"`
	}](t, w)
	require.NotEmpty(t, accepted.Candidates)
	for _, c := range accepted.Candidates {
		assert.True(t, c.Accepted, c.Project.ID)
	}

	w = f.get(t, "/api/problems/"+graphtest.PoisonProblem+"/candidates?limit=many")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWarningsFilter(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/warnings?kind=link_pruned")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		Warnings    []map[string]any `json:"warnings"`
		FieldErrors []map[string]any `json:"fieldErrors"`
		Counts      map[string]int   `json:"counts"`
	}](t, w)
	assert.Len(t, body.Warnings, 4)
	assert.NotNil(t, body.FieldErrors)
	assert.Equal(t, 3, body.Counts["dangling_reference"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/status").Code)

	require.Equal(t, http.StatusOK, f.get(t, "/api/aggregates").Code)
	w := f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody[map[string]any](t, w), "graph")
}

func TestHealthAndMetricsMounted(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, server.HealthStatusDegraded, decodeBody[server.HealthResponse](t, w).Status)

	f.get(t, "/api/graph")
	w = f.get(t, "/health")
	assert.Equal(t, server.HealthStatusHealthy, decodeBody[server.HealthResponse](t, w).Status)

	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/ready").Code)

	w = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "impactgraph_")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/graph", nil)
	req.Header.Set("Origin", "https://map.example.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
