package graph_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/graph/graphtest"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/resolve"
)

func refIDs(refs []graph.Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func warningsOf(g *graph.Graph, kind resolve.WarningKind) []resolve.Warning {
	var out []resolve.Warning
	for _, w := range g.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

func TestAssemble_Counts(t *testing.T) {
	g := graphtest.Graph()

	assert.Len(t, g.Worldviews, 2)
	assert.Len(t, g.Outcomes, 2)
	assert.Len(t, g.ProblemCategories, 2)
	assert.Len(t, g.Problems, 2)
	assert.Len(t, g.Projects, 8)
	assert.Len(t, g.Organizations, 2)
	assert.Len(t, g.People, 2)
	assert.Len(t, g.Programs, 1)
	assert.Equal(t, 16, g.Index().Len())
	assert.Equal(t, "fixture", g.Fingerprint)
	assert.Equal(t, 3, g.Cap)
}

func TestAssemble_CapsProjectsToTopScored(t *testing.T) {
	g := graphtest.Graph()

	p, ok := g.Problem(graphtest.CappedProblem)
	require.True(t, ok)
	assert.Equal(t, []string{"recJ5", "recJ4", "recJ3"}, refIDs(p.Projects))
	assert.Len(t, p.SourceProjects(), 7)

	pruned := warningsOf(g, resolve.KindPruned)
	require.Len(t, pruned, 4)
	var dropped []string
	for _, w := range pruned {
		assert.Equal(t, graphtest.CappedProblem, w.SourceID)
		dropped = append(dropped, w.MissingID)
	}
	assert.ElementsMatch(t, []string{"recJ2", "recJ1a", "recJ1b", "recJ0"}, dropped)

	for _, p := range g.Problems {
		assert.LessOrEqual(t, len(p.Projects), 3, p.ID)
	}
}

func TestAssemble_CapOverride(t *testing.T) {
	g, err := graph.Assemble(graphtest.Tables(), graph.Options{Cap: 1})
	require.NoError(t, err)

	p, _ := g.Problem(graphtest.CappedProblem)
	assert.Equal(t, []string{"recJ5"}, refIDs(p.Projects))
	assert.Equal(t, 1, g.Cap)
}

func TestAssemble_DanglingWorldviewDropsLinkOnly(t *testing.T) {
	g := graphtest.Graph()

	assert.Len(t, g.Outcomes, 2)
	o, ok := g.Outcome("recO2")
	require.True(t, ok)
	require.Len(t, o.Worldviews, 1)
	assert.Equal(t, "recW1", o.Worldviews[0].ID)
	assert.Equal(t, graph.LevelLow, o.Worldviews[0].Level)

	var found bool
	for _, w := range warningsOf(g, resolve.KindDangling) {
		if w.SourceID == "recO2" && w.MissingID == "recWGone" {
			found = true
			assert.Equal(t, graph.TableOutcomes, w.Table)
			assert.Equal(t, "Worldviews", w.Field)
		}
	}
	assert.True(t, found)
	assert.Len(t, warningsOf(g, resolve.KindDangling), 3)
}

func TestAssemble_NoDanglingReferences(t *testing.T) {
	g := graphtest.Graph()

	check := func(kind graph.NodeKind, refs []graph.Ref) {
		for _, r := range refs {
			assert.True(t, g.Has(graph.NodeKey{Kind: kind, ID: r.ID}), "%s %s", kind, r.ID)
		}
	}
	for _, w := range g.Worldviews {
		for _, r := range w.Outcomes {
			assert.True(t, g.Has(graph.NodeKey{Kind: graph.KindOutcome, ID: r.ID}))
		}
	}
	for _, o := range g.Outcomes {
		for _, r := range o.Worldviews {
			assert.True(t, g.Has(graph.NodeKey{Kind: graph.KindWorldview, ID: r.ID}))
		}
	}
	for _, c := range g.ProblemCategories {
		check(graph.KindProblem, c.Problems)
	}
	for _, p := range g.Problems {
		check(graph.KindProject, p.Projects)
		if p.Category != nil {
			check(graph.KindProblemCategory, []graph.Ref{*p.Category})
		}
	}
	for _, p := range g.Projects {
		check(graph.KindOrganization, p.Organizations)
		check(graph.KindProblem, p.Problems)
	}
	for _, o := range g.Organizations {
		check(graph.KindPerson, o.People)
		check(graph.KindOrganization, o.AffiliatedOrganizations)
		check(graph.KindOrganization, o.AffiliatedBy)
		check(graph.KindProject, o.Projects)
	}
	for _, p := range g.People {
		check(graph.KindOrganization, p.Organizations)
	}
	for _, p := range g.Programs {
		check(graph.KindOrganization, p.Organizations)
	}
	for _, e := range g.Index().Edges() {
		assert.True(t, g.Has(e.From), e.From.String())
		assert.True(t, g.Has(e.To), e.To.String())
	}
}

func TestAssemble_InverseLinks(t *testing.T) {
	g := graphtest.Graph()

	for _, e := range g.Index().Edges() {
		assert.Contains(t, g.Neighbors(e.To, e.Relation, graph.Incoming), e.From)
		assert.Contains(t, g.Neighbors(e.From, e.Relation, graph.Outgoing), e.To)
	}

	w1, _ := g.Worldview("recW1")
	assert.Equal(t, []graph.RelevanceRef{
		{ID: "recO1", Name: "Fewer poisonings", Level: graph.LevelHigh},
		{ID: "recO2", Name: "Better data", Level: graph.LevelLow},
	}, w1.Outcomes)
	w2, _ := g.Worldview("recW2")
	require.Len(t, w2.Outcomes, 1)
	assert.Equal(t, graph.LevelMedium, w2.Outcomes[0].Level)

	j5, _ := g.Project("recJ5")
	assert.Equal(t, []string{graphtest.CappedProblem}, refIDs(j5.Problems))
	j2, _ := g.Project("recJ2")
	assert.Empty(t, j2.Problems)
	assert.NotNil(t, j2.Problems)

	orgA, _ := g.Organization("recOrgA")
	assert.Equal(t, []string{"recHotline", "recJ5"}, refIDs(orgA.Projects))
	orgB, _ := g.Organization("recOrgB")
	assert.Equal(t, []string{"recOrgA"}, refIDs(orgB.AffiliatedBy))
	assert.Equal(t, []string{"recBen"}, refIDs(orgB.People))

	ada, _ := g.Person("recAda")
	assert.Equal(t, []graph.Ref{{ID: "recOrgA", Name: "Poison Control Network"}}, ada.Organizations)

	c2, _ := g.ProblemCategory("recC2")
	assert.Equal(t, []string{graphtest.CappedProblem}, refIDs(c2.Problems))
}

func TestAssemble_AggregatesMatchNodes(t *testing.T) {
	g := graphtest.Graph()

	assert.Equal(t, graph.ComputeAggregates(g), g.Aggregates)

	agg := g.Aggregates
	assert.Equal(t, 8, agg.Totals[graph.KindProject])
	assert.Equal(t, map[string]int{"Funder": 2, "Convener": 1}, agg.OrganizationsByRole)
	assert.Equal(t, map[string]int{"KY": 1, "WV": 1}, agg.OrganizationsByState)
	assert.Equal(t, map[string]int{"USA": 2}, agg.OrganizationsByCountry)
	assert.Equal(t, map[string]int{"Safety": 1, "Service": 1, "Research": 1}, agg.ProjectsByType)
	assert.Equal(t, map[string]int{"Active": 2, "Planned": 1}, agg.ProjectsByStatus)
	assert.Equal(t, map[string]int{"Rural Health": 1}, agg.ProjectsByPriorityArea)
	assert.Equal(t, map[string]int{"recC1": 1, "recC2": 1}, agg.ProblemsByCategory)
	assert.Equal(t, map[string]int{"recW1": 2, "recW2": 1}, agg.OutcomesByWorldview)
	assert.Equal(t, map[graph.RelevanceLevel]int{graph.LevelHigh: 1, graph.LevelLow: 1},
		agg.OutcomesByWorldviewLevel["recW1"])
}

func TestAssemble_RelevanceLevelErrors(t *testing.T) {
	tables := graphtest.Tables()
	tables[graph.TableOutcomes] = []record.Record{{
		ID: "recO1",
		Fields: map[string]any{
			"Name":                "Mixed",
			"Worldviews":          []any{"recW1", "recW2"},
			"Worldview Relevance": []any{"Critical"},
		},
	}}

	g, err := graph.Assemble(tables, graph.Options{})
	require.NoError(t, err)

	o, _ := g.Outcome("recO1")
	assert.Empty(t, o.Worldviews)
	require.Len(t, g.FieldErrors, 2)
	assert.Equal(t, "Critical", g.FieldErrors[0].Value)
	assert.Equal(t, "", g.FieldErrors[1].Value)
	assert.Equal(t, "Worldview Relevance", g.FieldErrors[1].Field)
}

func TestAssemble_NonCanonicalLevelIsFieldError(t *testing.T) {
	tables := graphtest.Tables()
	tables[graph.TableOutcomes] = []record.Record{{
		ID: "recO1",
		Fields: map[string]any{
			"Name":                "Shouty",
			"Worldviews":          []any{"recW1", "recW2"},
			"Worldview Relevance": []any{"HIGH", " low "},
		},
	}}

	g, err := graph.Assemble(tables, graph.Options{})
	require.NoError(t, err)

	o, ok := g.Outcome("recO1")
	require.True(t, ok)
	assert.Empty(t, o.Worldviews)
	require.Len(t, g.FieldErrors, 2)
	assert.Equal(t, "HIGH", g.FieldErrors[0].Value)
	assert.Equal(t, " low ", g.FieldErrors[1].Value)
	assert.Equal(t, 2, g.Report().FieldErrors)
}

func TestAssemble_MissingNameKeepsRecord(t *testing.T) {
	tables := graphtest.Tables()
	tables[graph.TablePeople] = append(tables[graph.TablePeople], record.Record{ID: "recNobody", Fields: map[string]any{}})

	g, err := graph.Assemble(tables, graph.Options{})
	require.NoError(t, err)

	p, ok := g.Person("recNobody")
	require.True(t, ok)
	assert.Equal(t, "", p.Name)
	missing := warningsOf(g, resolve.KindMissingField)
	require.Len(t, missing, 1)
	assert.Equal(t, "recNobody", missing[0].SourceID)
}

func TestAssemble_AmbiguousCategoryKeepsFirst(t *testing.T) {
	tables := graphtest.Tables()
	tables[graph.TableProblems][1].Fields["Category"] = []any{"recC1", "recC2"}

	g, err := graph.Assemble(tables, graph.Options{})
	require.NoError(t, err)

	p, _ := g.Problem(graphtest.PoisonProblem)
	require.NotNil(t, p.Category)
	assert.Equal(t, "recC1", p.Category.ID)
	assert.Len(t, warningsOf(g, resolve.KindAmbiguous), 1)
}

func TestAssemble_MissingTableIsFatal(t *testing.T) {
	tables := graphtest.Tables()
	delete(tables, graph.TablePrograms)

	g, err := graph.Assemble(tables, graph.Options{})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, graph.ErrTableMissing)
	assert.True(t, apperr.Is(err, apperr.CodeDataUnavailable))
}

func TestAssemble_DuplicateIDsAreMalformed(t *testing.T) {
	tables := graphtest.Tables()
	tables[graph.TablePeople] = append(tables[graph.TablePeople], record.Record{ID: "recAda"})

	_, err := graph.Assemble(tables, graph.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, resolve.ErrMalformedTable)
	assert.True(t, apperr.Is(err, apperr.CodeMalformedTable))
}

func TestAssemble_ForwardsWarningsToSink(t *testing.T) {
	sink := resolve.NewCollector()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))

	g, err := graph.Assemble(graphtest.Tables(), graph.Options{Sink: sink, Now: func() time.Time { return now }})
	require.NoError(t, err)

	assert.Equal(t, g.Warnings, sink.Warnings())
	assert.Equal(t, time.UTC, g.AssembledAt.Location())
	assert.True(t, now.Equal(g.AssembledAt))
}

func TestAssemble_CustomFieldNames(t *testing.T) {
	tables := graphtest.Empty()
	tables[graph.TablePeople] = []record.Record{{ID: "recP", Fields: map[string]any{"Full Name": "Cleo"}}}

	var f graph.FieldNames
	f.Person.Name = "Full Name"
	g, err := graph.Assemble(tables, graph.Options{Fields: f})
	require.NoError(t, err)

	p, _ := g.Person("recP")
	assert.Equal(t, "Cleo", p.Name)
}

func TestFromSource(t *testing.T) {
	fetched := map[string][]record.Record{
		"Problem Categories": {{ID: "recC"}},
		"People":             {},
		"Unrelated":          {{ID: "x"}},
	}
	tables := graph.FromSource(fetched, graph.TableNames{People: "People"})

	assert.Len(t, tables, 2)
	assert.Len(t, tables[graph.TableProblemCategories], 1)
	_, ok := tables[graph.TablePeople]
	assert.True(t, ok)
}

func TestSnapshot_EmptyGraphSerializesArrays(t *testing.T) {
	g, err := graph.Assemble(graphtest.Empty(), graph.Options{})
	require.NoError(t, err)

	data, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	for _, key := range []string{"worldviews", "outcomes", "problemCategories", "problems", "projects", "organizations", "people", "programs"} {
		assert.Equal(t, []any{}, out[key], key)
	}
	assert.EqualValues(t, 0, out["warningCount"])
}

func TestSnapshot_NodeJSONUsesInlineRefs(t *testing.T) {
	g := graphtest.Graph()

	data, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)

	var out struct {
		Problems []struct {
			ID       string         `json:"id"`
			Category map[string]any `json:"category"`
			Projects []map[string]any
		} `json:"problems"`
		WarningCount int `json:"warningCount"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Problems, 2)
	assert.Equal(t, map[string]any{"id": "recC2", "name": "Capacity"}, out.Problems[0].Category)
	assert.Equal(t, len(g.Warnings), out.WarningCount)
}

func TestReport(t *testing.T) {
	g := graphtest.Graph()
	r := g.Report()

	assert.Equal(t, 21, r.NodeCount())
	assert.Equal(t, 16, r.Edges)
	assert.Equal(t, 4, r.Warnings[resolve.KindPruned])
	assert.Equal(t, 3, r.Warnings[resolve.KindDangling])
	assert.Equal(t, 0, r.FieldErrors)
	assert.Equal(t, "fixture", r.Fingerprint)
}

func TestParseLevel(t *testing.T) {
	for _, want := range graph.Levels {
		l, err := graph.ParseLevel(string(want))
		require.NoError(t, err)
		assert.Equal(t, want, l)
	}

	for _, bad := range []string{"urgent", "HIGH", "high", " Low", "low ", "  hIgH ", "neutral"} {
		_, err := graph.ParseLevel(bad)
		assert.Error(t, err, bad)
	}
}
