// Package graphtest provides a small, fully linked record snapshot for
// tests of packages built on graph.
package graphtest

import (
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/record"
)

func rec(id string, fields map[string]any) record.Record {
	return record.Record{ID: id, Fields: fields}
}

func ids(v ...string) []any {
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

// CappedProblem links seven projects scoring 5,4,3,2,1,1,0 against it.
const CappedProblem = "recGaps"

// PoisonProblem links one live project and one deleted one.
const PoisonProblem = "recPoison"

// Tables returns a fresh snapshot keyed by logical table name. Callers
// may mutate it.
func Tables() graph.Tables {
	return graph.Tables{
		graph.TableWorldviews: {
			rec("recW1", map[string]any{"Name": "Systems Change", "Short Name": "Systems", "Color": "#1f77b4"}),
			rec("recW2", map[string]any{"Name": "Community Power", "Short Name": "Power"}),
		},
		graph.TableOutcomes: {
			rec("recO1", map[string]any{
				"Name":                "Fewer poisonings",
				"Worldviews":          ids("recW1", "recW2"),
				"Worldview Relevance": ids("High", "Medium"),
			}),
			rec("recO2", map[string]any{
				"Name":                "Better data",
				"Worldviews":          ids("recW1", "recWGone"),
				"Worldview Relevance": ids("Low", "High"),
			}),
		},
		graph.TableProblemCategories: {
			rec("recC1", map[string]any{"Name": "Health Systems"}),
			rec("recC2", map[string]any{"Name": "Capacity"}),
		},
		graph.TableProblems: {
			rec(CappedProblem, map[string]any{
				"Name":        "Gaps",
				"Description": "data safety training policy research community",
				"Category":    ids("recC2"),
				"Projects":    ids("recJ0", "recJ5", "recJ1a", "recJ4", "recJ2", "recJ3", "recJ1b"),
			}),
			rec(PoisonProblem, map[string]any{
				"Name":        "Poison center underfunding",
				"Description": "poison center capacity",
				"Category":    ids("recC1"),
				"Projects":    ids("recHotline", "recJGone"),
			}),
		},
		graph.TableProjects: {
			rec("recHotline", map[string]any{
				"Name":          "Regional Poison Hotline",
				"Description":   "24/7 poison response",
				"Project Type":  ids("Safety", "Service"),
				"Priority Area": "Rural Health",
				"Status":        "Active",
				"Organizations": ids("recOrgA"),
			}),
			rec("recJ5", map[string]any{"Name": "J5", "Description": "data safety training policy research",
				"Project Type": ids("Research"), "Status": "Active", "Organizations": ids("recOrgA", "recOrgB")}),
			rec("recJ4", map[string]any{"Name": "J4", "Description": "data safety training policy", "Status": "Planned"}),
			rec("recJ3", map[string]any{"Name": "J3", "Description": "data safety training"}),
			rec("recJ2", map[string]any{"Name": "J2", "Description": "data safety"}),
			rec("recJ1a", map[string]any{"Name": "J1a", "Description": "data"}),
			rec("recJ1b", map[string]any{"Name": "J1b", "Description": "safety"}),
			rec("recJ0", map[string]any{"Name": "J0", "Description": "gardening"}),
		},
		graph.TableOrganizations: {
			rec("recOrgA", map[string]any{
				"Name":                     "Poison Control Network",
				"Type":                     ids("Nonprofit"),
				"Ecosystem Role":           ids("Funder", "Convener"),
				"State":                    "KY",
				"Country":                  "USA",
				"People":                   ids("recAda"),
				"Affiliated Organizations": ids("recOrgB"),
			}),
			rec("recOrgB", map[string]any{
				"Name":           "State Health Dept",
				"Type":           ids("Government"),
				"Ecosystem Role": ids("Funder"),
				"State":          "WV",
				"Country":        "USA",
				"People":         ids("recBen", "recGhost"),
			}),
		},
		graph.TablePeople: {
			rec("recAda", map[string]any{"Name": "Ada", "Title": "Director"}),
			rec("recBen", map[string]any{"Name": "Ben"}),
		},
		graph.TablePrograms: {
			rec("recProg", map[string]any{
				"Name":          "Naloxone Training",
				"Organizations": ids("recOrgA"),
				"States":        ids("KY", "WV"),
				"Program Type":  "Course",
			}),
		},
	}
}

// Empty returns a snapshot with every table present and no records.
func Empty() graph.Tables {
	t := make(graph.Tables, len(graph.RequiredTables))
	for _, name := range graph.RequiredTables {
		t[name] = []record.Record{}
	}
	return t
}

// Graph assembles Tables with default options.
func Graph() *graph.Graph {
	g, err := graph.Assemble(Tables(), graph.Options{Fingerprint: "fixture"})
	if err != nil {
		panic(err)
	}
	return g
}
