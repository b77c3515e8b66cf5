package graph

import "strings"

// Aggregates are counts derived from the nodes of one graph. Tag keys are
// the literal source values: differently spelled tags count separately.
// Problems are counted by category id and outcomes by worldview id.
type Aggregates struct {
	Totals                   map[NodeKind]int                  `json:"totals"`
	OrganizationsByRole      map[string]int                    `json:"organizationsByRole"`
	OrganizationsByState     map[string]int                    `json:"organizationsByState"`
	OrganizationsByType      map[string]int                    `json:"organizationsByType"`
	OrganizationsByCountry   map[string]int                    `json:"organizationsByCountry"`
	ProjectsByType           map[string]int                    `json:"projectsByType"`
	ProjectsByPriorityArea   map[string]int                    `json:"projectsByPriorityArea"`
	ProjectsByStatus         map[string]int                    `json:"projectsByStatus"`
	ProblemsByCategory       map[string]int                    `json:"problemsByCategory"`
	OutcomesByWorldview      map[string]int                    `json:"outcomesByWorldview"`
	OutcomesByWorldviewLevel map[string]map[RelevanceLevel]int `json:"outcomesByWorldviewLevel"`
}

// ComputeAggregates recomputes every aggregate from g's nodes in one pass.
// It is the only way aggregates are produced, so the stored copy on a
// graph always equals a fresh call.
func ComputeAggregates(g *Graph) Aggregates {
	agg := Aggregates{
		Totals: map[NodeKind]int{
			KindWorldview:       len(g.Worldviews),
			KindOutcome:         len(g.Outcomes),
			KindProblemCategory: len(g.ProblemCategories),
			KindProblem:         len(g.Problems),
			KindProject:         len(g.Projects),
			KindOrganization:    len(g.Organizations),
			KindPerson:          len(g.People),
			KindProgram:         len(g.Programs),
		},
		OrganizationsByRole:      map[string]int{},
		OrganizationsByState:     map[string]int{},
		OrganizationsByType:      map[string]int{},
		OrganizationsByCountry:   map[string]int{},
		ProjectsByType:           map[string]int{},
		ProjectsByPriorityArea:   map[string]int{},
		ProjectsByStatus:         map[string]int{},
		ProblemsByCategory:       map[string]int{},
		OutcomesByWorldview:      map[string]int{},
		OutcomesByWorldviewLevel: map[string]map[RelevanceLevel]int{},
	}

	for _, o := range g.Organizations {
		countEach(agg.OrganizationsByRole, o.EcosystemRoles)
		countEach(agg.OrganizationsByType, o.Types)
		countOne(agg.OrganizationsByState, o.State)
		countOne(agg.OrganizationsByCountry, o.Country)
	}
	for _, p := range g.Projects {
		countEach(agg.ProjectsByType, p.ProjectTypes)
		countOne(agg.ProjectsByPriorityArea, p.PriorityArea)
		countOne(agg.ProjectsByStatus, p.Status)
	}
	for _, p := range g.Problems {
		if p.Category != nil {
			agg.ProblemsByCategory[p.Category.ID]++
		}
	}
	for _, o := range g.Outcomes {
		for _, w := range o.Worldviews {
			agg.OutcomesByWorldview[w.ID]++
			byLevel, ok := agg.OutcomesByWorldviewLevel[w.ID]
			if !ok {
				byLevel = map[RelevanceLevel]int{}
				agg.OutcomesByWorldviewLevel[w.ID] = byLevel
			}
			byLevel[w.Level]++
		}
	}
	return agg
}

// countEach counts an entity once per distinct non-blank value.
func countEach(m map[string]int, values []string) {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		m[v]++
	}
}

func countOne(m map[string]int, v string) {
	if strings.TrimSpace(v) != "" {
		m[v]++
	}
}
