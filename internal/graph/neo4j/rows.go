package neo4j

import "github.com/efebarandurmaz/impactgraph/internal/graph"

var labels = []string{
	"Worldview", "Outcome", "ProblemCategory", "Problem",
	"Project", "Organization", "Person", "Program",
}

var kindLabel = map[graph.NodeKind]string{
	graph.KindWorldview:       "Worldview",
	graph.KindOutcome:         "Outcome",
	graph.KindProblemCategory: "ProblemCategory",
	graph.KindProblem:         "Problem",
	graph.KindProject:         "Project",
	graph.KindOrganization:    "Organization",
	graph.KindPerson:          "Person",
	graph.KindProgram:         "Program",
}

type nodeBatch struct {
	label string
	rows  []map[string]any
}

// nodeBatches flattens g into one property-map batch per label. Only
// scalar and string-list properties are stored; links become
// relationships.
func nodeBatches(g *graph.Graph) []nodeBatch {
	wv := make([]map[string]any, 0, len(g.Worldviews))
	for _, n := range g.Worldviews {
		wv = append(wv, map[string]any{
			"id": n.ID, "name": n.Name, "shortName": n.ShortName,
			"tagline": n.Tagline, "description": n.Description, "color": n.Color,
		})
	}
	oc := make([]map[string]any, 0, len(g.Outcomes))
	for _, n := range g.Outcomes {
		oc = append(oc, map[string]any{
			"id": n.ID, "name": n.Name,
			"shortDescription": n.ShortDescription, "longDescription": n.LongDescription,
		})
	}
	pc := make([]map[string]any, 0, len(g.ProblemCategories))
	for _, n := range g.ProblemCategories {
		pc = append(pc, map[string]any{"id": n.ID, "name": n.Name})
	}
	pb := make([]map[string]any, 0, len(g.Problems))
	for _, n := range g.Problems {
		pb = append(pb, map[string]any{"id": n.ID, "name": n.Name, "description": n.Description})
	}
	pj := make([]map[string]any, 0, len(g.Projects))
	for _, n := range g.Projects {
		pj = append(pj, map[string]any{
			"id": n.ID, "name": n.Name, "description": n.Description,
			"priorityArea": n.PriorityArea, "projectTypes": n.ProjectTypes,
			"geographicTags": n.GeographicTags, "status": n.Status,
		})
	}
	og := make([]map[string]any, 0, len(g.Organizations))
	for _, n := range g.Organizations {
		og = append(og, map[string]any{
			"id": n.ID, "name": n.Name, "types": n.Types, "ecosystemRoles": n.EcosystemRoles,
			"website": n.Website, "city": n.City, "state": n.State, "country": n.Country,
		})
	}
	pp := make([]map[string]any, 0, len(g.People))
	for _, n := range g.People {
		pp = append(pp, map[string]any{"id": n.ID, "name": n.Name, "title": n.Title})
	}
	pr := make([]map[string]any, 0, len(g.Programs))
	for _, n := range g.Programs {
		pr = append(pr, map[string]any{
			"id": n.ID, "name": n.Name, "programType": n.ProgramType,
			"description": n.Description, "length": n.Length, "states": n.States,
			"price": n.Price, "webpage": n.Webpage,
		})
	}
	return []nodeBatch{
		{"Worldview", wv}, {"Outcome", oc}, {"ProblemCategory", pc}, {"Problem", pb},
		{"Project", pj}, {"Organization", og}, {"Person", pp}, {"Program", pr},
	}
}

type relationshipBatch struct {
	relation  graph.Relation
	fromLabel string
	toLabel   string
	// from lists every node of fromLabel whose outgoing relation is rewritten.
	from []string
	rows []map[string]any
}

// relationshipBatches groups g's edges by relation in a fixed order.
// Position numbers the edges of one source node in link order.
func relationshipBatches(g *graph.Graph) []relationshipBatch {
	order := []struct {
		rel      graph.Relation
		from, to graph.NodeKind
	}{
		{graph.RelHasRelevance, graph.KindOutcome, graph.KindWorldview},
		{graph.RelInCategory, graph.KindProblem, graph.KindProblemCategory},
		{graph.RelAddressedBy, graph.KindProblem, graph.KindProject},
		{graph.RelRunBy, graph.KindProject, graph.KindOrganization},
		{graph.RelAffiliatedWith, graph.KindOrganization, graph.KindOrganization},
		{graph.RelHasMember, graph.KindOrganization, graph.KindPerson},
		{graph.RelOfferedBy, graph.KindProgram, graph.KindOrganization},
	}
	byRel := make(map[graph.Relation]*relationshipBatch, len(order))
	out := make([]relationshipBatch, len(order))
	for i, o := range order {
		out[i] = relationshipBatch{
			relation:  o.rel,
			fromLabel: kindLabel[o.from],
			toLabel:   kindLabel[o.to],
			from:      nodeIDs(g, o.from),
			rows:      []map[string]any{},
		}
		byRel[o.rel] = &out[i]
	}

	position := map[string]int{}
	for _, e := range g.Index().Edges() {
		b, ok := byRel[e.Relation]
		if !ok {
			continue
		}
		slot := string(e.Relation) + "|" + e.From.ID
		row := map[string]any{"from": e.From.ID, "to": e.To.ID, "position": position[slot]}
		position[slot]++
		if e.Level != "" {
			row["level"] = string(e.Level)
		}
		b.rows = append(b.rows, row)
	}
	return out
}

func nodeIDs(g *graph.Graph, kind graph.NodeKind) []string {
	var ids []string
	switch kind {
	case graph.KindOutcome:
		for _, n := range g.Outcomes {
			ids = append(ids, n.ID)
		}
	case graph.KindProblem:
		for _, n := range g.Problems {
			ids = append(ids, n.ID)
		}
	case graph.KindProject:
		for _, n := range g.Projects {
			ids = append(ids, n.ID)
		}
	case graph.KindOrganization:
		for _, n := range g.Organizations {
			ids = append(ids, n.ID)
		}
	case graph.KindProgram:
		for _, n := range g.Programs {
			ids = append(ids, n.ID)
		}
	}
	if ids == nil {
		return []string{}
	}
	return ids
}
