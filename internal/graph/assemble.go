package graph

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/record"
	"github.com/efebarandurmaz/impactgraph/internal/resolve"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

// ErrTableMissing marks an assembly attempted without every required table.
var ErrTableMissing = errors.New("required table missing")

// Tables maps logical table names to their full record snapshots.
type Tables map[string][]record.Record

// FromSource re-keys a snapshot fetched under store table names by logical
// table name. Tables absent from fetched stay absent.
func FromSource(fetched map[string][]record.Record, names TableNames) Tables {
	out := make(Tables, len(RequiredTables))
	for logical, src := range names.Source() {
		if recs, ok := fetched[src]; ok {
			out[logical] = recs
		}
	}
	return out
}

type Options struct {
	// Fields names the source fields; blanks fall back to the defaults.
	Fields FieldNames
	// Scorer ranks links when a problem exceeds the cap. Defaults to the
	// embedded taxonomy.
	Scorer *scoring.Scorer
	// Cap overrides the scorer's project cap when positive.
	Cap int
	// Sink additionally receives every warning as it is found.
	Sink resolve.Sink
	// Now stamps AssembledAt. Defaults to time.Now.
	Now         func() time.Time
	Fingerprint string
}

// Graph is one assembly's immutable result. Callers must not modify the
// nodes it exposes.
type Graph struct {
	Worldviews        []*Worldview
	Outcomes          []*Outcome
	ProblemCategories []*ProblemCategory
	Problems          []*Problem
	Projects          []*Project
	Organizations     []*Organization
	People            []*Person
	Programs          []*Program

	Aggregates  Aggregates
	Warnings    []resolve.Warning
	FieldErrors []FieldError
	AssembledAt time.Time
	Fingerprint string
	Cap         int

	index            *Index
	worldviewByID    map[string]*Worldview
	outcomeByID      map[string]*Outcome
	categoryByID     map[string]*ProblemCategory
	problemByID      map[string]*Problem
	projectByID      map[string]*Project
	organizationByID map[string]*Organization
	personByID       map[string]*Person
	programByID      map[string]*Program
}

func (g *Graph) Index() *Index { return g.index }

// Neighbors returns the nodes adjacent to key through rel.
func (g *Graph) Neighbors(key NodeKey, rel Relation, dir Direction) []NodeKey {
	return g.index.Neighbors(key, rel, dir)
}

func (g *Graph) Worldview(id string) (*Worldview, bool) {
	n, ok := g.worldviewByID[id]
	return n, ok
}

func (g *Graph) Outcome(id string) (*Outcome, bool) {
	n, ok := g.outcomeByID[id]
	return n, ok
}

func (g *Graph) ProblemCategory(id string) (*ProblemCategory, bool) {
	n, ok := g.categoryByID[id]
	return n, ok
}

func (g *Graph) Problem(id string) (*Problem, bool) {
	n, ok := g.problemByID[id]
	return n, ok
}

func (g *Graph) Project(id string) (*Project, bool) {
	n, ok := g.projectByID[id]
	return n, ok
}

func (g *Graph) Organization(id string) (*Organization, bool) {
	n, ok := g.organizationByID[id]
	return n, ok
}

func (g *Graph) Person(id string) (*Person, bool) {
	n, ok := g.personByID[id]
	return n, ok
}

func (g *Graph) Program(id string) (*Program, bool) {
	n, ok := g.programByID[id]
	return n, ok
}

// Has reports whether the graph contains a node for key.
func (g *Graph) Has(key NodeKey) bool {
	var ok bool
	switch key.Kind {
	case KindWorldview:
		_, ok = g.worldviewByID[key.ID]
	case KindOutcome:
		_, ok = g.outcomeByID[key.ID]
	case KindProblemCategory:
		_, ok = g.categoryByID[key.ID]
	case KindProblem:
		_, ok = g.problemByID[key.ID]
	case KindProject:
		_, ok = g.projectByID[key.ID]
	case KindOrganization:
		_, ok = g.organizationByID[key.ID]
	case KindPerson:
		_, ok = g.personByID[key.ID]
	case KindProgram:
		_, ok = g.programByID[key.ID]
	}
	return ok
}

var kindTable = map[NodeKind]string{
	KindWorldview:       TableWorldviews,
	KindOutcome:         TableOutcomes,
	KindProblemCategory: TableProblemCategories,
	KindProblem:         TableProblems,
	KindProject:         TableProjects,
	KindOrganization:    TableOrganizations,
	KindPerson:          TablePeople,
	KindProgram:         TablePrograms,
}

type assembler struct {
	f         FieldNames
	scorer    *scoring.Scorer
	cap       int
	collector *resolve.Collector
	sink      resolve.Sink
	ix        map[string]*resolve.Index
	g         *Graph
}

// Assemble builds a graph from a complete snapshot. Every required table
// must be present (an empty table is fine); otherwise nothing is built.
// Dangling references, missing names and rejected field values are
// recorded on the graph and never fail the assembly. Duplicate or empty
// record ids fail it with MALFORMED_TABLE.
func Assemble(tables Tables, opts Options) (*Graph, error) {
	for _, t := range RequiredTables {
		if _, ok := tables[t]; !ok {
			return nil, apperr.Wrap(apperr.CodeDataUnavailable, ErrTableMissing, "table "+t)
		}
	}

	a := &assembler{
		f:         opts.Fields.WithDefaults(),
		scorer:    opts.Scorer,
		collector: resolve.NewCollector(),
		ix:        make(map[string]*resolve.Index, len(RequiredTables)),
	}
	if a.scorer == nil {
		a.scorer = scoring.Default()
	}
	a.cap = a.scorer.Cap()
	if opts.Cap > 0 {
		a.cap = opts.Cap
	}
	a.sink = resolve.SinkFunc(func(w resolve.Warning) {
		a.collector.Warn(w)
		if opts.Sink != nil {
			opts.Sink.Warn(w)
		}
	})

	if err := a.buildIndexes(tables); err != nil {
		return nil, err
	}
	a.buildNodes(tables)
	a.linkOutcomes(tables[TableOutcomes])
	a.linkProblems(tables[TableProblems])
	a.linkProjects(tables[TableProjects])
	a.linkOrganizations(tables[TableOrganizations])
	a.linkPrograms(tables[TablePrograms])
	a.synthesizeInverses()

	g := a.g
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	g.AssembledAt = now().UTC()
	g.Fingerprint = opts.Fingerprint
	g.Cap = a.cap
	g.Warnings = a.collector.Warnings()
	g.Aggregates = ComputeAggregates(g)
	return g, nil
}

func (a *assembler) buildIndexes(tables Tables) error {
	names := map[string]string{
		TableWorldviews:        a.f.Worldview.Name,
		TableOutcomes:          a.f.Outcome.Name,
		TableProblemCategories: a.f.ProblemCategory.Name,
		TableProblems:          a.f.Problem.Name,
		TableProjects:          a.f.Project.Name,
		TableOrganizations:     a.f.Organization.Name,
		TablePeople:            a.f.Person.Name,
		TablePrograms:          a.f.Program.Name,
	}
	for _, t := range RequiredTables {
		ix, err := resolve.NewIndex(t, tables[t], resolve.NameField(names[t]))
		if err != nil {
			return err
		}
		a.ix[t] = ix
	}
	return nil
}

func (a *assembler) warn(kind resolve.WarningKind, table, sourceID, field, detail string) {
	a.sink.Warn(resolve.Warning{Kind: kind, Table: table, SourceID: sourceID, Field: field, Detail: detail})
}

// name reads a display name, warning when it is blank.
func (a *assembler) name(table string, rec record.Record, field string) string {
	n := rec.String(field)
	if strings.TrimSpace(n) == "" {
		a.warn(resolve.KindMissingField, table, rec.ID, field, "name is empty")
	}
	return n
}

func strs(rec record.Record, field string) []string {
	if v := rec.Strings(field); v != nil {
		return v
	}
	return []string{}
}

func (a *assembler) buildNodes(tables Tables) {
	f := a.f
	g := &Graph{
		index:            newIndex(),
		worldviewByID:    make(map[string]*Worldview),
		outcomeByID:      make(map[string]*Outcome),
		categoryByID:     make(map[string]*ProblemCategory),
		problemByID:      make(map[string]*Problem),
		projectByID:      make(map[string]*Project),
		organizationByID: make(map[string]*Organization),
		personByID:       make(map[string]*Person),
		programByID:      make(map[string]*Program),
		FieldErrors:      []FieldError{},
	}
	a.g = g

	for _, r := range tables[TableWorldviews] {
		n := &Worldview{
			ID:          r.ID,
			Name:        a.name(TableWorldviews, r, f.Worldview.Name),
			ShortName:   r.String(f.Worldview.ShortName),
			Tagline:     r.String(f.Worldview.Tagline),
			Description: r.String(f.Worldview.Description),
			Color:       r.String(f.Worldview.Color),
			Outcomes:    []RelevanceRef{},
		}
		g.Worldviews = append(g.Worldviews, n)
		g.worldviewByID[n.ID] = n
	}
	for _, r := range tables[TableOutcomes] {
		n := &Outcome{
			ID:               r.ID,
			Name:             a.name(TableOutcomes, r, f.Outcome.Name),
			ShortDescription: r.String(f.Outcome.ShortDescription),
			LongDescription:  r.String(f.Outcome.LongDescription),
			Worldviews:       []RelevanceRef{},
		}
		g.Outcomes = append(g.Outcomes, n)
		g.outcomeByID[n.ID] = n
	}
	for _, r := range tables[TableProblemCategories] {
		n := &ProblemCategory{
			ID:       r.ID,
			Name:     a.name(TableProblemCategories, r, f.ProblemCategory.Name),
			Problems: []Ref{},
		}
		g.ProblemCategories = append(g.ProblemCategories, n)
		g.categoryByID[n.ID] = n
	}
	for _, r := range tables[TableProblems] {
		n := &Problem{
			ID:          r.ID,
			Name:        a.name(TableProblems, r, f.Problem.Name),
			Description: r.String(f.Problem.Description),
			Projects:    []Ref{},
		}
		g.Problems = append(g.Problems, n)
		g.problemByID[n.ID] = n
	}
	for _, r := range tables[TableProjects] {
		n := &Project{
			ID:             r.ID,
			Name:           a.name(TableProjects, r, f.Project.Name),
			Description:    r.String(f.Project.Description),
			PriorityArea:   r.String(f.Project.PriorityArea),
			ProjectTypes:   strs(r, f.Project.ProjectTypes),
			GeographicTags: strs(r, f.Project.GeographicTags),
			Status:         r.String(f.Project.Status),
			Organizations:  []Ref{},
			Problems:       []Ref{},
		}
		g.Projects = append(g.Projects, n)
		g.projectByID[n.ID] = n
	}
	for _, r := range tables[TableOrganizations] {
		n := &Organization{
			ID:                      r.ID,
			Name:                    a.name(TableOrganizations, r, f.Organization.Name),
			Types:                   strs(r, f.Organization.Types),
			EcosystemRoles:          strs(r, f.Organization.EcosystemRoles),
			Website:                 r.String(f.Organization.Website),
			City:                    r.String(f.Organization.City),
			State:                   r.String(f.Organization.State),
			Country:                 r.String(f.Organization.Country),
			People:                  []Ref{},
			AffiliatedOrganizations: []Ref{},
			AffiliatedBy:            []Ref{},
			Projects:                []Ref{},
		}
		g.Organizations = append(g.Organizations, n)
		g.organizationByID[n.ID] = n
	}
	for _, r := range tables[TablePeople] {
		n := &Person{
			ID:            r.ID,
			Name:          a.name(TablePeople, r, f.Person.Name),
			Title:         r.String(f.Person.Title),
			Organizations: []Ref{},
		}
		g.People = append(g.People, n)
		g.personByID[n.ID] = n
	}
	for _, r := range tables[TablePrograms] {
		n := &Program{
			ID:            r.ID,
			Name:          a.name(TablePrograms, r, f.Program.Name),
			Organizations: []Ref{},
			ProgramType:   r.String(f.Program.ProgramType),
			Description:   r.String(f.Program.Description),
			Length:        r.String(f.Program.Length),
			States:        strs(r, f.Program.States),
			Price:         r.String(f.Program.Price),
			Webpage:       r.String(f.Program.Webpage),
		}
		g.Programs = append(g.Programs, n)
		g.programByID[n.ID] = n
	}
}

// alignedStrings returns a multi-value field keeping positions, so it can
// be read in parallel with a link field. Non-string elements become "".
func alignedStrings(rec record.Record, field string) []string {
	switch v := rec.Fields[field].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			if s, ok := e.(string); ok {
				out[i] = s
			}
		}
		return out
	default:
		return nil
	}
}

// linkOutcomes pairs each worldview id with the relevance level at the
// same position of the parallel relevance field. A dangling id is a
// warning; a missing or unknown level rejects that one pair as a field
// error. The outcome is kept either way.
func (a *assembler) linkOutcomes(recs []record.Record) {
	f := a.f.Outcome
	res := resolve.Resolver{Table: TableOutcomes, Sink: a.sink}
	target := a.ix[TableWorldviews]

	for i, rec := range recs {
		o := a.g.Outcomes[i]
		ids, ok := rec.IDs(f.Worldviews)
		if !ok {
			a.warn(resolve.KindMalformed, TableOutcomes, rec.ID, f.Worldviews,
				fmt.Sprintf("expected a list of record ids, got %T", rec.Fields[f.Worldviews]))
			continue
		}
		levels := alignedStrings(rec, f.WorldviewRelevance)
		seen := make(map[string]bool, len(ids))
		for pos, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			ref, ok := res.Lookup(rec.ID, f.Worldviews, target, id)
			if !ok {
				continue
			}
			raw := ""
			if pos < len(levels) {
				raw = levels[pos]
			}
			if strings.TrimSpace(raw) == "" {
				a.fieldError(TableOutcomes, rec.ID, f.WorldviewRelevance, raw, "missing relevance level for worldview "+id)
				continue
			}
			level, err := ParseLevel(raw)
			if err != nil {
				a.fieldError(TableOutcomes, rec.ID, f.WorldviewRelevance, raw, err.Error())
				continue
			}
			o.Worldviews = append(o.Worldviews, RelevanceRef{ID: ref.ID, Name: ref.Name, Level: level})
			a.g.index.add(Edge{
				From:     NodeKey{KindOutcome, o.ID},
				To:       NodeKey{KindWorldview, ref.ID},
				Relation: RelHasRelevance,
				Level:    level,
			})
		}
	}
}

func (a *assembler) fieldError(table, id, field, value, reason string) {
	a.g.FieldErrors = append(a.g.FieldErrors, FieldError{
		Table: table, RecordID: id, Field: field, Value: value, Reason: reason,
	})
}

func (a *assembler) linkProblems(recs []record.Record) {
	f := a.f.Problem
	res := resolve.Resolver{Table: TableProblems, Sink: a.sink}

	for i, rec := range recs {
		p := a.g.Problems[i]
		key := NodeKey{KindProblem, p.ID}

		cats := res.ResolveOne(rec, a.ix[TableProblemCategories], f.Category)
		if len(cats) > 1 {
			a.warn(resolve.KindAmbiguous, TableProblems, rec.ID, f.Category,
				fmt.Sprintf("%d categories linked, keeping %s", len(cats), cats[0].ID))
		}
		if len(cats) > 0 {
			c := cats[0]
			p.Category = &c
			a.g.index.add(Edge{From: key, To: NodeKey{KindProblemCategory, c.ID}, Relation: RelInCategory})
		}

		linked := res.ResolveOne(rec, a.ix[TableProjects], f.Projects)
		p.sourceProjects = linked
		p.Projects = a.capProjects(p, linked)
		for _, ref := range p.Projects {
			a.g.index.add(Edge{From: key, To: NodeKey{KindProject, ref.ID}, Relation: RelAddressedBy})
		}
	}
}

// capProjects keeps the cap highest-scoring links, preserving their
// source order, and warns for each link dropped.
func (a *assembler) capProjects(p *Problem, linked []Ref) []Ref {
	if len(linked) <= a.cap {
		return linked
	}
	cands := make([]scoring.Candidate, 0, len(linked))
	for _, ref := range linked {
		c := scoring.Candidate{ID: ref.ID}
		if proj, ok := a.g.projectByID[ref.ID]; ok {
			c.Project = proj.Text()
		}
		cands = append(cands, c)
	}
	kept, dropped := a.scorer.Prune(p.Text(), cands, a.cap)

	keep := make(map[string]bool, len(kept))
	for _, c := range kept {
		keep[c.ID] = true
	}
	for _, c := range dropped {
		a.sink.Warn(resolve.Warning{
			Kind:      resolve.KindPruned,
			Table:     TableProblems,
			SourceID:  p.ID,
			Field:     a.f.Problem.Projects,
			MissingID: c.ID,
			Detail:    fmt.Sprintf("score %d outside top %d", c.Score, a.cap),
		})
	}
	out := make([]Ref, 0, len(kept))
	for _, ref := range linked {
		if keep[ref.ID] {
			out = append(out, ref)
		}
	}
	return out
}

func (a *assembler) linkProjects(recs []record.Record) {
	res := resolve.Resolver{Table: TableProjects, Sink: a.sink}
	for i, rec := range recs {
		p := a.g.Projects[i]
		p.Organizations = res.ResolveOne(rec, a.ix[TableOrganizations], a.f.Project.Organizations)
		for _, ref := range p.Organizations {
			a.g.index.add(Edge{From: NodeKey{KindProject, p.ID}, To: NodeKey{KindOrganization, ref.ID}, Relation: RelRunBy})
		}
	}
}

func (a *assembler) linkOrganizations(recs []record.Record) {
	f := a.f.Organization
	res := resolve.Resolver{Table: TableOrganizations, Sink: a.sink}
	for i, rec := range recs {
		o := a.g.Organizations[i]
		key := NodeKey{KindOrganization, o.ID}

		o.People = res.ResolveOne(rec, a.ix[TablePeople], f.People)
		for _, ref := range o.People {
			a.g.index.add(Edge{From: key, To: NodeKey{KindPerson, ref.ID}, Relation: RelHasMember})
		}
		o.AffiliatedOrganizations = res.ResolveOne(rec, a.ix[TableOrganizations], f.AffiliatedOrganizations)
		for _, ref := range o.AffiliatedOrganizations {
			a.g.index.add(Edge{From: key, To: NodeKey{KindOrganization, ref.ID}, Relation: RelAffiliatedWith})
		}
	}
}

func (a *assembler) linkPrograms(recs []record.Record) {
	res := resolve.Resolver{Table: TablePrograms, Sink: a.sink}
	for i, rec := range recs {
		p := a.g.Programs[i]
		p.Organizations = res.ResolveOne(rec, a.ix[TableOrganizations], a.f.Program.Organizations)
		for _, ref := range p.Organizations {
			a.g.index.add(Edge{From: NodeKey{KindProgram, p.ID}, To: NodeKey{KindOrganization, ref.ID}, Relation: RelOfferedBy})
		}
	}
}

func (a *assembler) ref(key NodeKey) Ref {
	ref, _ := a.ix[kindTable[key.Kind]].Lookup(key.ID)
	return ref
}

func (a *assembler) incoming(key NodeKey, rel Relation) []Ref {
	edges := a.g.index.In(key, rel)
	out := make([]Ref, 0, len(edges))
	for _, e := range edges {
		out = append(out, a.ref(e.From))
	}
	return out
}

// synthesizeInverses fills every inverse field from the adjacency index.
// Inverse lists follow the source order of the referencing table.
func (a *assembler) synthesizeInverses() {
	g := a.g
	for _, w := range g.Worldviews {
		for _, e := range g.index.In(NodeKey{KindWorldview, w.ID}, RelHasRelevance) {
			ref := a.ref(e.From)
			w.Outcomes = append(w.Outcomes, RelevanceRef{ID: ref.ID, Name: ref.Name, Level: e.Level})
		}
	}
	for _, c := range g.ProblemCategories {
		c.Problems = a.incoming(NodeKey{KindProblemCategory, c.ID}, RelInCategory)
	}
	for _, p := range g.Projects {
		p.Problems = a.incoming(NodeKey{KindProject, p.ID}, RelAddressedBy)
	}
	for _, o := range g.Organizations {
		key := NodeKey{KindOrganization, o.ID}
		o.Projects = a.incoming(key, RelRunBy)
		o.AffiliatedBy = a.incoming(key, RelAffiliatedWith)
	}
	for _, p := range g.People {
		p.Organizations = a.incoming(NodeKey{KindPerson, p.ID}, RelHasMember)
	}
}
