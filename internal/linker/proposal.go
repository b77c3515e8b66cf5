// Package linker proposes Problem→Project link sets from relevance scores
// and applies reviewed proposals to a link store. Proposing is pure; applying
// is a separate call that refuses to run without explicit confirmation.
package linker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

type Mode string

const (
	// ModeFill adds accepted, top-ranked unlinked projects until a problem
	// has cap links.
	ModeFill Mode = "fill"
	// ModePrune trims problems above the cap to their best-scoring links.
	ModePrune Mode = "prune"
	ModeBoth  Mode = "both"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFill, ModePrune, ModeBoth:
		return m, nil
	case "":
		return ModeBoth, nil
	default:
		return "", apperr.Newf(apperr.CodeInvalidConfig, "unknown link mode %q (want fill, prune or both)", s)
	}
}

func (m Mode) fills() bool  { return m == ModeFill || m == ModeBoth }
func (m Mode) prunes() bool { return m == ModePrune || m == ModeBoth }

// ProblemInput is one problem and its current links.
type ProblemInput struct {
	ID     string
	Text   scoring.ProblemText
	Linked []string
}

type ProjectInput struct {
	ID   string
	Text scoring.ProjectText
}

// CandidateSource narrows the projects considered when filling a problem.
// ok is false when the source has no opinion and every project is a
// candidate.
type CandidateSource interface {
	CandidatesFor(problemID string) (projectIDs []string, ok bool)
}

// CandidateMap is a precomputed CandidateSource.
type CandidateMap map[string][]string

func (m CandidateMap) CandidatesFor(problemID string) ([]string, bool) {
	ids, ok := m[problemID]
	return ids, ok
}

type Options struct {
	Mode Mode
	// Cap overrides the scorer's cap when positive.
	Cap        int
	Candidates CandidateSource
	Now        func() time.Time
}

// Update is the complete target link set of one problem.
type Update struct {
	ProblemID  string         `json:"problemId"`
	ProjectIDs []string       `json:"projectIds"`
	Added      []string       `json:"added"`
	Removed    []string       `json:"removed"`
	Scores     map[string]int `json:"scores,omitempty"`
}

type Proposal struct {
	ID          string    `json:"id"`
	Mode        Mode      `json:"mode"`
	Cap         int       `json:"cap"`
	GeneratedAt time.Time `json:"generatedAt"`
	Updates     []Update  `json:"updates"`
}

// Update returns the update for a problem, if any.
func (p *Proposal) Update(problemID string) (Update, bool) {
	for _, u := range p.Updates {
		if u.ProblemID == problemID {
			return u, true
		}
	}
	return Update{}, false
}

// Propose computes target link sets for every problem. Problems whose set
// would not change get no update. Updates follow the order of problems.
func Propose(problems []ProblemInput, projects []ProjectInput, scorer *scoring.Scorer, opts Options) *Proposal {
	if scorer == nil {
		scorer = scoring.Default()
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeBoth
	}
	k := scorer.Cap()
	if opts.Cap > 0 {
		k = opts.Cap
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	byID := make(map[string]ProjectInput, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}

	prop := &Proposal{
		ID:          uuid.NewString(),
		Mode:        mode,
		Cap:         k,
		GeneratedAt: now().UTC(),
		Updates:     []Update{},
	}
	for _, pr := range problems {
		if u, ok := proposeOne(pr, projects, byID, scorer, mode, k, opts.Candidates); ok {
			prop.Updates = append(prop.Updates, u)
		}
	}
	return prop
}

func proposeOne(pr ProblemInput, projects []ProjectInput, byID map[string]ProjectInput,
	scorer *scoring.Scorer, mode Mode, k int, narrow CandidateSource) (Update, bool) {

	current := dedupe(pr.Linked)
	target := current
	scores := map[string]int{}

	if mode.prunes() && len(current) > k {
		linked := make([]scoring.Candidate, 0, len(current))
		for _, id := range current {
			linked = append(linked, scoring.Candidate{ID: id, Project: byID[id].Text})
		}
		kept, dropped := scorer.Prune(pr.Text, linked, k)
		keep := make(map[string]bool, len(kept))
		for _, c := range kept {
			keep[c.ID] = true
			scores[c.ID] = c.Score
		}
		for _, c := range dropped {
			scores[c.ID] = c.Score
		}
		target = make([]string, 0, k)
		for _, id := range current {
			if keep[id] {
				target = append(target, id)
			}
		}
	}

	if mode.fills() && len(target) < k {
		linked := make(map[string]bool, len(target))
		for _, id := range target {
			linked[id] = true
		}
		pool := candidatePool(pr.ID, projects, byID, narrow)
		cands := make([]scoring.Candidate, 0, len(pool))
		for _, p := range pool {
			if !linked[p.ID] {
				cands = append(cands, scoring.Candidate{ID: p.ID, Project: p.Text})
			}
		}
		ranked := scorer.Rank(pr.Text, cands)
		filled := append([]string{}, target...)
		for _, c := range ranked {
			if len(filled) >= k {
				break
			}
			filled = append(filled, c.ID)
			scores[c.ID] = c.Score
		}
		target = filled
	}

	added, removed := Diff(current, target)
	if len(added) == 0 && len(removed) == 0 {
		return Update{}, false
	}
	if len(scores) == 0 {
		scores = nil
	}
	return Update{
		ProblemID:  pr.ID,
		ProjectIDs: target,
		Added:      added,
		Removed:    removed,
		Scores:     scores,
	}, true
}

// candidatePool returns the projects the narrowing source allows, in
// project order, or every project when it has no entry for the problem.
func candidatePool(problemID string, projects []ProjectInput, byID map[string]ProjectInput, narrow CandidateSource) []ProjectInput {
	if narrow == nil {
		return projects
	}
	ids, ok := narrow.CandidatesFor(problemID)
	if !ok {
		return projects
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, known := byID[id]; known {
			allowed[id] = true
		}
	}
	out := make([]ProjectInput, 0, len(allowed))
	for _, p := range projects {
		if allowed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// FromGraph builds proposal inputs from an assembled graph. Problems carry
// their resolved source links, before the assembly cap.
func FromGraph(g *graph.Graph) ([]ProblemInput, []ProjectInput) {
	problems := make([]ProblemInput, 0, len(g.Problems))
	for _, p := range g.Problems {
		src := p.SourceProjects()
		linked := make([]string, len(src))
		for i, r := range src {
			linked[i] = r.ID
		}
		problems = append(problems, ProblemInput{ID: p.ID, Text: p.Text(), Linked: linked})
	}
	projects := make([]ProjectInput, 0, len(g.Projects))
	for _, p := range g.Projects {
		projects = append(projects, ProjectInput{ID: p.ID, Text: p.Text()})
	}
	return problems, projects
}

// Validate checks a proposal read from outside before it is applied.
func (p *Proposal) Validate() error {
	seen := make(map[string]bool, len(p.Updates))
	for i, u := range p.Updates {
		if u.ProblemID == "" {
			return apperr.Newf(apperr.CodeInvalidConfig, "update %d has no problemId", i)
		}
		if seen[u.ProblemID] {
			return apperr.Newf(apperr.CodeInvalidConfig, "problem %s appears twice", u.ProblemID)
		}
		seen[u.ProblemID] = true
		ids := make(map[string]bool, len(u.ProjectIDs))
		for _, id := range u.ProjectIDs {
			if id == "" || ids[id] {
				return apperr.New(apperr.CodeInvalidConfig, fmt.Sprintf("problem %s: empty or repeated project id", u.ProblemID))
			}
			ids[id] = true
		}
	}
	return nil
}
