// Package scoring computes keyword-taxonomy relevance between problems and
// projects. The scorer is a pure evaluator over a Taxonomy: it performs no
// I/O, never errors on input text, and is safe for concurrent use.
package scoring

import (
	"sort"
	"strings"
)

// ProblemText is the text a problem contributes to its corpus.
type ProblemText struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProjectText is the text a project contributes to its corpus.
type ProjectText struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	TypeTags     []string `json:"typeTags"`
	PriorityArea string   `json:"priorityArea"`
}

func (p ProblemText) Corpus() string {
	return strings.ToLower(p.Name + "\n" + p.Description)
}

func (p ProjectText) Corpus() string {
	parts := make([]string, 0, 3+len(p.TypeTags))
	parts = append(parts, p.Name, p.Description)
	parts = append(parts, p.TypeTags...)
	parts = append(parts, p.PriorityArea)
	return strings.ToLower(strings.Join(parts, "\n"))
}

// Candidate is a project under consideration for one problem. Score is
// filled by Rank and Prune.
type Candidate struct {
	ID      string      `json:"id"`
	Project ProjectText `json:"-"`
	Score   int         `json:"score"`
}

// MatchedBonus is a bonus term present in both corpora.
type MatchedBonus struct {
	Term   string `json:"term"`
	Weight int    `json:"weight"`
}

// Breakdown explains a score.
type Breakdown struct {
	Score      int            `json:"score"`
	Accepted   bool           `json:"accepted"`
	Categories []string       `json:"categories"`
	Bonuses    []MatchedBonus `json:"bonuses"`
}

type category struct {
	label    string
	keywords []string
}

type bonus struct {
	term   string
	weight int
}

type Scorer struct {
	categories []category
	bonuses    []bonus
	threshold  int
	cap        int
}

// New validates tax and lower-cases its keywords and terms once.
func New(tax Taxonomy) (*Scorer, error) {
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{threshold: tax.Threshold, cap: tax.Cap}
	for _, c := range tax.Categories {
		kws := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			kws = append(kws, strings.ToLower(strings.TrimSpace(kw)))
		}
		s.categories = append(s.categories, category{label: strings.TrimSpace(c.Label), keywords: kws})
	}
	for _, b := range tax.Bonuses {
		s.bonuses = append(s.bonuses, bonus{term: strings.ToLower(strings.TrimSpace(b.Term)), weight: b.Weight})
	}
	return s, nil
}

// Default returns a scorer over the embedded taxonomy.
func Default() *Scorer {
	s, err := New(DefaultTaxonomy())
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Scorer) Threshold() int { return s.threshold }

// Cap is the maximum number of projects a problem keeps.
func (s *Scorer) Cap() int { return s.cap }

// match records which categories and bonus terms a lower-cased corpus hits.
type match struct {
	categories []bool
	bonuses    []bool
}

func (s *Scorer) match(corpus string) match {
	m := match{
		categories: make([]bool, len(s.categories)),
		bonuses:    make([]bool, len(s.bonuses)),
	}
	for i, c := range s.categories {
		for _, kw := range c.keywords {
			if strings.Contains(corpus, kw) {
				m.categories[i] = true
				break
			}
		}
	}
	for i, b := range s.bonuses {
		m.bonuses[i] = strings.Contains(corpus, b.term)
	}
	return m
}

func (s *Scorer) combine(a, b match) Breakdown {
	bd := Breakdown{Categories: []string{}, Bonuses: []MatchedBonus{}}
	for i, c := range s.categories {
		if a.categories[i] && b.categories[i] {
			bd.Score++
			bd.Categories = append(bd.Categories, c.label)
		}
	}
	for i, bn := range s.bonuses {
		if a.bonuses[i] && b.bonuses[i] {
			bd.Score += bn.weight
			bd.Bonuses = append(bd.Bonuses, MatchedBonus{Term: bn.term, Weight: bn.weight})
		}
	}
	bd.Accepted = s.Accepted(bd.Score)
	return bd
}

// Score is +1 per category matched by both corpora plus the weight of
// every bonus term found in both.
func (s *Scorer) Score(problem ProblemText, project ProjectText) int {
	return s.Breakdown(problem, project).Score
}

func (s *Scorer) Breakdown(problem ProblemText, project ProjectText) Breakdown {
	return s.combine(s.match(problem.Corpus()), s.match(project.Corpus()))
}

// Accepted reports whether a score is enough evidence for a link.
func (s *Scorer) Accepted(score int) bool {
	return score >= s.threshold
}

func (s *Scorer) scoreAll(problem ProblemText, candidates []Candidate) []Candidate {
	pm := s.match(problem.Corpus())
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Score = s.combine(pm, s.match(c.Project.Corpus())).Score
		out[i] = c
	}
	return out
}

// Rank returns the accepted candidates by descending score. Ties keep
// their input order.
func (s *Scorer) Rank(problem ProblemText, candidates []Candidate) []Candidate {
	scored := s.scoreAll(problem, candidates)
	accepted := scored[:0]
	for _, c := range scored {
		if s.Accepted(c.Score) {
			accepted = append(accepted, c)
		}
	}
	sortByScore(accepted)
	return accepted
}

// Prune caps existing links at k. Every linked candidate is ranked, with
// no threshold, and the top k are kept. kept and dropped are both in rank
// order. A non-positive k uses the taxonomy cap.
func (s *Scorer) Prune(problem ProblemText, linked []Candidate, k int) (kept, dropped []Candidate) {
	if k <= 0 {
		k = s.cap
	}
	scored := s.scoreAll(problem, linked)
	sortByScore(scored)
	if len(scored) <= k {
		return scored, []Candidate{}
	}
	return scored[:k:k], scored[k:]
}

func sortByScore(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Score > cs[j].Score })
}

// Dimensions names each feature position: categories first, then bonuses.
func (s *Scorer) Dimensions() []string {
	out := make([]string, 0, len(s.categories)+len(s.bonuses))
	for _, c := range s.categories {
		out = append(out, "category:"+c.label)
	}
	for _, b := range s.bonuses {
		out = append(out, "bonus:"+b.term)
	}
	return out
}

// Features encodes the categories and bonus terms a corpus contains: 1 for
// a matched category, the bonus weight for a matched term, 0 otherwise.
func (s *Scorer) Features(corpus string) []float32 {
	m := s.match(strings.ToLower(corpus))
	out := make([]float32, 0, len(s.categories)+len(s.bonuses))
	for _, hit := range m.categories {
		out = append(out, boolf(hit, 1))
	}
	for i, hit := range m.bonuses {
		out = append(out, boolf(hit, float32(s.bonuses[i].weight)))
	}
	return out
}

func boolf(b bool, v float32) float32 {
	if b {
		return v
	}
	return 0
}
