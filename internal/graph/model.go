// Package graph assembles raw record tables into an immutable, fully
// resolved relationship graph with synthesized inverse links and derived
// aggregates.
package graph

import (
	"fmt"

	"github.com/efebarandurmaz/impactgraph/internal/resolve"
	"github.com/efebarandurmaz/impactgraph/internal/scoring"
)

// Ref is an inline reference to another node.
type Ref = resolve.Ref

type NodeKind string

const (
	KindWorldview       NodeKind = "worldview"
	KindOutcome         NodeKind = "outcome"
	KindProblemCategory NodeKind = "problem_category"
	KindProblem         NodeKind = "problem"
	KindProject         NodeKind = "project"
	KindOrganization    NodeKind = "organization"
	KindPerson          NodeKind = "person"
	KindProgram         NodeKind = "program"
)

// NodeKey identifies a node across tables.
type NodeKey struct {
	Kind NodeKind `json:"kind"`
	ID   string   `json:"id"`
}

func (k NodeKey) String() string { return string(k.Kind) + ":" + k.ID }

// Relation is the type of a directed edge. The direction follows the
// source link field: the record holding the field is From.
type Relation string

const (
	RelHasRelevance   Relation = "HAS_RELEVANCE"   // outcome → worldview
	RelInCategory     Relation = "IN_CATEGORY"     // problem → category
	RelAddressedBy    Relation = "ADDRESSED_BY"    // problem → project
	RelRunBy          Relation = "RUN_BY"          // project → organization
	RelAffiliatedWith Relation = "AFFILIATED_WITH" // organization → organization
	RelHasMember      Relation = "HAS_MEMBER"      // organization → person
	RelOfferedBy      Relation = "OFFERED_BY"      // program → organization
)

// Edge is one directed relationship. Level is set only on HAS_RELEVANCE.
type Edge struct {
	From     NodeKey        `json:"from"`
	To       NodeKey        `json:"to"`
	Relation Relation       `json:"relation"`
	Level    RelevanceLevel `json:"level,omitempty"`
}

// RelevanceLevel is the strength of an Outcome/Worldview association.
type RelevanceLevel string

const (
	LevelHigh    RelevanceLevel = "High"
	LevelMedium  RelevanceLevel = "Medium"
	LevelLow     RelevanceLevel = "Low"
	LevelNeutral RelevanceLevel = "Neutral"
)

// Levels lists the relevance levels from strongest to weakest.
var Levels = []RelevanceLevel{LevelHigh, LevelMedium, LevelLow, LevelNeutral}

// ParseLevel accepts only the exact level spellings; "HIGH" or " Low " are
// rejected.
func ParseLevel(s string) (RelevanceLevel, error) {
	for _, l := range Levels {
		if s == string(l) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown relevance level %q", s)
}

// RelevanceRef is a reference annotated with a relevance level.
type RelevanceRef struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Level RelevanceLevel `json:"level"`
}

type Worldview struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ShortName   string         `json:"shortName"`
	Tagline     string         `json:"tagline"`
	Description string         `json:"description"`
	Color       string         `json:"color"`
	Outcomes    []RelevanceRef `json:"outcomes"`
}

type Outcome struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	ShortDescription string         `json:"shortDescription"`
	LongDescription  string         `json:"longDescription"`
	Worldviews       []RelevanceRef `json:"worldviews"`
}

type ProblemCategory struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Problems []Ref  `json:"problems"`
}

type Problem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    *Ref   `json:"category"`
	Projects    []Ref  `json:"projects"`

	// sourceProjects are the resolved links before the cap was applied.
	sourceProjects []Ref
}

// SourceProjects returns the resolved project links as curated in the
// source, before capping.
func (p *Problem) SourceProjects() []Ref {
	out := make([]Ref, len(p.sourceProjects))
	copy(out, p.sourceProjects)
	return out
}

func (p *Problem) Text() scoring.ProblemText {
	return scoring.ProblemText{Name: p.Name, Description: p.Description}
}

type Project struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PriorityArea   string   `json:"priorityArea"`
	ProjectTypes   []string `json:"projectTypes"`
	GeographicTags []string `json:"geographicTags"`
	Status         string   `json:"status"`
	Organizations  []Ref    `json:"organizations"`
	Problems       []Ref    `json:"problems"`
}

func (p *Project) Text() scoring.ProjectText {
	return scoring.ProjectText{
		Name:         p.Name,
		Description:  p.Description,
		TypeTags:     p.ProjectTypes,
		PriorityArea: p.PriorityArea,
	}
}

type Organization struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	Types                   []string `json:"types"`
	EcosystemRoles          []string `json:"ecosystemRoles"`
	Website                 string   `json:"website"`
	City                    string   `json:"city"`
	State                   string   `json:"state"`
	Country                 string   `json:"country"`
	People                  []Ref    `json:"people"`
	AffiliatedOrganizations []Ref    `json:"affiliatedOrganizations"`
	AffiliatedBy            []Ref    `json:"affiliatedBy"`
	Projects                []Ref    `json:"projects"`
}

type Person struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Title         string `json:"title"`
	Organizations []Ref  `json:"organizations"`
}

type Program struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Organizations []Ref    `json:"organizations"`
	ProgramType   string   `json:"programType"`
	Description   string   `json:"description"`
	Length        string   `json:"length"`
	States        []string `json:"states"`
	Price         string   `json:"price"`
	Webpage       string   `json:"webpage"`
}

// FieldError records a field value rejected during assembly. The record
// itself is kept.
type FieldError struct {
	Table    string `json:"table"`
	RecordID string `json:"recordId"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	Reason   string `json:"reason"`
}
