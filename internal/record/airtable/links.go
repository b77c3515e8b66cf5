package airtable

import (
	"context"
	"sort"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

// ProblemLinks reads and replaces the Problem→Project link field.
type ProblemLinks struct {
	client *Client
	table  string
	field  string
}

// NewProblemLinks binds a client to the problems table and its projects
// link field.
func NewProblemLinks(c *Client, table, field string) *ProblemLinks {
	return &ProblemLinks{client: c, table: table, field: field}
}

func (p *ProblemLinks) Name() string { return "airtable" }

func (p *ProblemLinks) ProblemProjects(ctx context.Context, problemID string) ([]string, error) {
	rec, err := p.client.GetRecord(ctx, p.table, problemID)
	if err != nil {
		return nil, err
	}
	ids, ok := rec.IDs(p.field)
	if !ok {
		return nil, apperr.Newf(apperr.CodeMalformedTable, "problem %s: field %q is not a link list", problemID, p.field)
	}
	return ids, nil
}

func (p *ProblemLinks) SetProblemProjects(ctx context.Context, problemID string, projectIDs []string) error {
	failed := p.client.UpdateLinks(ctx, p.table, p.field, []LinkSet{{RecordID: problemID, IDs: projectIDs}})
	return failed[problemID]
}

// SetProblemProjectsBatch writes many link sets in PATCH batches. Sets are
// sent in problem-id order.
func (p *ProblemLinks) SetProblemProjectsBatch(ctx context.Context, sets map[string][]string) map[string]error {
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	linkSets := make([]LinkSet, 0, len(ids))
	for _, id := range ids {
		linkSets = append(linkSets, LinkSet{RecordID: id, IDs: sets[id]})
	}
	return p.client.UpdateLinks(ctx, p.table, p.field, linkSets)
}
