package graph

import "context"

// Repository mirrors assembled graphs into a graph database and serves the
// Problem→Project link set back for the linker.
type Repository interface {
	// StoreGraph upserts every node and relationship of g.
	StoreGraph(ctx context.Context, g *Graph) error
	// ProblemProjects returns the project ids linked to a problem.
	ProblemProjects(ctx context.Context, problemID string) ([]string, error)
	// SetProblemProjects replaces a problem's project links.
	SetProblemProjects(ctx context.Context, problemID string, projectIDs []string) error
	// Close releases resources.
	Close(ctx context.Context) error
}
