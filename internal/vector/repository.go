package vector

import "context"

// Point is one stored vector with string payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Match is a single result of a similarity search.
type Match struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Repository provides vector storage and dot-product search.
type Repository interface {
	// EnsureCollection creates the collection with the given dimension if
	// it does not exist yet.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to topK points scoring at least minScore, best first.
	Search(ctx context.Context, vec []float32, topK int, minScore float32) ([]Match, error)
	Close() error
}
