package record

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
)

// FetchTables pulls every named table concurrently. Each fetch fills its own
// slice; the result is returned only once all of them succeeded. The first
// failure cancels the rest and is reported as DATA_UNAVAILABLE, so callers
// never see a partial snapshot.
func FetchTables(ctx context.Context, src Source, tables []string) (map[string][]Record, error) {
	if src == nil {
		return nil, apperr.New(apperr.CodeDataUnavailable, "no record source configured")
	}

	var mu sync.Mutex
	out := make(map[string][]Record, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range tables {
		table := table
		g.Go(func() error {
			spanCtx, span := observability.StartFetchSpan(gctx, table)
			defer span.End()

			recs, err := src.FetchAll(spanCtx, table)
			if err != nil {
				observability.RecordError(span, err)
				return apperr.Wrap(apperr.CodeDataUnavailable, err, fmt.Sprintf("fetch table %s", table))
			}
			observability.RecordFetchResult(span, len(recs))

			mu.Lock()
			out[table] = recs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TableNames returns the keys of a snapshot in sorted order.
func TableNames(tables map[string][]Record) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
