package apitrail

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jward/apitrail/internal/store"
	"github.com/jward/apitrail/internal/versiontree"
)

// folded is one library's fold outcome on its way to the writer.
type folded struct {
	idx   int
	res   *LibraryResult
	trees *store.LibraryTrees
	err   error
}

// aggregateParallel aggregates libraries in two phases:
//
//	Phase A (parallel): fold each library on a bounded worker pool.
//	Phase B (serial):   a single writer commits each folded library.
//
// A library that fails to fold is reported and never written; the others
// are unaffected.
func (e *Engine) aggregateParallel(ctx context.Context, libs []versiontree.Library) ([]*LibraryResult, error) {
	if len(libs) == 0 {
		return nil, nil
	}

	resultCh := make(chan folded, len(libs))

	// ---- Phase A: parallel fold ----
	go func() {
		var g errgroup.Group
		g.SetLimit(min(e.workers, len(libs)))
		for i := range libs {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					resultCh <- folded{idx: i, err: fmt.Errorf("library %s: %w", libs[i].Name, err)}
					return nil
				}
				res, trees, err := e.foldLibrary(ctx, &libs[i])
				resultCh <- folded{idx: i, res: res, trees: trees, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(resultCh)
	}()

	// ---- Phase B: single writer ----
	results := make([]*LibraryResult, len(libs))
	errs := make([]error, len(libs))
	for f := range resultCh {
		if f.err != nil {
			errs[f.idx] = f.err
			continue
		}
		if f.trees != nil {
			if err := e.store.SaveLibrary(f.trees); err != nil {
				errs[f.idx] = fmt.Errorf("library %s: %w", libs[f.idx].Name, err)
				continue
			}
		}
		results[f.idx] = f.res
	}

	var (
		out    []*LibraryResult
		failed []error
	)
	for i := range libs {
		if errs[i] != nil {
			e.logger.Error("library failed", "library", libs[i].Name, "error", errs[i])
			failed = append(failed, errs[i])
			continue
		}
		out = append(out, results[i])
	}
	if len(failed) > 0 {
		return out, fmt.Errorf("parallel aggregation had %d error(s): %w", len(failed), failed[0])
	}
	return out, nil
}
