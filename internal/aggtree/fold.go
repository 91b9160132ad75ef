package aggtree

import (
	"errors"
	"fmt"

	"github.com/jward/apitrail/internal/versiontree"
)

// ErrNoVersions means no version of a fold could be loaded.
var ErrNoVersions = errors.New("no loadable versions")

// VersionInput is one version of a fold. Load is called once, in order.
type VersionInput struct {
	Label string
	Load  func() (*versiontree.Node, error)
}

// FoldResult is the outcome of folding a version list.
type FoldResult struct {
	Tree    *Tree
	Reports []*Report
	// Skipped lists versions whose tree failed to load or was malformed.
	Skipped []string
}

// SymbolErrors returns every symbol error across all reports.
func (r *FoldResult) SymbolErrors() []*SymbolError {
	var out []*SymbolError
	for _, rep := range r.Reports {
		out = append(out, rep.Errors...)
	}
	return out
}

// Fold builds a tree from the first loadable version and merges each later
// one in order. Inputs must already be sorted oldest first. Versions that
// fail to load are skipped; any other error aborts the fold and no tree is
// returned.
func Fold(inputs []VersionInput, opts Options) (*FoldResult, error) {
	opts = opts.withDefaults()
	res := &FoldResult{}
	for _, in := range inputs {
		root, err := in.Load()
		if err != nil {
			opts.Logger.Warn("version skipped", "version", in.Label, "error", err)
			res.Skipped = append(res.Skipped, in.Label)
			continue
		}

		var rep *Report
		if res.Tree == nil {
			var t *Tree
			t, rep, err = Build(root, in.Label, opts)
			if err == nil {
				res.Tree = t
			}
		} else {
			rep, err = res.Tree.Merge(root, in.Label, opts)
		}
		if errors.Is(err, ErrInvalidTree) {
			opts.Logger.Warn("version skipped", "version", in.Label, "error", err)
			res.Skipped = append(res.Skipped, in.Label)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fold: %w", err)
		}
		opts.Logger.Debug("version folded",
			"version", in.Label, "added", rep.Added, "updated", rep.Updated, "errors", len(rep.Errors))
		res.Reports = append(res.Reports, rep)
	}
	if res.Tree == nil {
		return nil, fmt.Errorf("fold: %w", ErrNoVersions)
	}
	return res, nil
}
