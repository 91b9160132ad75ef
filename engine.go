package apitrail

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jward/apitrail/internal/aggtree"
	"github.com/jward/apitrail/internal/difftrack"
	"github.com/jward/apitrail/internal/store"
	"github.com/jward/apitrail/internal/versiontree"
)

// Engine orchestrates aggregation: library discovery, change detection,
// the per-package version fold, and persistence.
type Engine struct {
	store   *store.Store
	logger  *slog.Logger
	orphans aggtree.OrphanPolicy
	reader  difftrack.Reader
	workers int
	force   bool

	// useParallel folds libraries concurrently with a single writer.
	useParallel bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithParallel controls parallel aggregation. When true (default),
// AggregateDirectory folds libraries on a worker pool and commits results
// from a single writer goroutine. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds how many libraries are folded at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithOrphanPolicy decides what happens to aliases whose target cannot be
// resolved. Defaults to OrphanKeep.
func WithOrphanPolicy(p OrphanPolicy) Option {
	return func(e *Engine) {
		e.orphans = p
	}
}

// WithSourceReader sets how source snapshots are read for diff sizes.
// Defaults to the local filesystem.
func WithSourceReader(r difftrack.Reader) Option {
	return func(e *Engine) {
		e.reader = r
	}
}

// WithForce re-aggregates libraries even when their input is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("apitrail: create db dir: %w", err)
		}
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("apitrail: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("apitrail: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		logger:      slog.New(slog.DiscardHandler),
		orphans:     aggtree.OrphanKeep,
		reader:      difftrack.FileReader,
		workers:     4,
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return NewQueryBuilder(e.store)
}

// AggregateDirectory discovers every library under dir, laid out as
// <dir>/<library>/<version>/<package>.json, and aggregates each one.
// Errors on individual libraries are collected; the other libraries are
// still aggregated and persisted.
func (e *Engine) AggregateDirectory(ctx context.Context, dir string) ([]*LibraryResult, error) {
	libs, err := versiontree.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("apitrail: %w", err)
	}
	e.logger.Info("libraries discovered", "dir", dir, "count", len(libs))
	if e.useParallel {
		return e.aggregateParallel(ctx, libs)
	}
	return e.aggregateSerial(ctx, libs)
}

func (e *Engine) aggregateSerial(ctx context.Context, libs []versiontree.Library) ([]*LibraryResult, error) {
	var (
		results []*LibraryResult
		errs    []error
	)
	for i := range libs {
		res, err := e.AggregateLibrary(ctx, &libs[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("aggregation had %d error(s): %w", len(errs), errs[0])
	}
	return results, nil
}

// AggregateLibraryDir aggregates the single library stored at dir.
func (e *Engine) AggregateLibraryDir(ctx context.Context, dir string) (*LibraryResult, error) {
	lib, err := versiontree.DiscoverLibrary(dir)
	if err != nil {
		return nil, fmt.Errorf("apitrail: %w", err)
	}
	return e.AggregateLibrary(ctx, lib)
}

// AggregateLibrary folds every root package of lib across its versions and
// replaces the library's stored trees with the result. Nothing is written
// unless every package folds.
func (e *Engine) AggregateLibrary(ctx context.Context, lib *versiontree.Library) (*LibraryResult, error) {
	res, trees, err := e.foldLibrary(ctx, lib)
	if err != nil {
		return nil, err
	}
	if trees != nil {
		if err := e.store.SaveLibrary(trees); err != nil {
			return nil, fmt.Errorf("library %s: %w", lib.Name, err)
		}
	}
	return res, nil
}

// foldLibrary computes a library's trees without touching the database
// beyond the input fingerprint lookup. trees is nil when the library is
// unchanged.
func (e *Engine) foldLibrary(ctx context.Context, lib *versiontree.Library) (*LibraryResult, *store.LibraryTrees, error) {
	hash, err := e.inputHash(lib)
	if err != nil {
		return nil, nil, fmt.Errorf("library %s: %w", lib.Name, err)
	}
	if !e.force {
		stored, err := e.store.LibraryInputHash(lib.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("library %s: %w", lib.Name, err)
		}
		if stored == hash {
			e.logger.Debug("library unchanged", "library", lib.Name)
			return &LibraryResult{Library: lib.Name, Unchanged: true}, nil, nil
		}
	}

	runID := uuid.NewString()
	logger := e.logger.With("library", lib.Name, "run_id", runID)
	tracker := difftrack.New(difftrack.WithReader(e.reader), difftrack.WithLogger(logger))
	start := time.Now()

	res := &LibraryResult{Library: lib.Name, RunID: runID}
	trees := &store.LibraryTrees{Library: lib.Name, RunID: runID, InputHash: hash}
	for _, pkg := range lib.Packages() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		inputs := packageInputs(lib, pkg)
		fr, err := aggtree.Fold(inputs, aggtree.Options{
			Logger:  logger.With("package", pkg),
			Differ:  tracker,
			Orphans: e.orphans,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("library %s package %s: %w", lib.Name, pkg, err)
		}
		for _, serr := range fr.SymbolErrors() {
			logger.Warn("symbol not merged",
				"package", pkg, "full_name", serr.FullName, "kind", serr.Kind,
				"version", serr.Version, "error", serr.Err)
		}
		trees.Trees = append(trees.Trees, fr.Tree.Export())
		res.Trees = append(res.Trees, TreeResult{
			Root:            pkg,
			Versions:        fr.Tree.Versions(),
			Nodes:           fr.Tree.Len(),
			SkippedVersions: fr.Skipped,
			SymbolErrors:    fr.SymbolErrors(),
		})
	}
	trees.AggregatedAt = time.Now().UTC()
	logger.Info("library aggregated", "trees", len(trees.Trees), "duration", time.Since(start))
	return res, trees, nil
}

// packageInputs lists, oldest first, the versions of lib that ship pkg.
func packageInputs(lib *versiontree.Library, pkg string) []aggtree.VersionInput {
	var inputs []aggtree.VersionInput
	for _, v := range lib.Versions {
		for _, f := range v.Files {
			if versiontree.PackageName(f) != pkg {
				continue
			}
			path := f
			inputs = append(inputs, aggtree.VersionInput{
				Label: v.Label,
				Load:  func() (*versiontree.Node, error) { return versiontree.Load(path) },
			})
			break
		}
	}
	return inputs
}

// inputHash fingerprints everything a library's fold depends on: the
// orphan policy, the version tree files (labels, paths relative to the
// library directory, contents) and every source snapshot those trees
// reference. A tree that fails to load contributes only its bytes.
func (e *Engine) inputHash(lib *versiontree.Library) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "orphans %s\n", e.orphans)
	for _, v := range lib.Versions {
		fmt.Fprintf(h, "version %s\n", v.Label)
		for _, f := range v.Files {
			fmt.Fprintf(h, "file %s\n", relPath(lib.Dir, f))
			if err := hashFile(h, f); err != nil {
				return "", err
			}
			root, err := versiontree.Load(f)
			if err != nil {
				continue
			}
			root.Walk(func(n *versiontree.Node) bool {
				if n.Source == "" {
					return true
				}
				fmt.Fprintf(h, "source %s %s\n", n.FullName, relPath(lib.Dir, n.Source))
				text, err := e.reader.ReadSource(n.Source)
				if err != nil {
					fmt.Fprintf(h, "unreadable\n")
					return true
				}
				fmt.Fprintf(h, "%d\n%s", len(text), text)
				return true
			})
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hash input: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("hash input: %w", err)
	}
	return nil
}
