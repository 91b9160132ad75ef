// Package extract produces version trees from Python package sources using
// tree-sitter.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jward/apitrail/internal/versiontree"
)

const initFile = "__init__.py"

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{"test", "tests", "testing"}

// Extractor walks Python packages and builds version trees.
type Extractor struct {
	filter   Filter
	skipDirs map[string]bool
	workers  int
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFilter replaces the Public symbol filter.
func WithFilter(f Filter) Option {
	return func(e *Extractor) { e.filter = f }
}

// WithSkipDirs replaces DefaultSkipDirs.
func WithSkipDirs(dirs []string) Option {
	return func(e *Extractor) {
		e.skipDirs = make(map[string]bool, len(dirs))
		for _, d := range dirs {
			e.skipDirs[d] = true
		}
	}
}

// WithWorkers bounds how many packages of one version are extracted at once.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		filter:  Public,
		workers: 4,
		logger:  slog.New(slog.DiscardHandler),
	}
	WithSkipDirs(DefaultSkipDirs)(e)
	for _, o := range opts {
		o(e)
	}
	return e
}

// Version extracts every top-level package under versionDir and writes one
// tree file per package to outDir, with source snippets under outDir/src.
// It returns the written file paths in package order.
func (e *Extractor) Version(ctx context.Context, versionDir, outDir string) ([]string, error) {
	entries, err := os.ReadDir(versionDir)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	var pkgs []string
	for _, ent := range entries {
		if !ent.IsDir() || e.skipDirs[ent.Name()] || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		if isPackage(filepath.Join(versionDir, ent.Name())) {
			pkgs = append(pkgs, ent.Name())
		}
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("extract: no python packages in %s", versionDir)
	}

	out := make([]string, len(pkgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, name := range pkgs {
		g.Go(func() error {
			root, err := e.Package(ctx, filepath.Join(versionDir, name), filepath.Join(outDir, "src", name))
			if err != nil {
				return err
			}
			path := filepath.Join(outDir, name+".json")
			if err := versiontree.Save(path, root); err != nil {
				return fmt.Errorf("extract %s: %w", name, err)
			}
			out[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Package extracts the package rooted at dir. Source snippets are written to
// srcDir, one file per class or function.
func (e *Extractor) Package(ctx context.Context, dir, srcDir string) (*versiontree.Node, error) {
	if !isPackage(dir) {
		return nil, fmt.Errorf("extract: %s is not a python package", dir)
	}
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract: create source dir: %w", err)
	}
	name := filepath.Base(dir)
	w := &walker{
		e:      e,
		srcDir: srcDir,
		root:   &versiontree.Node{Name: name, FullName: name, Kind: versiontree.KindModule},
	}
	if err := w.walkPackage(ctx, dir, w.root); err != nil {
		return nil, err
	}
	if err := w.linkImports(ctx); err != nil {
		return nil, err
	}
	e.logger.Debug("package extracted", "package", name, "modules", len(w.modules))
	return w.root, nil
}

func isPackage(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, initFile))
	return err == nil && !fi.IsDir()
}

// moduleFile is one parsed .py file and the tree node it populated.
type moduleFile struct {
	node *versiontree.Node
	// pkg is the full name of the package relative imports start from.
	pkg     string
	imports []importFrom
}

type walker struct {
	e       *Extractor
	srcDir  string
	root    *versiontree.Node
	modules []*moduleFile
}

func (w *walker) walkPackage(ctx context.Context, dir string, node *versiontree.Node) error {
	if err := w.parseFile(ctx, filepath.Join(dir, initFile), node, node.FullName); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for _, ent := range entries {
		name := ent.Name()
		path := filepath.Join(dir, name)
		switch {
		case strings.HasPrefix(name, "."):
		case ent.IsDir():
			if w.e.skipDirs[name] || !isPackage(path) {
				continue
			}
			child, err := w.module(ctx, node, name, filepath.Join(path, initFile))
			if err != nil {
				return err
			}
			if child == nil {
				continue
			}
			if err := w.walkPackage(ctx, path, child); err != nil {
				return err
			}
		case name != initFile && filepath.Ext(name) == ".py":
			child, err := w.module(ctx, node, strings.TrimSuffix(name, ".py"), path)
			if err != nil {
				return err
			}
			if child == nil {
				continue
			}
			if err := w.parseFile(ctx, path, child, node.FullName); err != nil {
				return err
			}
		}
	}
	return nil
}

// module adds a module child to parent, or returns nil when the filter
// rejects it. file is the module's source file.
func (w *walker) module(ctx context.Context, parent *versiontree.Node, name, file string) (*versiontree.Node, error) {
	n := &versiontree.Node{Name: name, FullName: parent.FullName + "." + name, Kind: versiontree.KindModule}
	ok, err := w.keep(ctx, n, Symbol{Module: parent.FullName, Path: file})
	if err != nil || !ok {
		return nil, err
	}
	parent.AddChild(n)
	return n, nil
}

// keep asks the filter about n; s carries the context the node lacks.
func (w *walker) keep(ctx context.Context, n *versiontree.Node, s Symbol) (bool, error) {
	s.Name, s.FullName, s.Kind = n.Name, n.FullName, n.Kind
	return w.e.filter.Keep(ctx, s)
}

func (w *walker) parseFile(ctx context.Context, path string, node *versiontree.Node, pkg string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	pm, err := parsePython(ctx, src)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	if pm.hasError {
		w.e.logger.Warn("syntax errors in source, extracting what parsed", "path", path)
	}
	w.modules = append(w.modules, &moduleFile{node: node, pkg: pkg, imports: pm.imports})

	for _, def := range pm.defs {
		if err := w.addDefinition(ctx, node, path, def); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) addDefinition(ctx context.Context, mod *versiontree.Node, path string, def *definition) error {
	full := mod.FullName + "." + def.name
	if !def.class {
		n := &versiontree.Node{Name: def.name, FullName: full, Kind: versiontree.KindAPI, Params: def.params, Defaults: def.defaults}
		ok, err := w.keep(ctx, n, Symbol{
			Module: mod.FullName, Path: path, Source: def.text,
			Params: def.params, Decorators: def.decorators,
		})
		if err != nil || !ok {
			return err
		}
		if n.Source, err = w.writeSnippet(full+".py", def.text); err != nil {
			return err
		}
		mod.AddChild(n)
		return nil
	}

	cls := &versiontree.Node{Name: def.name, FullName: full, Kind: versiontree.KindClass}
	ok, err := w.keep(ctx, cls, Symbol{Module: mod.FullName, Path: path, Source: def.text, Decorators: def.decorators})
	if err != nil || !ok {
		return err
	}
	if cls.Source, err = w.writeSnippet(full+".py", def.text); err != nil {
		return err
	}
	mod.AddChild(cls)

	ctor := &versiontree.Node{Name: def.name, FullName: full, Kind: versiontree.KindAPI, Params: []string{}, Defaults: []string{}}
	if def.init != nil {
		ctor.Params, ctor.Defaults = def.init.params, def.init.defaults
		if ctor.Source, err = w.writeSnippet(full+".__init__.py", def.init.text); err != nil {
			return err
		}
	}
	cls.AddChild(ctor)

	for _, m := range def.methods {
		n := &versiontree.Node{Name: m.name, FullName: full + "." + m.name, Kind: versiontree.KindAPI, Params: m.params, Defaults: m.defaults}
		ok, err := w.keep(ctx, n, Symbol{
			Module: mod.FullName, Path: path, Source: m.text,
			Params: m.params, Decorators: m.decorators,
		})
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if n.Source, err = w.writeSnippet(n.FullName+".py", m.text); err != nil {
			return err
		}
		cls.AddChild(n)
	}
	return nil
}

func (w *walker) writeSnippet(name, text string) (string, error) {
	path := filepath.Join(w.srcDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("extract: write source: %w", err)
	}
	return path, nil
}

// linkImports turns "from X import name" statements that resolve to a class
// or function of the same package into alias nodes. Re-exports are followed
// to the real definition.
func (w *walker) linkImports(ctx context.Context) error {
	modules := make(map[string]*versiontree.Node)
	exports := make(map[string]map[string]*versiontree.Node)
	for _, mf := range w.modules {
		modules[mf.node.FullName] = mf.node
		ex := make(map[string]*versiontree.Node)
		for _, c := range mf.node.Children {
			if c.Kind == versiontree.KindClass || c.Kind == versiontree.KindAPI {
				ex[c.Name] = c
			}
		}
		exports[mf.node.FullName] = ex
	}

	type binding struct {
		mod    *moduleFile
		local  string
		target *versiontree.Node
	}
	var bindings []binding
	bind := func(mf *moduleFile, local string, target *versiontree.Node) bool {
		ex := exports[mf.node.FullName]
		if _, taken := ex[local]; taken {
			return false
		}
		ex[local] = target
		bindings = append(bindings, binding{mf, local, target})
		return true
	}

	for changed := true; changed; {
		changed = false
		for _, mf := range w.modules {
			for _, imp := range mf.imports {
				src, ok := w.resolveModule(mf, imp, modules)
				if !ok || src == mf.node.FullName {
					continue
				}
				ex := exports[src]
				if imp.wildcard {
					names := make([]string, 0, len(ex))
					for name := range ex {
						if !strings.HasPrefix(name, "_") {
							names = append(names, name)
						}
					}
					sort.Strings(names)
					for _, name := range names {
						changed = bind(mf, name, ex[name]) || changed
					}
					continue
				}
				for _, in := range imp.names {
					if target, ok := ex[in.name]; ok {
						changed = bind(mf, in.local(), target) || changed
					}
				}
			}
		}
	}

	for _, b := range bindings {
		if err := w.addAlias(ctx, b.mod.node, b.local, b.target); err != nil {
			return err
		}
	}
	return nil
}

// resolveModule maps the module part of an import to the full name of a
// module in this package.
func (w *walker) resolveModule(mf *moduleFile, imp importFrom, modules map[string]*versiontree.Node) (string, bool) {
	var candidates []string
	if imp.level > 0 {
		base := mf.pkg
		for i := 1; i < imp.level; i++ {
			idx := strings.LastIndex(base, ".")
			if idx < 0 {
				return "", false
			}
			base = base[:idx]
		}
		if imp.module != "" {
			base += "." + imp.module
		}
		candidates = append(candidates, base)
	} else {
		candidates = append(candidates, imp.module, mf.pkg+"."+imp.module)
	}
	for _, c := range candidates {
		if _, ok := modules[c]; ok {
			return c, true
		}
	}
	return "", false
}

func (w *walker) addAlias(ctx context.Context, mod *versiontree.Node, local string, target *versiontree.Node) error {
	full := mod.FullName + "." + local
	kind := versiontree.KindAPIAlias
	if target.Kind == versiontree.KindClass {
		kind = versiontree.KindClassAlias
	}
	a := &versiontree.Node{Name: local, FullName: full, Kind: kind}
	ok, err := w.keep(ctx, a, Symbol{Module: mod.FullName, Params: target.Params})
	if err != nil || !ok {
		return err
	}
	mod.AddChild(a)
	versiontree.Link(a, target)

	if kind != versiontree.KindClassAlias {
		return nil
	}
	for _, c := range target.Children {
		ca := &versiontree.Node{Name: c.Name, FullName: full + "." + c.Name, Kind: versiontree.KindAPIAlias}
		if c.FullName == target.FullName {
			ca.Name, ca.FullName = local, full
		}
		a.AddChild(ca)
		versiontree.Link(ca, c)
	}
	return nil
}
