package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/apitrail/internal/aggtree"
	"github.com/jward/apitrail/internal/runtime"
	"github.com/jward/apitrail/internal/versiontree"
)

const coreSource = `import os


def helper(a, b=1, *args, key=None, **kw):
    return a


def _private():
    pass


class Base:
    """Base class."""

    def __init__(self, x, y=2):
        self.x = x

    @property
    def value(self):
        return self.x

    def run(self, n: int, flag: bool = False):
        return n

    def _hidden(self):
        pass


class Plain:
    pass
`

// writePackage lays out a small package under dir and returns its path.
func writePackage(t *testing.T, dir string) string {
	t.Helper()
	files := map[string]string{
		"pkg/__init__.py":            "from .core import Base, helper as h\nfrom pkg.util import *\n",
		"pkg/core.py":                coreSource,
		"pkg/util.py":                "def tool():\n    pass\n",
		"pkg/compat.py":              "from pkg import Base as Legacy\nfrom os.path import join\n",
		"pkg/sub/__init__.py":        "from ..core import Plain\n",
		"pkg/tests/__init__.py":      "",
		"pkg/tests/test_core.py":     "def test_helper():\n    pass\n",
		"pkg/data/readme.txt":        "not a package\n",
		"pkg/_impl.py":               "def secret():\n    pass\n",
		"notapkg/orphan.py":          "def x():\n    pass\n",
		"other/__init__.py":          "",
		"other/mod.py":               "def f(a):\n    pass\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return filepath.Join(dir, "pkg")
}

func find(t *testing.T, root *versiontree.Node, fullName string, kind versiontree.Kind) *versiontree.Node {
	t.Helper()
	var found *versiontree.Node
	root.Walk(func(n *versiontree.Node) bool {
		if n.FullName == fullName && n.Kind == kind {
			found = n
			return false
		}
		return true
	})
	require.NotNil(t, found, "%s (%s) not found", fullName, kind)
	return found
}

func absent(t *testing.T, root *versiontree.Node, fullName string) {
	t.Helper()
	root.Walk(func(n *versiontree.Node) bool {
		assert.NotEqual(t, fullName, n.FullName)
		return true
	})
}

func extractPkg(t *testing.T, opts ...Option) *versiontree.Node {
	t.Helper()
	dir := t.TempDir()
	pkgDir := writePackage(t, dir)
	root, err := New(opts...).Package(context.Background(), pkgDir, filepath.Join(dir, "out", "src"))
	require.NoError(t, err)
	return root
}

// ===========================================================================
// Structure
// ===========================================================================

func TestPackage_Structure(t *testing.T) {
	t.Parallel()
	root := extractPkg(t)

	assert.Equal(t, "pkg", root.FullName)
	assert.Equal(t, versiontree.KindModule, root.Kind)

	find(t, root, "pkg.core", versiontree.KindModule)
	find(t, root, "pkg.util", versiontree.KindModule)
	find(t, root, "pkg.sub", versiontree.KindModule)
	find(t, root, "pkg._impl", versiontree.KindModule)
	absent(t, root, "pkg.tests")
	absent(t, root, "pkg.data")
	absent(t, root, "pkg.core._private")
	absent(t, root, "pkg.core.Base._hidden")
}

func TestPackage_FunctionSignature(t *testing.T) {
	t.Parallel()
	root := extractPkg(t)

	helper := find(t, root, "pkg.core.helper", versiontree.KindAPI)
	assert.Equal(t, []string{"a", "b"}, helper.Params)
	assert.Equal(t, []string{"1"}, helper.Defaults)

	src, err := os.ReadFile(helper.Source)
	require.NoError(t, err)
	assert.Contains(t, string(src), "def helper(a, b=1")
}

func TestPackage_ClassConstructorAndMethods(t *testing.T) {
	t.Parallel()
	root := extractPkg(t)

	base := find(t, root, "pkg.core.Base", versiontree.KindClass)
	require.NotEmpty(t, base.Source)

	var names []string
	for _, c := range base.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Base", "value", "run"}, names)

	ctor := base.Children[0]
	assert.Equal(t, versiontree.KindAPI, ctor.Kind)
	assert.Equal(t, "pkg.core.Base", ctor.FullName)
	assert.Equal(t, []string{"self", "x", "y"}, ctor.Params)
	assert.Equal(t, []string{"2"}, ctor.Defaults)

	run := find(t, root, "pkg.core.Base.run", versiontree.KindAPI)
	assert.Equal(t, []string{"self", "n", "flag"}, run.Params)
	assert.Equal(t, []string{"False"}, run.Defaults)
}

func TestPackage_ClassWithoutInit(t *testing.T) {
	t.Parallel()
	root := extractPkg(t)

	plain := find(t, root, "pkg.core.Plain", versiontree.KindClass)
	require.Len(t, plain.Children, 1)
	ctor := plain.Children[0]
	assert.Equal(t, "pkg.core.Plain", ctor.FullName)
	assert.Empty(t, ctor.Params)
	assert.Empty(t, ctor.Source)
}

// ===========================================================================
// Import aliases
// ===========================================================================

func TestPackage_ImportAliases(t *testing.T) {
	t.Parallel()
	root := extractPkg(t)

	h := find(t, root, "pkg.h", versiontree.KindAPIAlias)
	require.NotNil(t, h.Target)
	assert.Equal(t, "pkg.core.helper", h.Target.FullName)

	tool := find(t, root, "pkg.tool", versiontree.KindAPIAlias)
	assert.Equal(t, "pkg.util.tool", tool.TargetName)

	plain := find(t, root, "pkg.sub.Plain", versiontree.KindClassAlias)
	assert.Equal(t, "pkg.core.Plain", plain.TargetName)

	absent(t, root, "pkg.compat.join")
}

func TestPackage_ReexportFollowsToRealClass(t *testing.T) {
	t.Parallel()
	root := extractPkg(t)

	legacy := find(t, root, "pkg.compat.Legacy", versiontree.KindClassAlias)
	require.NotNil(t, legacy.Target)
	assert.Equal(t, "pkg.core.Base", legacy.Target.FullName)
	assert.Equal(t, versiontree.KindClass, legacy.Target.Kind)

	ctor := find(t, root, "pkg.compat.Legacy", versiontree.KindAPIAlias)
	assert.Equal(t, "Legacy", ctor.Name)
	assert.Equal(t, "pkg.core.Base", ctor.TargetName)

	run := find(t, root, "pkg.compat.Legacy.run", versiontree.KindAPIAlias)
	assert.Equal(t, "pkg.core.Base.run", run.TargetName)

	base := find(t, root, "pkg.core.Base", versiontree.KindClass)
	assert.Len(t, base.Aliases, 2)
}

// ===========================================================================
// Filters
// ===========================================================================

func TestPackage_ScriptFilter(t *testing.T) {
	t.Parallel()
	rt := runtime.NewRuntime("")
	f := NewScriptFilter(rt, `kind == "module" || len(decorators) == 0 && !name.has_prefix("_")`)
	root := extractPkg(t, WithFilter(f))

	find(t, root, "pkg.core.Base.run", versiontree.KindAPI)
	absent(t, root, "pkg.core.Base.value")
}

func TestPackage_FilterSeesPathAndSource(t *testing.T) {
	t.Parallel()
	seen := make(map[string]Symbol)
	rec := FilterFunc(func(_ context.Context, s Symbol) (bool, error) {
		seen[string(s.Kind)+" "+s.FullName] = s
		return true, nil
	})
	extractPkg(t, WithFilter(rec))

	mod := seen["module pkg.core"]
	assert.Equal(t, "core.py", filepath.Base(mod.Path))
	assert.Empty(t, mod.Source)

	sub := seen["module pkg.sub"]
	assert.Equal(t, filepath.Join("sub", "__init__.py"), filepath.Join(filepath.Base(filepath.Dir(sub.Path)), filepath.Base(sub.Path)))

	helper := seen["api pkg.core.helper"]
	assert.Equal(t, mod.Path, helper.Path)
	assert.Contains(t, helper.Source, "def helper(a, b=1")
	assert.Contains(t, helper.Source, "return a")

	run := seen["api pkg.core.Base.run"]
	assert.Contains(t, run.Source, "def run(self, n: int")
	assert.Equal(t, "pkg.core", run.Module)
}

func TestPackage_FilterError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pkgDir := writePackage(t, dir)
	f := NewScriptFilter(runtime.NewRuntime(""), `missing_global == 1`)

	_, err := New(WithFilter(f)).Package(context.Background(), pkgDir, filepath.Join(dir, "src"))
	assert.Error(t, err)
}

func TestPackage_NotAPackage(t *testing.T) {
	t.Parallel()
	_, err := New().Package(context.Background(), t.TempDir(), t.TempDir())
	assert.ErrorContains(t, err, "not a python package")
}

// ===========================================================================
// Version output
// ===========================================================================

func TestVersion_WritesLoadableTrees(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePackage(t, dir)
	out := filepath.Join(t.TempDir(), "mylib", "1.0")

	paths, err := New(WithWorkers(2)).Version(context.Background(), dir, out)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(out, "other.json"), filepath.Join(out, "pkg.json")}, paths)

	root, err := versiontree.Load(paths[1])
	require.NoError(t, err)
	helper := find(t, root, "pkg.core.helper", versiontree.KindAPI)
	assert.FileExists(t, helper.Source)

	legacy := find(t, root, "pkg.compat.Legacy", versiontree.KindClassAlias)
	require.NotNil(t, legacy.Target)
	assert.Equal(t, "pkg.core.Base", legacy.Target.FullName)

	tree, rep, err := aggtree.Build(root, "1.0", aggtree.Options{})
	require.NoError(t, err)
	assert.Empty(t, rep.Errors)
	_, ok := tree.Lookup("pkg.compat.Legacy.run", aggtree.KindAPIAlias)
	assert.True(t, ok)
}

func TestVersion_NoPackages(t *testing.T) {
	t.Parallel()
	_, err := New().Version(context.Background(), t.TempDir(), t.TempDir())
	assert.ErrorContains(t, err, "no python packages")
}

// ===========================================================================
// Parameters
// ===========================================================================

func TestParseParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		params   []string
		defaults []string
	}{
		{"plain", "def f(a, b): pass", []string{"a", "b"}, []string{}},
		{"defaults", "def f(a, b=1, c='x'): pass", []string{"a", "b", "c"}, []string{"1", "'x'"}},
		{"typed", "def f(a: int, b: str = 'y'): pass", []string{"a", "b"}, []string{"'y'"}},
		{"star args stop", "def f(a, *args, b=2): pass", []string{"a"}, []string{}},
		{"bare star stops", "def f(a, *, b=2): pass", []string{"a"}, []string{}},
		{"positional only", "def f(a, /, b): pass", []string{"a", "b"}, []string{}},
		{"kwargs stop", "def f(a, **kw): pass", []string{"a"}, []string{}},
		{"empty", "def f(): pass", []string{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pm, err := parsePython(context.Background(), []byte(tt.src+"\n"))
			require.NoError(t, err)
			require.Len(t, pm.defs, 1)
			assert.Equal(t, tt.params, pm.defs[0].params)
			assert.Equal(t, tt.defaults, pm.defs[0].defaults)
		})
	}
}

func TestParseImportFrom(t *testing.T) {
	t.Parallel()
	src := "from ..core import A, b as c\nfrom . import sub\nfrom pkg.util import *\nimport os\n"
	pm, err := parsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	require.Len(t, pm.imports, 3)

	assert.Equal(t, 2, pm.imports[0].level)
	assert.Equal(t, "core", pm.imports[0].module)
	assert.Equal(t, []importedName{{name: "A"}, {name: "b", alias: "c"}}, pm.imports[0].names)

	assert.Equal(t, 1, pm.imports[1].level)
	assert.Empty(t, pm.imports[1].module)

	assert.Equal(t, "pkg.util", pm.imports[2].module)
	assert.True(t, pm.imports[2].wildcard)
}
