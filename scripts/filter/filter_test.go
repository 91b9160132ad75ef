package filter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/apitrail/internal/extract"
	"github.com/jward/apitrail/internal/runtime"
	"github.com/jward/apitrail/internal/versiontree"
)

// findModuleRoot walks up from cwd to find go.mod, returning the repo root.
func findModuleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find module root")
		}
		dir = parent
	}
}

type testEnv struct {
	rt *runtime.Runtime
	t  *testing.T
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// Scripts directory is the repo root's scripts/ dir
	scriptsDir := filepath.Join(findModuleRoot(t), "scripts")
	return &testEnv{rt: runtime.NewRuntime(scriptsDir), t: t}
}

func (e *testEnv) filter(name string) *extract.ScriptFilter {
	e.t.Helper()
	f, err := extract.LoadScriptFilter(e.rt, filepath.Join("filter", name))
	require.NoError(e.t, err)
	return f
}

func (e *testEnv) keep(f extract.Filter, s extract.Symbol) bool {
	e.t.Helper()
	ok, err := f.Keep(context.Background(), s)
	require.NoError(e.t, err)
	return ok
}

// ---------- Tests ----------

func TestPublicFilter(t *testing.T) {
	env := newTestEnv(t)
	f := env.filter("public.risor")

	tests := []struct {
		sym  extract.Symbol
		want bool
	}{
		{extract.Symbol{Name: "run", FullName: "pkg.run", Kind: versiontree.KindAPI}, true},
		{extract.Symbol{Name: "_run", FullName: "pkg._run", Kind: versiontree.KindAPI}, false},
		{extract.Symbol{Name: "__init__", FullName: "pkg.Base.__init__", Kind: versiontree.KindAPI}, false},
		{extract.Symbol{Name: "_impl", FullName: "pkg._impl", Kind: versiontree.KindModule}, true},
		{extract.Symbol{Name: "Base", FullName: "pkg.Base", Kind: versiontree.KindClass}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, env.keep(f, tt.sym), tt.sym.FullName)
	}
}

func TestPublicFilter_MatchesBuiltin(t *testing.T) {
	env := newTestEnv(t)
	f := env.filter("public.risor")

	for _, name := range []string{"a", "_a", "__a__", "A_b"} {
		for _, kind := range versiontree.Kinds {
			s := extract.Symbol{Name: name, FullName: "pkg." + name, Kind: kind}
			want, err := extract.Public.Keep(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, want, env.keep(f, s), "%s %s", kind, name)
		}
	}
}

func TestStableFilter(t *testing.T) {
	env := newTestEnv(t)
	f := env.filter("stable.risor")

	tests := []struct {
		name       string
		decorators []string
		want       bool
	}{
		{"run", nil, true},
		{"run", []string{"staticmethod"}, true},
		{"run", []string{"deprecated"}, false},
		{"run", []string{"classmethod", `deprecated("use go")`}, false},
		{"run", []string{"experimental"}, false},
		{"_run", nil, false},
	}
	for _, tt := range tests {
		s := extract.Symbol{Name: tt.name, FullName: "pkg." + tt.name, Kind: versiontree.KindAPI, Decorators: tt.decorators}
		assert.Equal(t, tt.want, env.keep(f, s), "%s %v", tt.name, tt.decorators)
	}

	mod := extract.Symbol{Name: "_private", FullName: "pkg._private", Kind: versiontree.KindModule}
	assert.True(t, env.keep(f, mod))
}

func TestStableFilter_DuringExtraction(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(t.TempDir(), "pkg")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__init__.py"), []byte(`
def current(a, b=2):
    return a + b

@deprecated
def legacy(a):
    return a

def _hidden():
    pass
`), 0o644))

	ex := extract.New(extract.WithFilter(env.filter("stable.risor")))
	root, err := ex.Package(context.Background(), dir, filepath.Join(t.TempDir(), "src"))
	require.NoError(t, err)

	var names []string
	root.Walk(func(n *versiontree.Node) bool {
		names = append(names, n.FullName)
		return true
	})
	assert.Equal(t, []string{"pkg", "pkg.current"}, names)
}

func TestImplementedFilter(t *testing.T) {
	env := newTestEnv(t)
	f := env.filter("implemented.risor")

	tests := []struct {
		name   string
		kind   versiontree.Kind
		source string
		want   bool
	}{
		{"run", versiontree.KindAPI, "def run(self):\n    return 1\n", true},
		{"run", versiontree.KindAPI, "def run(self):\n    raise NotImplementedError\n", false},
		{"run", versiontree.KindAPI, "def run(self):\n    \"\"\"Run it.\"\"\"\n    raise NotImplementedError(\"subclass\")\n", false},
		{"run", versiontree.KindAPI, "def run(self):\n    # abstract\n    raise NotImplementedError()\n", false},
		{"run", versiontree.KindAPI, "def run(self):\n    raise ValueError(\"bad\")\n", true},
		{"run", versiontree.KindAPI, "def run(self, x):\n    if x:\n        raise NotImplementedError\n    return x\n", true},
		{"run", versiontree.KindAPI, "def run(self):\n    pass\n", true},
		{"run", versiontree.KindAPI, "", true},
		{"Base", versiontree.KindClass, "class Base:\n    pass\n", true},
		{"_run", versiontree.KindAPI, "def _run(self):\n    return 1\n", false},
	}
	for _, tt := range tests {
		s := extract.Symbol{
			Name: tt.name, FullName: "pkg.Base." + tt.name, Kind: tt.kind,
			Path: "pkg/__init__.py", Source: tt.source,
		}
		assert.Equal(t, tt.want, env.keep(f, s), "%q", tt.source)
	}
}

func TestImplementedFilter_DuringExtraction(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(t.TempDir(), "pkg")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__init__.py"), []byte(`
class Backend:
    def send(self, msg):
        """Deliver msg."""
        raise NotImplementedError

    def close(self):
        return None


def connect(url):
    return Backend()
`), 0o644))

	ex := extract.New(extract.WithFilter(env.filter("implemented.risor")))
	root, err := ex.Package(context.Background(), dir, filepath.Join(t.TempDir(), "src"))
	require.NoError(t, err)

	var names []string
	root.Walk(func(n *versiontree.Node) bool {
		names = append(names, n.FullName)
		return true
	})
	assert.ElementsMatch(t, []string{"pkg", "pkg.Backend", "pkg.Backend", "pkg.Backend.close", "pkg.connect"}, names)
}

func TestScriptFilter_SeesPathAndSource(t *testing.T) {
	env := newTestEnv(t)
	f := extract.NewScriptFilter(env.rt, `path.has_suffix("api.py") && source.has_prefix("def ")`)

	assert.True(t, env.keep(f, extract.Symbol{Name: "get", Kind: versiontree.KindAPI, Path: "pkg/api.py", Source: "def get(): pass"}))
	assert.False(t, env.keep(f, extract.Symbol{Name: "get", Kind: versiontree.KindAPI, Path: "pkg/util.py", Source: "def get(): pass"}))
}

func TestLoadScriptFilter_Missing(t *testing.T) {
	env := newTestEnv(t)
	_, err := extract.LoadScriptFilter(env.rt, filepath.Join("filter", "nope.risor"))
	require.Error(t, err)
}
