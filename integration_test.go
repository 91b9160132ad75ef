package apitrail

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

// writePyFiles writes files (relative path to contents) under dir.
func writePyFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, src := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
}

// extractVersions extracts each source version into <out>/<lib>/<label>/.
func extractVersions(t *testing.T, ex *extract.Extractor, srcRoot, out, lib string, labels ...string) {
	t.Helper()
	for _, label := range labels {
		_, err := ex.Version(context.Background(), filepath.Join(srcRoot, label), filepath.Join(out, lib, label))
		require.NoError(t, err)
	}
}

// TestIntegration_ExtractThenAggregate runs the full pipeline:
// Python sources → extract → AggregateDirectory → QueryBuilder.History
func TestIntegration_ExtractThenAggregate(t *testing.T) {
	srcRoot := t.TempDir()
	writePyFiles(t, filepath.Join(srcRoot, "1.0.0"), map[string]string{
		"mathx/__init__.py": "from .ops import add\n",
		"mathx/ops.py": `def add(a, b):
    return a + b

class Vector:
    def __init__(self, x, y):
        self.x = x
        self.y = y

    def norm(self):
        return (self.x ** 2 + self.y ** 2) ** 0.5
`,
		"mathx/tests/__init__.py":  "",
		"mathx/tests/test_ops.py": "def test_add():\n    pass\n",
	})
	writePyFiles(t, filepath.Join(srcRoot, "1.1.0"), map[string]string{
		"mathx/__init__.py": "from .ops import add, Vector as Vec\n",
		"mathx/ops.py": `def add(a, b, c=0):
    return a + b + c

class Vector:
    def __init__(self, x, y, z=0):
        self.x = x
        self.y = y
        self.z = z

    def norm(self):
        return (self.x ** 2 + self.y ** 2 + self.z ** 2) ** 0.5

    def _cache(self):
        pass
`,
	})

	out := t.TempDir()
	extractVersions(t, extract.New(), srcRoot, out, "mathx", "1.0.0", "1.1.0")

	e := newTestEngine(t)
	results, err := e.AggregateDirectory(context.Background(), out)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Trees, 1)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, results[0].Trees[0].Versions)
	assert.Empty(t, results[0].Trees[0].SymbolErrors)

	q := e.Query()

	t.Run("signature change", func(t *testing.T) {
		hist, err := q.History("mathx", "mathx", "mathx.ops.add")
		require.NoError(t, err)
		require.Len(t, hist, 1)
		entries := hist[0].Entries
		require.Len(t, entries, 2)
		assert.Equal(t, []string{"a", "b"}, entries[0].Params)
		assert.Equal(t, []string{"a", "b", "c"}, entries[1].Params)
		assert.Equal(t, []string{"0"}, entries[1].Defaults)
		assert.Greater(t, entries[1].DiffSize, 0)
	})

	t.Run("constructor", func(t *testing.T) {
		hist, err := q.History("mathx", "mathx", "mathx.ops.Vector")
		require.NoError(t, err)
		var ctor *NodeHistory
		for _, h := range hist {
			if h.Kind == versiontree.KindAPI {
				ctor = h
			}
		}
		require.NotNil(t, ctor)
		require.Len(t, ctor.Entries, 2)
		assert.Equal(t, []string{"self", "x", "y"}, ctor.Entries[0].Params)
		assert.Equal(t, []string{"self", "x", "y", "z"}, ctor.Entries[1].Params)
	})

	t.Run("re-export", func(t *testing.T) {
		hist, err := q.History("mathx", "mathx", "mathx.add")
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, versiontree.KindAPIAlias, hist[0].Kind)
		for _, entry := range hist[0].Entries {
			assert.Equal(t, "mathx.ops.add", entry.Target)
		}

		hist, err = q.History("mathx", "mathx", "mathx.Vec")
		require.NoError(t, err)
		require.NotEmpty(t, hist)
		assert.Equal(t, versiontree.KindClassAlias, hist[0].Kind)
		require.Len(t, hist[0].Entries, 1)
		assert.Equal(t, "1.1.0", hist[0].Entries[0].Version)
		assert.Equal(t, "mathx.ops.Vector", hist[0].Entries[0].Target)
	})

	t.Run("private and tests excluded", func(t *testing.T) {
		refs, err := q.Find("mathx.ops.Vector._cache")
		require.NoError(t, err)
		assert.Empty(t, refs)
		refs, err = q.Find("mathx.tests")
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

// TestIntegration_ScriptFilter extracts with a repository filter script.
func TestIntegration_ScriptFilter(t *testing.T) {
	srcRoot := t.TempDir()
	writePyFiles(t, filepath.Join(srcRoot, "2.0"), map[string]string{
		"svc/__init__.py": `def serve(host, port=8080):
    pass

@deprecated
def listen(port):
    pass
`,
	})

	rt := runtime.NewRuntime(filepath.Join(findModuleRoot(t), "scripts"))
	f, err := extract.LoadScriptFilter(rt, filepath.Join("filter", "stable.risor"))
	require.NoError(t, err)

	out := t.TempDir()
	extractVersions(t, extract.New(extract.WithFilter(f)), srcRoot, out, "svc", "2.0")

	e := newTestEngine(t)
	_, err = e.AggregateDirectory(context.Background(), out)
	require.NoError(t, err)

	refs, err := e.Query().Find("svc.serve")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	refs, err = e.Query().Find("svc.listen")
	require.NoError(t, err)
	assert.Empty(t, refs)
}
