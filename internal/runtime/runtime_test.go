package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pyTestSource = `import os


def greet(name):
    return "Hello, " + name


def add(a, b=2):
    return a + b


class Server:
    def __init__(self, host, port=80):
        self.host = host
        self.port = port

    def address(self):
        return self.host
`

// parsePySource parses Python source and registers it in a fresh source
// store.
func parsePySource(t *testing.T, src string) (*sitter.Tree, *sourceStore) {
	t.Helper()

	ss := newSourceStore()
	tree, err := Parse(context.Background(), []byte(src), Python)
	require.NoError(t, err)

	lang, ok := ParserForLanguage(Python)
	require.True(t, ok)
	ss.store(tree, []byte(src), lang)
	return tree, ss
}

func TestParserForLanguage(t *testing.T) {
	t.Parallel()

	l, ok := ParserForLanguage(Python)
	assert.True(t, ok)
	assert.NotNil(t, l)

	_, ok = ParserForLanguage("cobol")
	assert.False(t, ok)
}

// --- Parse tests ---

func TestParse_ModuleRoot(t *testing.T) {
	t.Parallel()
	tree, ss := parsePySource(t, pyTestSource)
	defer ss.close()

	root := tree.RootNode()
	assert.Equal(t, "module", root.Type())
	assert.Equal(t, 4, int(root.NamedChildCount()))
}

func TestParse_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	_, err := Parse(context.Background(), []byte("x"), "cobol")
	assert.ErrorContains(t, err, "unsupported language")
}

func TestParse_InvalidSourceStillReturnsTree(t *testing.T) {
	t.Parallel()
	tree, ss := parsePySource(t, "def broken(:\n")
	defer ss.close()
	assert.True(t, tree.RootNode().HasError())
}

func TestSourceStore_SourceForChild(t *testing.T) {
	t.Parallel()
	tree, ss := parsePySource(t, pyTestSource)
	defer ss.close()

	fn := tree.RootNode().NamedChild(1)
	require.Equal(t, "function_definition", fn.Type())
	src, ok := ss.sourceForNode(fn.ChildByFieldName("name"))
	require.True(t, ok)
	assert.Equal(t, "greet", fn.ChildByFieldName("name").Content(src))
}

func TestSourceStore_CloseForgetsTrees(t *testing.T) {
	t.Parallel()
	tree, ss := parsePySource(t, pyTestSource)
	root := tree.RootNode()
	_, ok := ss.languageForNode(root)
	require.True(t, ok)

	ss.close()
	_, ok = ss.sourceForNode(root)
	assert.False(t, ok)
	assert.Empty(t, ss.trees)
}

// --- Host function tests ---

func TestHostFuncs_NodeChildAndText(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	script := `
root := parse_src(src, "python").RootNode()
assert(root.Type() == "module", "expected module")

names := []
count := int(root.NamedChildCount())
for i := 0; i < count; i++ {
    child := root.NamedChild(i)
    if child.Type() == "function_definition" {
        names.append(node_text(node_child(child, "name")))
    }
}
len(names) == 2 && names[0] == "greet" && names[1] == "add"
`
	got, err := rt.Predicate(context.Background(), script, map[string]any{"src": pyTestSource})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestHostFuncs_Query(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	script := `
matches := query("(class_definition name: (identifier) @name)", parse_src(src, "python").RootNode())
len(matches) == 1 && node_text(matches[0]["name"]) == "Server"
`
	got, err := rt.Predicate(context.Background(), script, map[string]any{"src": pyTestSource})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestHostFuncs_QueryInvalidPattern(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	script := `query("(not_a_real_node_type @x)", parse_src(src, "python").RootNode())`
	_, err := rt.Predicate(context.Background(), script, map[string]any{"src": pyTestSource})
	assert.Error(t, err)
}

func TestHostFuncs_ParseUnsupportedLanguage(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	_, err := rt.Predicate(context.Background(), `parse_src("x", "cobol")`, nil)
	assert.ErrorContains(t, err, "unsupported language")
}

func TestHostFuncs_NodeChildMissingFieldIsNil(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	script := `
fn := parse_src(src, "python").RootNode().NamedChild(0)
node_child(fn, "return_type") == nil
`
	got, err := rt.Predicate(context.Background(), script, map[string]any{"src": "def f(): pass\n"})
	require.NoError(t, err)
	assert.True(t, got)
}

// --- Predicate tests ---

func TestPredicate(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	ctx := context.Background()
	script := `!name.has_prefix("_") || kind == "module"`

	tests := []struct {
		name string
		kind string
		want bool
	}{
		{"public", "api", true},
		{"_private", "api", false},
		{"_impl", "module", true},
	}
	for _, tt := range tests {
		got, err := rt.Predicate(ctx, script, map[string]any{"name": tt.name, "kind": tt.kind})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestPredicate_ListGlobal(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	got, err := rt.Predicate(context.Background(), `len(params) == 2`, map[string]any{
		"params": Strings([]string{"a", "b"}),
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestPredicate_ScriptError(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	_, err := rt.Predicate(context.Background(), `undefined_thing + 1`, nil)
	assert.Error(t, err)
}

func TestLogGlobal_WritesToSlog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rt := NewRuntime("", WithRuntimeLogger(logger))

	_, err := rt.Predicate(context.Background(), `log.Info("hello from script")`, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello from script")
	assert.Contains(t, buf.String(), "source=script")
}

// --- Script loading tests ---

func TestLoadScript_FromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`1 + 1 == 2`), 0o644))

	rt := NewRuntime(dir)
	src, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	got, err := rt.Predicate(context.Background(), src, nil)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = rt.LoadScript("nonexistent.risor")
	assert.Error(t, err)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(fstest.MapFS{
		"filter/keep.risor": &fstest.MapFile{Data: []byte(`true`)},
	}))

	src, err := rt.LoadScript("/filter/keep.risor")
	require.NoError(t, err)
	assert.Equal(t, "true", src)

	_, err = rt.LoadScript("filter/missing.risor")
	assert.Error(t, err)
}

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(fstest.MapFS{
		"rules.risor": &fstest.MapFile{Data: []byte(`
func public(name) {
	return !name.has_prefix("_")
}
`)},
	}))

	got, err := rt.Predicate(context.Background(), `
import rules
rules.public(name)
`, map[string]any{"name": "run"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestImport_LocalImporterSeesHostGlobals(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.risor"), []byte(`
func do_log(msg) {
	log.Debug(msg)
}
`), 0o644))

	rt := NewRuntime(dir)
	_, err := rt.Predicate(context.Background(), `
import helper
helper.do_log("imported")
`, nil)
	require.NoError(t, err)
}
