package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/apitrail/internal/runtime"
	"github.com/jward/apitrail/internal/versiontree"
)

// Symbol describes a candidate node before it is added to the tree.
type Symbol struct {
	Name       string
	FullName   string
	Kind       versiontree.Kind
	Module     string
	Params     []string
	Decorators []string

	// Path is the .py file the symbol is defined in. Source is the text of
	// its definition; empty for modules.
	Path   string
	Source string
}

// Filter decides which symbols appear in the extracted tree.
type Filter interface {
	Keep(ctx context.Context, s Symbol) (bool, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, s Symbol) (bool, error)

func (f FilterFunc) Keep(ctx context.Context, s Symbol) (bool, error) { return f(ctx, s) }

// Public keeps every module and every symbol without a leading underscore.
var Public Filter = FilterFunc(func(_ context.Context, s Symbol) (bool, error) {
	return s.Kind == versiontree.KindModule || !strings.HasPrefix(s.Name, "_"), nil
})

// ScriptFilter evaluates a Risor expression per symbol. The script sees the
// globals name, full_name, kind, module, params, decorators, path and
// source, plus the runtime's tree-sitter functions, and keeps the symbol
// when its result is truthy.
type ScriptFilter struct {
	rt     *runtime.Runtime
	source string
}

// NewScriptFilter creates a filter from Risor source.
func NewScriptFilter(rt *runtime.Runtime, source string) *ScriptFilter {
	return &ScriptFilter{rt: rt, source: source}
}

// LoadScriptFilter reads the filter script at path through rt.
func LoadScriptFilter(rt *runtime.Runtime, path string) (*ScriptFilter, error) {
	src, err := rt.LoadScript(path)
	if err != nil {
		return nil, err
	}
	return NewScriptFilter(rt, src), nil
}

func (f *ScriptFilter) Keep(ctx context.Context, s Symbol) (bool, error) {
	keep, err := f.rt.Predicate(ctx, f.source, map[string]any{
		"name":       s.Name,
		"full_name":  s.FullName,
		"kind":       string(s.Kind),
		"module":     s.Module,
		"params":     runtime.Strings(s.Params),
		"decorators": runtime.Strings(s.Decorators),
		"path":       s.Path,
		"source":     s.Source,
	})
	if err != nil {
		return false, fmt.Errorf("filter %s: %w", s.FullName, err)
	}
	return keep, nil
}
