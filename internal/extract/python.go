package extract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/apitrail/internal/runtime"
)

// definition is a top-level function or class, or a method of a class.
type definition struct {
	class      bool
	name       string
	params     []string
	defaults   []string
	decorators []string
	text       string

	// Set on classes only. init is nil when the class has no __init__.
	init    *definition
	methods []*definition
}

// importFrom is one "from X import ..." statement.
type importFrom struct {
	level    int
	module   string
	names    []importedName
	wildcard bool
}

type importedName struct {
	name  string
	alias string
}

// local is the name the import binds in the importing module.
func (n importedName) local() string {
	if n.alias != "" {
		return n.alias
	}
	return n.name
}

// parsedModule is what one Python file contributes to the tree.
type parsedModule struct {
	defs     []*definition
	imports  []importFrom
	hasError bool
}

func parsePython(ctx context.Context, src []byte) (*parsedModule, error) {
	tree, err := runtime.Parse(ctx, src, runtime.Python)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	pm := &parsedModule{hasError: root.HasError()}
	seen := make(map[string]bool)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "import_from_statement" {
			if imp, ok := parseImportFrom(child, src); ok {
				pm.imports = append(pm.imports, imp)
			}
			continue
		}
		def := parseDefinition(child, src)
		if def == nil || seen[def.name] {
			continue
		}
		seen[def.name] = true
		pm.defs = append(pm.defs, def)
	}
	return pm, nil
}

// parseDefinition returns nil for statements that are not function or class
// definitions.
func parseDefinition(n *sitter.Node, src []byte) *definition {
	var decorators []string
	if n.Type() == "decorated_definition" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "decorator" {
				decorators = append(decorators, strings.TrimPrefix(c.Content(src), "@"))
			}
		}
		n = n.ChildByFieldName("definition")
		if n == nil {
			return nil
		}
	}

	var def *definition
	switch n.Type() {
	case "function_definition":
		def = parseFunction(n, src)
	case "class_definition":
		def = parseClass(n, src)
	default:
		return nil
	}
	if def != nil {
		def.decorators = decorators
	}
	return def
}

func parseFunction(n *sitter.Node, src []byte) *definition {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	def := &definition{name: name.Content(src), text: n.Content(src)}
	if p := n.ChildByFieldName("parameters"); p != nil {
		def.params, def.defaults = parseParameters(p, src)
	}
	return def
}

// parseParameters collects the positional parameter names and the source
// text of their default values. Collection stops at the first variadic or
// keyword-only marker.
func parseParameters(p *sitter.Node, src []byte) (params, defaults []string) {
	params, defaults = []string{}, []string{}
	for i := 0; i < int(p.NamedChildCount()); i++ {
		c := p.NamedChild(i)
		switch c.Type() {
		case "identifier":
			params = append(params, c.Content(src))
		case "typed_parameter":
			id := c.NamedChild(0)
			if id == nil || id.Type() != "identifier" {
				return params, defaults
			}
			params = append(params, id.Content(src))
		case "default_parameter", "typed_default_parameter":
			name := c.ChildByFieldName("name")
			if name == nil || name.Type() != "identifier" {
				continue
			}
			params = append(params, name.Content(src))
			if v := c.ChildByFieldName("value"); v != nil {
				defaults = append(defaults, v.Content(src))
			}
		case "list_splat_pattern", "dictionary_splat_pattern", "keyword_separator":
			return params, defaults
		}
	}
	return params, defaults
}

func parseClass(n *sitter.Node, src []byte) *definition {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	def := &definition{class: true, name: name.Content(src), text: n.Content(src)}
	body := n.ChildByFieldName("body")
	if body == nil {
		return def
	}
	seen := make(map[string]bool)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := parseDefinition(body.NamedChild(i), src)
		if m == nil || m.class || seen[m.name] {
			continue
		}
		seen[m.name] = true
		if m.name == "__init__" {
			def.init = m
			continue
		}
		def.methods = append(def.methods, m)
	}
	return def
}

func parseImportFrom(n *sitter.Node, src []byte) (importFrom, bool) {
	var imp importFrom
	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return imp, false
	}
	switch mod.Type() {
	case "relative_import":
		for i := 0; i < int(mod.NamedChildCount()); i++ {
			c := mod.NamedChild(i)
			switch c.Type() {
			case "import_prefix":
				imp.level = strings.Count(c.Content(src), ".")
			case "dotted_name":
				imp.module = c.Content(src)
			}
		}
	default:
		imp.module = mod.Content(src)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == mod.StartByte() && c.EndByte() == mod.EndByte() {
			continue
		}
		switch c.Type() {
		case "wildcard_import":
			imp.wildcard = true
		case "dotted_name":
			imp.names = append(imp.names, importedName{name: c.Content(src)})
		case "aliased_import":
			name := c.ChildByFieldName("name")
			alias := c.ChildByFieldName("alias")
			if name == nil {
				continue
			}
			in := importedName{name: name.Content(src)}
			if alias != nil {
				in.alias = alias.Content(src)
			}
			imp.names = append(imp.names, in)
		}
	}
	return imp, imp.wildcard || len(imp.names) > 0
}
