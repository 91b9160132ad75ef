// Package versiontree defines the per-version API tree produced upstream of
// aggregation, and reads and writes its on-disk JSON form.
package versiontree

import "fmt"

// Kind is the category of a symbol in a version tree.
type Kind string

const (
	KindModule     Kind = "module"
	KindClass      Kind = "class"
	KindClassAlias Kind = "class_alias"
	KindAPI        Kind = "api"
	KindAPIAlias   Kind = "api_alias"
)

// Kinds lists every valid kind in a stable order.
var Kinds = []Kind{KindModule, KindClass, KindClassAlias, KindAPI, KindAPIAlias}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindModule, KindClass, KindClassAlias, KindAPI, KindAPIAlias:
		return true
	}
	return false
}

// IsAlias reports whether k names an alias category.
func (k Kind) IsAlias() bool {
	return k == KindClassAlias || k == KindAPIAlias
}

// IsContainer reports whether nodes of kind k may have children.
func (k Kind) IsContainer() bool {
	return k == KindModule || k == KindClass || k == KindClassAlias
}

// HasSource reports whether nodes of kind k carry source snapshots.
func (k Kind) HasSource() bool {
	return k == KindClass || k == KindAPI
}

// TargetKind returns the real kind an alias of kind k points to, or "" when
// k is not an alias kind.
func (k Kind) TargetKind() Kind {
	switch k {
	case KindClassAlias:
		return KindClass
	case KindAPIAlias:
		return KindAPI
	}
	return ""
}

// Node is one symbol of a version tree.
type Node struct {
	Name     string
	FullName string
	Kind     Kind
	Parent   *Node
	Children []*Node

	// Params and Defaults are set on API nodes.
	Params   []string
	Defaults []string

	// Source is the path of the extracted source text for API and Class
	// nodes. Empty means no source.
	Source string

	// Target is the real node an alias denotes. When the target is not part
	// of the same tree, Target is nil and TargetName holds its full name.
	Target     *Node
	TargetName string

	// Aliases lists the alias nodes whose Target is this node.
	Aliases []*Node
}

// AddChild appends c to n's children and sets its parent.
func (n *Node) AddChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

// Walk visits n and its descendants breadth-first. Returning false from fn
// stops the walk.
func (n *Node) Walk(fn func(*Node) bool) {
	queue := []*Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !fn(cur) {
			return
		}
		queue = append(queue, cur.Children...)
	}
}

// Link points alias a at target t and records the reverse edge.
func Link(a, t *Node) {
	a.Target = t
	a.TargetName = t.FullName
	t.Aliases = append(t.Aliases, a)
}
