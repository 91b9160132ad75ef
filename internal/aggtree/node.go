// Package aggtree folds per-version API trees into one aggregated tree that
// records, for every symbol, the versions it appears in, its signature and
// source history, and the aliases that point at it.
package aggtree

import (
	"slices"

	"github.com/jward/apitrail/internal/versiontree"
)

// Kind is a node category. It reuses the version tree's closed set.
type Kind = versiontree.Kind

const (
	KindModule     = versiontree.KindModule
	KindClass      = versiontree.KindClass
	KindClassAlias = versiontree.KindClassAlias
	KindAPI        = versiontree.KindAPI
	KindAPIAlias   = versiontree.KindAPIAlias
)

// NodeID indexes a node in a Tree's arena. IDs are stable for the life of
// the tree and across Export/Restore.
type NodeID int

// NoNode is the absent NodeID.
const NoNode NodeID = -1

// NoPriorDiff is the diff size recorded for a symbol's first source
// snapshot.
const NoPriorDiff = -1

// Signature is the parameter list and default values of an API in one
// version.
type Signature struct {
	Params   []string
	Defaults []string
}

func (s Signature) clone() Signature {
	return Signature{Params: slices.Clone(s.Params), Defaults: slices.Clone(s.Defaults)}
}

// Source is one recorded source snapshot: where the text lives and how many
// lines changed since the previous snapshot of the same symbol.
type Source struct {
	Path     string
	DiffSize int
}

// Node is one symbol of an aggregated tree. Nodes are read-only outside
// this package.
type Node struct {
	id       NodeID
	name     string
	fullName string
	kind     Kind
	parent   NodeID
	children []NodeID

	versions    []string
	signatures  map[string]Signature
	sources     map[string]Source
	sourceOrder []string
}

func newNode(id NodeID, name, fullName string, kind Kind) *Node {
	return &Node{
		id:         id,
		name:       name,
		fullName:   fullName,
		kind:       kind,
		parent:     NoNode,
		signatures: make(map[string]Signature),
		sources:    make(map[string]Source),
	}
}

func (n *Node) ID() NodeID       { return n.id }
func (n *Node) Name() string     { return n.name }
func (n *Node) FullName() string { return n.fullName }
func (n *Node) Kind() Kind       { return n.kind }

// Parent returns the parent's ID, or NoNode for the root.
func (n *Node) Parent() NodeID { return n.parent }

// Children returns the child IDs in tree order.
func (n *Node) Children() []NodeID { return slices.Clone(n.children) }

// AvailableVersions returns the versions in which the symbol exists. Only
// membership is meaningful; callers must not rely on the order.
func (n *Node) AvailableVersions() []string { return slices.Clone(n.versions) }

// HasVersion reports whether the symbol exists in version v.
func (n *Node) HasVersion(v string) bool { return slices.Contains(n.versions, v) }

// Signature returns the API signature recorded for version v.
func (n *Node) Signature(v string) (Signature, bool) {
	s, ok := n.signatures[v]
	if !ok {
		return Signature{}, false
	}
	return s.clone(), true
}

// SignatureVersions lists the versions that have a recorded signature.
func (n *Node) SignatureVersions() []string {
	var out []string
	for _, v := range n.versions {
		if _, ok := n.signatures[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Source returns the source snapshot recorded for version v.
func (n *Node) Source(v string) (Source, bool) {
	s, ok := n.sources[v]
	return s, ok
}

// SourceVersions lists the versions with a source snapshot, in the order
// they were recorded.
func (n *Node) SourceVersions() []string { return slices.Clone(n.sourceOrder) }

func (n *Node) latestSource() (Source, bool) {
	if len(n.sourceOrder) == 0 {
		return Source{}, false
	}
	return n.sources[n.sourceOrder[len(n.sourceOrder)-1]], true
}

func (n *Node) addVersion(v string) {
	if !slices.Contains(n.versions, v) {
		n.versions = append(n.versions, v)
	}
}

func (n *Node) recordSource(v string, s Source) {
	if _, ok := n.sources[v]; !ok {
		n.sourceOrder = append(n.sourceOrder, v)
	}
	n.sources[v] = s
}

func (n *Node) key() key { return key{fullName: n.fullName, kind: n.kind} }

// key identifies a symbol within one tree. Modules have their own kind, so
// a module key is unique by full name alone.
type key struct {
	fullName string
	kind     Kind
}

// family groups kinds that may share a name without conflicting: a real
// symbol and an alias of the same category.
func family(k Kind) int {
	switch k {
	case KindClass, KindClassAlias:
		return 1
	case KindAPI, KindAPIAlias:
		return 2
	}
	return 0
}

// ownsConstructor reports whether a node of kind parent absorbs a same-named
// node of kind child as its constructor.
func ownsConstructor(parent, child Kind) bool {
	return (parent == KindClass && child == KindAPI) ||
		(parent == KindClassAlias && child == KindAPIAlias)
}
