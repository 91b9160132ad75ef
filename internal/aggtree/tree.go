package aggtree

import (
	"log/slog"
	"slices"
)

// OrphanPolicy decides what happens to an alias whose real target cannot be
// resolved or grafted.
type OrphanPolicy string

const (
	// OrphanKeep keeps the alias without a target for that version and
	// reports the failure.
	OrphanKeep OrphanPolicy = "keep"
	// OrphanFail aborts the fold.
	OrphanFail OrphanPolicy = "fail"
)

// Differ measures the change between two source snapshots.
type Differ interface {
	Size(oldPath, newPath string) int
}

// Options configures Build, Merge and Fold.
type Options struct {
	Logger  *slog.Logger
	Differ  Differ
	Orphans OrphanPolicy
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Differ == nil {
		o.Differ = nopDiffer{}
	}
	if o.Orphans == "" {
		o.Orphans = OrphanKeep
	}
	return o
}

type nopDiffer struct{}

func (nopDiffer) Size(string, string) int { return 0 }

// Tree is an aggregated API tree for one root package. Nodes live in an
// arena indexed by NodeID; the alias relation is kept per version in two
// maps beside the parent/child tree.
type Tree struct {
	nodes    []*Node
	root     NodeID
	versions []string
	index    map[key]NodeID

	// targets maps alias -> version -> real node.
	targets map[NodeID]map[string]NodeID
	// fanIn maps real node -> version -> aliases pointing at it.
	fanIn map[NodeID]map[string]map[NodeID]struct{}
}

func newTree() *Tree {
	return &Tree{
		root:    NoNode,
		index:   make(map[key]NodeID),
		targets: make(map[NodeID]map[string]NodeID),
		fanIn:   make(map[NodeID]map[string]map[NodeID]struct{}),
	}
}

// Root returns the root module.
func (t *Tree) Root() *Node { return t.nodes[t.root] }

// Node returns the node with the given ID, or nil.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Versions returns the folded version labels in fold order.
func (t *Tree) Versions() []string { return slices.Clone(t.versions) }

// AllNodes returns every node in breadth-first order from the root.
func (t *Tree) AllNodes() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	queue := []NodeID{t.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := t.nodes[id]
		out = append(out, n)
		queue = append(queue, n.children...)
	}
	return out
}

// NodesByKind returns the nodes of kind k in breadth-first order.
func (t *Tree) NodesByKind(k Kind) []*Node {
	var out []*Node
	for _, n := range t.AllNodes() {
		if n.kind == k {
			out = append(out, n)
		}
	}
	return out
}

// Lookup finds a node by full name and kind.
func (t *Tree) Lookup(fullName string, k Kind) (*Node, bool) {
	id, ok := t.index[key{fullName: fullName, kind: k}]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

func (t *Tree) addNode(name, fullName string, kind Kind, parent NodeID) NodeID {
	id := NodeID(len(t.nodes))
	n := newNode(id, name, fullName, kind)
	n.parent = parent
	t.nodes = append(t.nodes, n)
	if parent != NoNode {
		p := t.nodes[parent]
		p.children = append(p.children, id)
	}
	return id
}

// register indexes id under its key unless the key is already taken.
func (t *Tree) register(id NodeID) bool {
	k := t.nodes[id].key()
	if _, ok := t.index[k]; ok {
		return false
	}
	t.index[k] = id
	return true
}
