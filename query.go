package apitrail

import (
	"fmt"

	"github.com/jward/apitrail/internal/aggtree"
	"github.com/jward/apitrail/internal/store"
	"github.com/jward/apitrail/internal/versiontree"
)

// QueryBuilder provides read-only access to stored aggregated trees.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder creates a QueryBuilder over an open Store, for readers
// that do not need an Engine.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// Trees lists stored trees. An empty library lists every library's trees.
func (q *QueryBuilder) Trees(library string) ([]*TreeInfo, error) {
	return q.store.Trees(library)
}

// Snapshot returns the stored tree for (library, root) in flat form, or nil
// when no such tree is stored.
func (q *QueryBuilder) Snapshot(library, root string) (*Snapshot, error) {
	ti, err := q.store.TreeByRoot(library, root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if ti == nil {
		return nil, nil
	}
	snap, err := q.store.LoadTree(ti.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Tree loads the stored tree for (library, root), or returns nil when no
// such tree is stored.
func (q *QueryBuilder) Tree(library, root string) (*Tree, error) {
	snap, err := q.Snapshot(library, root)
	if err != nil || snap == nil {
		return nil, err
	}
	t, err := aggtree.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("tree %s/%s: %w", library, root, err)
	}
	return t, nil
}

// Find locates stored nodes by full name across all libraries.
func (q *QueryBuilder) Find(fullName string) ([]*NodeRef, error) {
	return q.store.NodesByFullName(fullName)
}

// VersionEntry is one version of a node's history.
type VersionEntry struct {
	Version string

	// Set for nodes that carry a signature in this version.
	HasSignature  bool
	Params        []string
	Defaults      []string
	SignatureHash string

	// Set for nodes that recorded a source snapshot in this version.
	HasSource bool
	Source    string
	DiffSize  int

	// Target is the full name an alias points to in this version.
	Target string
	// Aliases lists the full names of aliases pointing here in this version.
	Aliases []string
}

// NodeHistory is the per-version record of one node.
type NodeHistory struct {
	Name     string
	FullName string
	Kind     Kind
	Entries  []VersionEntry
}

// History returns the version history of every node named fullName in the
// stored tree (library, root), one NodeHistory per category. Entries follow
// the tree's version order. Returns nil when the tree or the node is absent.
func (q *QueryBuilder) History(library, root, fullName string) ([]*NodeHistory, error) {
	t, err := q.Tree(library, root)
	if err != nil || t == nil {
		return nil, err
	}
	var out []*NodeHistory
	for _, k := range versiontree.Kinds {
		n, ok := t.Lookup(fullName, k)
		if !ok {
			continue
		}
		out = append(out, nodeHistory(t, n))
	}
	return out, nil
}

func nodeHistory(t *Tree, n *Node) *NodeHistory {
	h := &NodeHistory{Name: n.Name(), FullName: n.FullName(), Kind: n.Kind()}
	for _, v := range n.AvailableVersions() {
		e := VersionEntry{Version: v}
		if sig, ok := n.Signature(v); ok {
			e.HasSignature = true
			e.Params = sig.Params
			e.Defaults = sig.Defaults
			e.SignatureHash = store.ComputeSignatureHash(n.Name(), string(n.Kind()), sig.Params, sig.Defaults)
		}
		if src, ok := n.Source(v); ok {
			e.HasSource = true
			e.Source = src.Path
			e.DiffSize = src.DiffSize
		}
		if n.Kind().IsAlias() {
			if tid, ok := t.TargetAt(n.ID(), v); ok {
				e.Target = t.Node(tid).FullName()
			}
		} else {
			for _, aid := range t.AliasesAt(n.ID(), v) {
				e.Aliases = append(e.Aliases, t.Node(aid).FullName())
			}
		}
		h.Entries = append(h.Entries, e)
	}
	return h
}
