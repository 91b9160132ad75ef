package aggtree

import (
	"fmt"
	"slices"

	"github.com/jward/apitrail/internal/versiontree"
)

// pendingEdge is an alias reference detached to names: the alias's
// snapshot ID and the key of its real target. direct is the target's
// snapshot ID when the version tree linked it by pointer.
type pendingEdge struct {
	alias  NodeID
	target key
	direct NodeID
}

// snapshot is a single version converted to aggregated shape, with its
// alias references still unresolved.
type snapshot struct {
	tree    *Tree
	version string
	pending []pendingEdge
}

// owner reports whether id is the first-seen node for its key.
func (s *snapshot) owner(id NodeID) NodeID {
	return s.tree.index[s.tree.nodes[id].key()]
}

// build converts one version tree. Nodes are enumerated breadth-first and
// instantiated deepest-first; a second deepest-first pass links parents and
// collects alias edges. Node IDs follow breadth-first order, so the root is
// 0 and every parent precedes its children.
func build(root *versiontree.Node, version string) (*snapshot, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: empty version label", ErrInvalidTree)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrInvalidTree)
	}
	if root.Kind != KindModule {
		return nil, fmt.Errorf("%w: root %s is a %s, not a module", ErrInvalidTree, root.FullName, root.Kind)
	}

	type queued struct {
		raw    *versiontree.Node
		parent NodeID
	}
	var order []*versiontree.Node
	var parents []NodeID
	pos := make(map[*versiontree.Node]NodeID)
	queue := []queued{{raw: root, parent: NoNode}}
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		if _, dup := pos[q.raw]; dup {
			return nil, fmt.Errorf("%w: node %s reachable twice", ErrInvalidTree, q.raw.FullName)
		}
		id := NodeID(len(order))
		pos[q.raw] = id
		order = append(order, q.raw)
		parents = append(parents, q.parent)
		for _, c := range q.raw.Children {
			queue = append(queue, queued{raw: c, parent: id})
		}
	}

	t := newTree()
	t.nodes = make([]*Node, len(order))
	t.root = 0
	t.versions = []string{version}

	for i := len(order) - 1; i >= 0; i-- {
		raw := order[i]
		if !raw.Kind.Valid() {
			return nil, fmt.Errorf("%w: node %s has unknown kind %q", ErrInvalidTree, raw.FullName, raw.Kind)
		}
		if raw.Name == "" || raw.FullName == "" {
			return nil, fmt.Errorf("%w: unnamed node at position %d", ErrInvalidTree, i)
		}
		if p := parents[i]; p != NoNode && !order[p].Kind.IsContainer() {
			return nil, fmt.Errorf("%w: %s %s cannot hold children", ErrInvalidTree, order[p].Kind, order[p].FullName)
		}
		id := NodeID(i)
		n := newNode(id, raw.Name, raw.FullName, raw.Kind)
		n.versions = []string{version}
		if raw.Kind == KindAPI {
			n.signatures[version] = Signature{Params: slices.Clone(raw.Params), Defaults: slices.Clone(raw.Defaults)}
		}
		if raw.Kind.HasSource() {
			n.recordSource(version, Source{Path: raw.Source, DiffSize: NoPriorDiff})
		}
		t.nodes[i] = n
		// Deepest-first assignment leaves the first-seen node owning a
		// duplicated key.
		t.index[n.key()] = id
	}

	s := &snapshot{tree: t, version: version}
	for i := len(order) - 1; i >= 0; i-- {
		raw := order[i]
		n := t.nodes[i]
		n.parent = parents[i]
		n.children = make([]NodeID, len(raw.Children))
		for j, c := range raw.Children {
			n.children[j] = pos[c]
		}
		if !raw.Kind.IsAlias() {
			continue
		}
		e := pendingEdge{alias: NodeID(i), direct: NoNode}
		want := raw.Kind.TargetKind()
		switch {
		case raw.Target != nil:
			e.target = key{fullName: raw.Target.FullName, kind: want}
			if tid, ok := pos[raw.Target]; ok && raw.Target.Kind == want {
				e.direct = tid
			}
		case raw.TargetName != "":
			e.target = key{fullName: raw.TargetName, kind: want}
		}
		s.pending = append(s.pending, e)
	}
	// Edges were collected deepest-first; resolve them in tree order.
	slices.Reverse(s.pending)
	return s, nil
}

// Build creates an aggregated tree from a single version. The result is
// isomorphic to the version tree. On error no tree is returned.
func Build(root *versiontree.Node, version string, opts Options) (*Tree, *Report, error) {
	opts = opts.withDefaults()
	s, err := build(root, version)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", version, err)
	}
	t := s.tree
	report := &Report{Version: version, Added: t.Len()}

	for id, n := range t.nodes {
		if owner := s.owner(NodeID(id)); owner != NodeID(id) {
			opts.Logger.Debug("duplicate symbol, first occurrence wins",
				"full_name", n.fullName, "kind", n.kind, "version", version)
		}
	}

	for _, e := range s.pending {
		target := e.direct
		if target == NoNode {
			id, ok := t.index[e.target]
			if !ok {
				serr := unresolved(t.nodes[e.alias], version, e.target)
				if opts.Orphans == OrphanFail {
					return nil, nil, fmt.Errorf("build %s: %w", version, serr)
				}
				opts.Logger.Warn("alias left without target",
					"full_name", serr.FullName, "kind", serr.Kind, "version", version, "error", serr.Err)
				report.Errors = append(report.Errors, serr)
				continue
			}
			target = id
		}
		if err := t.setTarget(e.alias, target, version); err != nil {
			return nil, nil, fmt.Errorf("build %s: %w", version, err)
		}
	}
	return t, report, nil
}

func unresolved(alias *Node, version string, target key) *SymbolError {
	err := fmt.Errorf("%w: no %s named %q", ErrAliasTargetUnresolved, target.kind, target.fullName)
	if target.fullName == "" {
		err = fmt.Errorf("%w: alias names no target", ErrAliasTargetUnresolved)
	}
	return &SymbolError{FullName: alias.fullName, Kind: alias.kind, Version: version, Err: err}
}
