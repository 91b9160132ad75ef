package aggtree

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jward/apitrail/internal/versiontree"
)

// Merge folds one more version into the tree.
//
// The version is first built on its own and its alias references detached
// to names. Each incoming node is then either absorbed into the node with
// the same (full name, kind), or grafted along its dotted path. A grafted
// alias resolves its target at once, grafting the target on demand; every
// remaining alias reference is resolved in a final pass against the merged
// tree, where persisting nodes win over incoming ones.
//
// Symbol-scoped failures are collected in the report. A returned error is
// fatal for the fold; the tree must not be used after it.
func (t *Tree) Merge(root *versiontree.Node, version string, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	if slices.Contains(t.versions, version) {
		return nil, fmt.Errorf("merge %s: %w", version, ErrVersionExists)
	}
	s, err := build(root, version)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", version, err)
	}
	if got, want := s.tree.Root().fullName, t.Root().fullName; got != want {
		return nil, fmt.Errorf("merge %s: %w: incoming root %q, tree root %q", version, ErrRootMismatch, got, want)
	}

	m := newMerger(t, s, opts)
	t.versions = append(t.versions, version)
	for id := range s.tree.nodes {
		m.place(NodeID(id))
		if m.fatal != nil {
			return nil, m.fatal
		}
	}
	for _, e := range s.pending {
		m.resolve(e)
		if m.fatal != nil {
			return nil, m.fatal
		}
	}
	return m.report, nil
}

type merger struct {
	t       *Tree
	s       *snapshot
	version string
	opts    Options
	report  *Report

	// mapped[i] is the tree node that snapshot node i became, or NoNode.
	mapped   []NodeID
	done     []bool
	failures map[NodeID]error
	edges    map[NodeID]pendingEdge
	linked   map[NodeID]bool
	fatal    error
}

func newMerger(t *Tree, s *snapshot, opts Options) *merger {
	m := &merger{
		t:        t,
		s:        s,
		version:  s.version,
		opts:     opts,
		report:   &Report{Version: s.version},
		mapped:   make([]NodeID, s.tree.Len()),
		done:     make([]bool, s.tree.Len()),
		failures: make(map[NodeID]error),
		edges:    make(map[NodeID]pendingEdge, len(s.pending)),
		linked:   make(map[NodeID]bool),
	}
	for i := range m.mapped {
		m.mapped[i] = NoNode
	}
	for _, e := range s.pending {
		m.edges[e.alias] = e
	}
	return m
}

// place absorbs or grafts snapshot node id, once.
func (m *merger) place(id NodeID) {
	if m.done[id] || m.fatal != nil {
		return
	}
	m.done[id] = true
	sn := m.s.tree.nodes[id]

	if owner := m.s.owner(id); owner != id {
		m.place(owner)
		m.mapped[id] = m.mapped[owner]
		m.opts.Logger.Debug("duplicate symbol, first occurrence wins",
			"full_name", sn.fullName, "kind", sn.kind, "version", m.version)
		return
	}

	if tid, ok := m.t.index[sn.key()]; ok {
		m.absorb(tid, sn)
		m.mapped[id] = tid
		return
	}

	tid, err := m.graft(id)
	if err != nil {
		m.fail(id, err)
		return
	}
	m.mapped[id] = tid
	m.report.Added++

	if e, ok := m.edges[id]; ok {
		m.resolve(e)
	}
}

// absorb records version data from an incoming node onto an existing one.
func (m *merger) absorb(tid NodeID, sn *Node) {
	n := m.t.nodes[tid]
	n.addVersion(m.version)
	if sig, ok := sn.signatures[m.version]; ok {
		n.signatures[m.version] = sig.clone()
	}
	if src, ok := sn.sources[m.version]; ok {
		diff := NoPriorDiff
		if prev, ok := n.latestSource(); ok {
			diff = m.opts.Differ.Size(prev.Path, src.Path)
		}
		n.recordSource(m.version, Source{Path: src.Path, DiffSize: diff})
	}
	m.report.Updated++
}

// graft attaches a new node under the container its dotted path names,
// synthesizing missing module segments.
func (m *merger) graft(id NodeID) (NodeID, error) {
	sn := m.s.tree.nodes[id]
	if p := sn.parent; p != NoNode {
		m.place(p)
		if m.mapped[p] == NoNode {
			return NoNode, fmt.Errorf("%w: parent %s was not merged", ErrMissingAncestor, m.s.tree.nodes[p].fullName)
		}
	}

	parent, err := m.walk(sn)
	if err != nil {
		return NoNode, err
	}
	tid := m.t.addNode(sn.name, sn.fullName, sn.kind, parent)
	n := m.t.nodes[tid]
	n.versions = []string{m.version}
	if sig, ok := sn.signatures[m.version]; ok {
		n.signatures[m.version] = sig.clone()
	}
	if src, ok := sn.sources[m.version]; ok {
		n.recordSource(m.version, Source{Path: src.Path, DiffSize: NoPriorDiff})
	}
	m.t.register(tid)
	return tid, nil
}

// walk finds the container a node with sn's full name attaches to.
func (m *merger) walk(sn *Node) (NodeID, error) {
	t := m.t
	segs := strings.Split(sn.fullName, ".")
	root := t.Root()
	if segs[0] != root.name {
		return NoNode, fmt.Errorf("%w: %s is outside root %s", ErrMissingAncestor, sn.fullName, root.name)
	}
	if len(segs) == 1 {
		return NoNode, fmt.Errorf("%w: %s %s collides with the root module", ErrTypeConflict, sn.kind, sn.fullName)
	}

	cur := t.root
	for i := 1; i < len(segs)-1; i++ {
		next, blocker := t.containerChild(cur, segs[i])
		if next != NoNode {
			cur = next
			continue
		}
		prefix := strings.Join(segs[:i+1], ".")
		if blocker != NoNode {
			return NoNode, fmt.Errorf("%w: path segment %s is a %s", ErrTypeConflict, prefix, t.nodes[blocker].kind)
		}
		if t.nodes[cur].kind != KindModule {
			return NoNode, fmt.Errorf("%w: no %s under %s %s", ErrMissingAncestor, prefix, t.nodes[cur].kind, t.nodes[cur].fullName)
		}
		cur = m.synthesize(cur, segs[i], prefix)
	}

	last := segs[len(segs)-1]
	for _, c := range t.nodes[cur].children {
		cn := t.nodes[c]
		if cn.name != last {
			continue
		}
		if ownsConstructor(cn.kind, sn.kind) {
			return c, nil
		}
		if family(cn.kind) != family(sn.kind) {
			return NoNode, fmt.Errorf("%w: %s already exists as a %s", ErrTypeConflict, cn.fullName, cn.kind)
		}
	}
	return cur, nil
}

// containerChild returns the first child of parent named name that can hold
// children. When only non-containers carry the name, the first of them is
// returned as blocker.
func (t *Tree) containerChild(parent NodeID, name string) (next, blocker NodeID) {
	next, blocker = NoNode, NoNode
	for _, c := range t.nodes[parent].children {
		cn := t.nodes[c]
		if cn.name != name {
			continue
		}
		if cn.kind.IsContainer() {
			return c, NoNode
		}
		if blocker == NoNode {
			blocker = c
		}
	}
	return NoNode, blocker
}

func (m *merger) synthesize(parent NodeID, name, fullName string) NodeID {
	id := m.t.addNode(name, fullName, KindModule, parent)
	m.t.nodes[id].versions = []string{m.version}
	m.t.register(id)
	m.report.Added++
	m.opts.Logger.Debug("synthesized module", "full_name", fullName, "version", m.version)
	return id
}

// resolve links one detached alias edge. Targets are looked up in the
// merged tree first; a target that only exists in the incoming version is
// grafted on demand.
func (m *merger) resolve(e pendingEdge) {
	if m.fatal != nil || m.linked[e.alias] {
		return
	}
	if m.s.owner(e.alias) != e.alias {
		return
	}
	aid := m.mapped[e.alias]
	if aid == NoNode {
		return
	}
	m.linked[e.alias] = true

	tid, ok := m.t.index[e.target]
	if !ok {
		sid, inSnapshot := m.s.tree.index[e.target]
		if !inSnapshot {
			m.orphan(e.alias, unresolved(m.t.nodes[aid], m.version, e.target))
			return
		}
		m.place(sid)
		if m.fatal != nil {
			return
		}
		if tid = m.mapped[sid]; tid == NoNode {
			cause := m.failures[sid]
			if cause == nil {
				cause = errors.New("target was not merged")
			}
			m.orphan(e.alias, &SymbolError{
				FullName: m.t.nodes[aid].fullName,
				Kind:     m.t.nodes[aid].kind,
				Version:  m.version,
				Err:      fmt.Errorf("%w: target %s: %w", ErrMissingAncestor, e.target.fullName, cause),
			})
			return
		}
	}
	if err := m.t.setTarget(aid, tid, m.version); err != nil {
		m.fail(e.alias, err)
	}
}

func (m *merger) orphan(alias NodeID, serr *SymbolError) {
	if m.opts.Orphans == OrphanFail {
		m.fatal = fmt.Errorf("merge %s: %w", m.version, serr)
		return
	}
	m.opts.Logger.Warn("alias left without target",
		"full_name", serr.FullName, "kind", serr.Kind, "version", m.version, "error", serr.Err)
	m.report.Errors = append(m.report.Errors, serr)
}

func (m *merger) fail(id NodeID, err error) {
	sn := m.s.tree.nodes[id]
	m.failures[id] = err
	serr := &SymbolError{FullName: sn.fullName, Kind: sn.kind, Version: m.version, Err: err}
	m.opts.Logger.Warn("symbol skipped",
		"full_name", sn.fullName, "kind", sn.kind, "version", m.version, "error", err)
	m.report.Errors = append(m.report.Errors, serr)
}
