package aggtree

import (
	"fmt"
	"slices"
)

// Snapshot is the flat, serializable form of a Tree. Nodes appear in ID
// order and every parent precedes its children, so child order is the
// order of appearance.
type Snapshot struct {
	Root     string         `json:"root"`
	Versions []string       `json:"versions"`
	Nodes    []NodeRecord   `json:"nodes"`
	Targets  []TargetRecord `json:"alias_targets,omitempty"`
}

// NodeRecord is one node of a Snapshot.
type NodeRecord struct {
	ID         NodeID            `json:"id"`
	Parent     NodeID            `json:"parent"`
	Name       string            `json:"name"`
	FullName   string            `json:"full_name"`
	Kind       Kind              `json:"kind"`
	Versions   []string          `json:"versions"`
	Signatures []SignatureRecord `json:"signatures,omitempty"`
	Sources    []SourceRecord    `json:"sources,omitempty"`
}

// SignatureRecord is a Signature keyed by version.
type SignatureRecord struct {
	Version  string   `json:"version"`
	Params   []string `json:"params"`
	Defaults []string `json:"defaults"`
}

// SourceRecord is a Source keyed by version, in recording order.
type SourceRecord struct {
	Version  string `json:"version"`
	Path     string `json:"path"`
	DiffSize int    `json:"diff_size"`
}

// TargetRecord is one alias edge.
type TargetRecord struct {
	Alias   NodeID `json:"alias"`
	Version string `json:"version"`
	Target  NodeID `json:"target"`
}

// Export flattens the tree. Fan-in sets are implied by the targets.
func (t *Tree) Export() *Snapshot {
	s := &Snapshot{
		Root:     t.Root().fullName,
		Versions: slices.Clone(t.versions),
		Nodes:    make([]NodeRecord, len(t.nodes)),
	}
	for i, n := range t.nodes {
		rec := NodeRecord{
			ID:       n.id,
			Parent:   n.parent,
			Name:     n.name,
			FullName: n.fullName,
			Kind:     n.kind,
			Versions: slices.Clone(n.versions),
		}
		for _, v := range n.SignatureVersions() {
			sig := n.signatures[v]
			rec.Signatures = append(rec.Signatures, SignatureRecord{
				Version: v, Params: slices.Clone(sig.Params), Defaults: slices.Clone(sig.Defaults),
			})
		}
		for _, v := range n.sourceOrder {
			src := n.sources[v]
			rec.Sources = append(rec.Sources, SourceRecord{Version: v, Path: src.Path, DiffSize: src.DiffSize})
		}
		s.Nodes[i] = rec

		if n.kind.IsAlias() {
			for _, v := range t.TargetVersions(n.id) {
				s.Targets = append(s.Targets, TargetRecord{Alias: n.id, Version: v, Target: t.targets[n.id][v]})
			}
		}
	}
	return s
}

// Restore rebuilds a Tree from a Snapshot. Fan-in sets are rebuilt through
// the alias resolver, so a restored tree satisfies CheckAliases.
func Restore(s *Snapshot) (*Tree, error) {
	if len(s.Nodes) == 0 {
		return nil, fmt.Errorf("restore: empty snapshot")
	}
	t := newTree()
	t.root = 0
	t.versions = slices.Clone(s.Versions)
	for i, rec := range s.Nodes {
		id := NodeID(i)
		if rec.ID != id {
			return nil, fmt.Errorf("restore: node %d has id %d", i, rec.ID)
		}
		if !rec.Kind.Valid() {
			return nil, fmt.Errorf("restore: node %s has unknown kind %q", rec.FullName, rec.Kind)
		}
		switch {
		case i == 0 && rec.Parent != NoNode:
			return nil, fmt.Errorf("restore: root %s has a parent", rec.FullName)
		case i == 0 && rec.Kind != KindModule:
			return nil, fmt.Errorf("restore: root %s is a %s", rec.FullName, rec.Kind)
		case i > 0 && (rec.Parent < 0 || rec.Parent >= id):
			return nil, fmt.Errorf("restore: node %s has parent %d", rec.FullName, rec.Parent)
		case i > 0 && !t.nodes[rec.Parent].kind.IsContainer():
			return nil, fmt.Errorf("restore: node %s is under a %s", rec.FullName, t.nodes[rec.Parent].kind)
		}

		t.addNode(rec.Name, rec.FullName, rec.Kind, rec.Parent)
		n := t.nodes[id]
		n.versions = slices.Clone(rec.Versions)
		for _, sig := range rec.Signatures {
			n.signatures[sig.Version] = Signature{Params: slices.Clone(sig.Params), Defaults: slices.Clone(sig.Defaults)}
		}
		for _, src := range rec.Sources {
			n.recordSource(src.Version, Source{Path: src.Path, DiffSize: src.DiffSize})
		}
		t.register(id)
	}
	if t.Root().fullName != s.Root {
		return nil, fmt.Errorf("restore: root is %s, snapshot names %s", t.Root().fullName, s.Root)
	}
	for _, e := range s.Targets {
		if t.Node(e.Alias) == nil || t.Node(e.Target) == nil {
			return nil, fmt.Errorf("restore: alias edge %d -> %d out of range", e.Alias, e.Target)
		}
		if err := t.setTarget(e.Alias, e.Target, e.Version); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	return t, nil
}
