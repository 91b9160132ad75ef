package aggtree

import (
	"fmt"
	"slices"
)

// TargetAt returns the real node alias points to in version v.
func (t *Tree) TargetAt(alias NodeID, v string) (NodeID, bool) {
	id, ok := t.targets[alias][v]
	return id, ok
}

// TargetVersions lists the versions in which alias has a target, in fold
// order.
func (t *Tree) TargetVersions(alias NodeID) []string {
	var out []string
	for _, v := range t.versions {
		if _, ok := t.targets[alias][v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// AliasesAt returns the aliases that point to real in version v, ordered by
// ID.
func (t *Tree) AliasesAt(real NodeID, v string) []NodeID {
	set := t.fanIn[real][v]
	out := make([]NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AliasVersions lists the versions in which real has at least one alias, in
// fold order.
func (t *Tree) AliasVersions(real NodeID) []string {
	var out []string
	for _, v := range t.versions {
		if len(t.fanIn[real][v]) > 0 {
			out = append(out, v)
		}
	}
	return out
}

// setTarget points alias at target for version v. The alias leaves its
// previous target's fan-in for v before joining the new one.
func (t *Tree) setTarget(alias, target NodeID, v string) error {
	a, r := t.nodes[alias], t.nodes[target]
	if want := a.kind.TargetKind(); want == "" || r.kind != want {
		return fmt.Errorf("%w: %s %s cannot target %s %s",
			ErrTypeConflict, a.kind, a.fullName, r.kind, r.fullName)
	}

	byVersion := t.targets[alias]
	if byVersion == nil {
		byVersion = make(map[string]NodeID)
		t.targets[alias] = byVersion
	}
	if prev, ok := byVersion[v]; ok {
		if prev == target {
			return nil
		}
		t.removeFanIn(prev, v, alias)
	}
	byVersion[v] = target

	fan := t.fanIn[target]
	if fan == nil {
		fan = make(map[string]map[NodeID]struct{})
		t.fanIn[target] = fan
	}
	set := fan[v]
	if set == nil {
		set = make(map[NodeID]struct{})
		fan[v] = set
	}
	set[alias] = struct{}{}
	return nil
}

func (t *Tree) removeFanIn(real NodeID, v string, alias NodeID) {
	set := t.fanIn[real][v]
	delete(set, alias)
	if len(set) == 0 {
		delete(t.fanIn[real], v)
	}
}

// CheckAliases verifies the alias relation: every alias target is a real
// node of the matching kind and lists the alias in its fan-in for that
// version, and every fan-in entry points back at its holder.
func (t *Tree) CheckAliases() error {
	for alias, byVersion := range t.targets {
		a := t.nodes[alias]
		for v, target := range byVersion {
			r := t.nodes[target]
			if r.kind != a.kind.TargetKind() {
				return fmt.Errorf("alias %s targets %s %s in %s", a.fullName, r.kind, r.fullName, v)
			}
			if _, ok := t.fanIn[target][v][alias]; !ok {
				return fmt.Errorf("alias %s missing from fan-in of %s in %s", a.fullName, r.fullName, v)
			}
		}
	}
	for real, byVersion := range t.fanIn {
		for v, set := range byVersion {
			for alias := range set {
				if got, ok := t.targets[alias][v]; !ok || got != real {
					return fmt.Errorf("fan-in of %s lists %s in %s, which targets elsewhere",
						t.nodes[real].fullName, t.nodes[alias].fullName, v)
				}
			}
		}
	}
	return nil
}
