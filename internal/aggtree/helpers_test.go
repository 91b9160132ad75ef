package aggtree

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/apitrail/internal/versiontree"
)

// Version tree builders. Aliases name their target; Build and Merge resolve
// it by full name.

func mod(fullName string, children ...*versiontree.Node) *versiontree.Node {
	n := &versiontree.Node{Name: lastSegment(fullName), FullName: fullName, Kind: KindModule}
	for _, c := range children {
		n.AddChild(c)
	}
	return n
}

func class(fullName, source string, children ...*versiontree.Node) *versiontree.Node {
	n := mod(fullName, children...)
	n.Kind = KindClass
	n.Source = source
	return n
}

func api(fullName, source string, params []string, defaults ...string) *versiontree.Node {
	return &versiontree.Node{
		Name:     lastSegment(fullName),
		FullName: fullName,
		Kind:     KindAPI,
		Params:   params,
		Defaults: defaults,
		Source:   source,
	}
}

// ctor builds a class constructor, which shares the class's full name.
func ctor(classFullName string, params []string) *versiontree.Node {
	return api(classFullName, "", params)
}

func apiAlias(fullName, target string) *versiontree.Node {
	return &versiontree.Node{Name: lastSegment(fullName), FullName: fullName, Kind: KindAPIAlias, TargetName: target}
}

func classAlias(fullName, target string, children ...*versiontree.Node) *versiontree.Node {
	n := mod(fullName, children...)
	n.Kind = KindClassAlias
	n.TargetName = target
	return n
}

func lastSegment(fullName string) string {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '.' {
			return fullName[i+1:]
		}
	}
	return fullName
}

func lookup(t *testing.T, tree *Tree, fullName string, k Kind) *Node {
	t.Helper()
	n, ok := tree.Lookup(fullName, k)
	require.True(t, ok, "%s %s not in tree", k, fullName)
	return n
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func fold(t *testing.T, opts Options, versions ...labeled) *Tree {
	t.Helper()
	inputs := make([]VersionInput, len(versions))
	for i, v := range versions {
		inputs[i] = VersionInput{Label: v.label, Load: func() (*versiontree.Node, error) { return v.root, nil }}
	}
	res, err := Fold(inputs, opts)
	require.NoError(t, err)
	require.NoError(t, res.Tree.CheckAliases())
	return res.Tree
}

type labeled struct {
	label string
	root  *versiontree.Node
}

func v(label string, root *versiontree.Node) labeled { return labeled{label: label, root: root} }
