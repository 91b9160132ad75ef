package versiontree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileNode is the JSON shape of a Node.
type fileNode struct {
	Name     string      `json:"name"`
	FullName string      `json:"full_name"`
	Kind     string      `json:"kind"`
	Params   []string    `json:"params,omitempty"`
	Defaults []string    `json:"defaults,omitempty"`
	Source   string      `json:"source,omitempty"`
	Target   string      `json:"target,omitempty"`
	Children []*fileNode `json:"children,omitempty"`
}

type targetKey struct {
	fullName string
	kind     Kind
}

// Load reads a version tree from a JSON file. Relative source paths are
// resolved against the file's directory, and alias targets are linked to
// the real node of the matching kind within the same tree.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read version tree: %w", err)
	}
	root, err := Decode(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("version tree %s: %w", path, err)
	}
	return root, nil
}

// Decode parses a JSON version tree. baseDir, when non-empty, anchors
// relative source paths.
func Decode(data []byte, baseDir string) (*Node, error) {
	var fn fileNode
	if err := json.Unmarshal(data, &fn); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	index := make(map[targetKey]*Node)
	var aliases []*Node
	var convert func(f *fileNode, parent *Node) (*Node, error)
	convert = func(f *fileNode, parent *Node) (*Node, error) {
		kind, err := ParseKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", f.FullName, err)
		}
		if f.Name == "" || f.FullName == "" {
			return nil, fmt.Errorf("node %q: name and full_name are required", f.FullName)
		}
		n := &Node{
			Name:       f.Name,
			FullName:   f.FullName,
			Kind:       kind,
			Params:     f.Params,
			Defaults:   f.Defaults,
			Source:     f.Source,
			TargetName: f.Target,
		}
		if n.Source != "" && baseDir != "" && !filepath.IsAbs(n.Source) {
			n.Source = filepath.Join(baseDir, n.Source)
		}
		if parent != nil {
			parent.AddChild(n)
		}
		k := targetKey{n.FullName, kind}
		if _, ok := index[k]; !ok {
			index[k] = n
		}
		if kind.IsAlias() && f.Target != "" {
			aliases = append(aliases, n)
		}
		for _, c := range f.Children {
			if _, err := convert(c, n); err != nil {
				return nil, err
			}
		}
		return n, nil
	}

	root, err := convert(&fn, nil)
	if err != nil {
		return nil, err
	}
	if root.Kind != KindModule {
		return nil, fmt.Errorf("root %q must be a module, got %s", root.FullName, root.Kind)
	}

	for _, a := range aliases {
		if t, ok := index[targetKey{a.TargetName, a.Kind.TargetKind()}]; ok {
			Link(a, t)
		}
	}
	return root, nil
}

// Encode renders root as indented JSON. Source paths are written relative
// to baseDir when possible.
func Encode(root *Node, baseDir string) ([]byte, error) {
	var convert func(n *Node) *fileNode
	convert = func(n *Node) *fileNode {
		f := &fileNode{
			Name:     n.Name,
			FullName: n.FullName,
			Kind:     string(n.Kind),
			Params:   n.Params,
			Defaults: n.Defaults,
			Source:   n.Source,
		}
		if baseDir != "" && f.Source != "" {
			if rel, err := filepath.Rel(baseDir, f.Source); err == nil {
				f.Source = filepath.ToSlash(rel)
			}
		}
		if n.Kind.IsAlias() {
			if n.Target != nil {
				f.Target = n.Target.FullName
			} else {
				f.Target = n.TargetName
			}
		}
		for _, c := range n.Children {
			f.Children = append(f.Children, convert(c))
		}
		return f
	}
	return json.MarshalIndent(convert(root), "", "  ")
}

// Save writes root to path as JSON, creating parent directories.
func Save(path string, root *Node) error {
	data, err := Encode(root, filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("encode version tree: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write version tree: %w", err)
	}
	return nil
}
