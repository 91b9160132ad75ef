package store

import (
	"time"

	"github.com/jward/apitrail/internal/aggtree"
)

// TreeInfo describes one stored aggregated tree.
type TreeInfo struct {
	ID           int64
	Library      string
	Root         string
	RunID        string
	Versions     []string
	InputHash    string
	AggregatedAt time.Time
	NodeCount    int
}

// LibraryTrees is everything persisted for one library in one commit.
type LibraryTrees struct {
	Library      string
	RunID        string
	InputHash    string
	AggregatedAt time.Time
	Trees        []*aggtree.Snapshot
}

// NodeRef locates a stored node.
type NodeRef struct {
	ID       int64
	TreeID   int64
	Library  string
	Root     string
	Name     string
	FullName string
	Kind     string
}

// SignatureRow is one stored per-version signature.
type SignatureRow struct {
	Version       string
	Params        []string
	Defaults      []string
	SignatureHash string
}
