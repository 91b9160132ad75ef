package apitrail

import (
	"github.com/jward/apitrail/internal/aggtree"
	"github.com/jward/apitrail/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder API.

type Store = store.Store
type TreeInfo = store.TreeInfo
type NodeRef = store.NodeRef
type Tree = aggtree.Tree
type Node = aggtree.Node
type NodeID = aggtree.NodeID
type Kind = aggtree.Kind
type Snapshot = aggtree.Snapshot
type SymbolError = aggtree.SymbolError
type OrphanPolicy = aggtree.OrphanPolicy

const (
	OrphanKeep = aggtree.OrphanKeep
	OrphanFail = aggtree.OrphanFail
)

// LibraryResult summarises one library's aggregation run.
type LibraryResult struct {
	Library string
	RunID   string
	// Unchanged is set when the input fingerprint matched the stored one
	// and nothing was folded.
	Unchanged bool
	Trees     []TreeResult
}

// TreeResult summarises the fold of one root package.
type TreeResult struct {
	Root            string
	Versions        []string
	Nodes           int
	SkippedVersions []string
	SymbolErrors    []*SymbolError
}
