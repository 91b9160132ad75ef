package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISymbolError is a symbol that could not be merged in one version.
type CLISymbolError struct {
	FullName string `json:"full_name"`
	Kind     string `json:"kind"`
	Version  string `json:"version"`
	Error    string `json:"error"`
}

// CLITreeResult summarises one folded package.
type CLITreeResult struct {
	Root            string           `json:"root"`
	Versions        []string         `json:"versions"`
	Nodes           int              `json:"nodes"`
	SkippedVersions []string         `json:"skipped_versions,omitempty"`
	SymbolErrors    []CLISymbolError `json:"symbol_errors,omitempty"`
}

// CLILibraryResult summarises one library's aggregation.
type CLILibraryResult struct {
	Library   string          `json:"library"`
	RunID     string          `json:"run_id,omitempty"`
	Unchanged bool            `json:"unchanged"`
	Trees     []CLITreeResult `json:"trees"`
}

// CLIExtracted is one version tree file written by extract.
type CLIExtracted struct {
	Package string `json:"package"`
	File    string `json:"file"`
}

// CLITree is a JSON-friendly stored tree.
type CLITree struct {
	ID           int64    `json:"id"`
	Library      string   `json:"library"`
	Root         string   `json:"root"`
	RunID        string   `json:"run_id"`
	Versions     []string `json:"versions"`
	NodeCount    int      `json:"node_count"`
	AggregatedAt string   `json:"aggregated_at"`
}

// CLINode is a JSON-friendly stored node.
type CLINode struct {
	ID           int64  `json:"id"`
	Library      string `json:"library"`
	Root         string `json:"root"`
	Name         string `json:"name"`
	FullName     string `json:"full_name"`
	Kind         string `json:"kind"`
	ParentID     *int64 `json:"parent_id,omitempty"`
	VersionCount int    `json:"version_count,omitempty"`
	FirstVersion string `json:"first_version,omitempty"`
	LastVersion  string `json:"last_version,omitempty"`
}

// CLIVersionEntry is one version of a node's history.
type CLIVersionEntry struct {
	Version       string   `json:"version"`
	Params        []string `json:"params,omitempty"`
	Defaults      []string `json:"defaults,omitempty"`
	SignatureHash string   `json:"signature_hash,omitempty"`
	Source        string   `json:"source,omitempty"`
	DiffSize      *int     `json:"diff_size,omitempty"`
	Target        string   `json:"target,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// CLIHistory is a JSON-friendly node history.
type CLIHistory struct {
	Name     string            `json:"name"`
	FullName string            `json:"full_name"`
	Kind     string            `json:"kind"`
	Versions []CLIVersionEntry `json:"versions"`
}

// CLITreeSummary is a JSON-friendly per-tree digest.
type CLITreeSummary struct {
	Root       string         `json:"root"`
	Versions   []string       `json:"versions"`
	NodeCount  int            `json:"node_count"`
	KindCounts map[string]int `json:"kind_counts"`
	AliasEdges int            `json:"alias_edges"`
}

// CLILibrarySummary is a JSON-friendly library digest.
type CLILibrarySummary struct {
	Library string           `json:"library"`
	RunID   string           `json:"run_id"`
	Trees   []CLITreeSummary `json:"trees"`
}

// CLIDiff is the source change of one node between two versions.
type CLIDiff struct {
	FullName string `json:"full_name"`
	Kind     string `json:"kind"`
	From     string `json:"from"`
	To       string `json:"to"`
	Lines    int    `json:"lines"`
	Patch    string `json:"patch"`
}
