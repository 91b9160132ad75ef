// Package apitrail aggregates per-version Python API trees into one
// aggregated tree per root package. Every node of an aggregated tree records
// the versions it appears in, its per-version signature (parameter names and
// default values), its per-version source snapshot with a line-level diff
// size against the previous snapshot, and its per-version alias relation.
//
// # Pipeline
//
//  1. Extract (optional): internal/extract walks a Python package with
//     tree-sitter and writes one version tree file per root package.
//
//  2. Aggregate: for each library, versions are sorted by precedence and
//     folded oldest to newest. The first version builds the tree; every later
//     version is merged into it. Symbols seen before gain the version; new
//     symbols are grafted under their dotted path.
//
//  3. Persist: a library's trees are written to SQLite in one transaction,
//     replacing whatever was stored before.
//
// # Usage
//
//	e, err := apitrail.New("apitrail.db", apitrail.WithLogger(logger))
//	if err != nil { ... }
//	defer e.Close()
//
//	results, err := e.AggregateDirectory(ctx, "trees")
//
//	q := e.Query()
//	hist, err := q.History("requests", "requests", "requests.get")
//
// # Input layout
//
// AggregateDirectory expects <dir>/<library>/<version>/<package>.json. Each
// file is a version tree in the JSON format of internal/versiontree. A
// library whose files are byte-identical to the last run is skipped unless
// [WithForce] is set.
//
// # Errors
//
// Failures local to one symbol (a missing ancestor, a category conflict, an
// unresolvable alias target) are reported in [TreeResult.SymbolErrors] and
// the rest of the version merges normally. A root name mismatch or a
// repeated version label aborts the library and nothing is written for it.
package apitrail
