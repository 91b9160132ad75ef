package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/apitrail/internal/aggtree"
)

// SaveLibrary replaces every stored tree of lib.Library with lib.Trees in a
// single transaction. Arena node IDs are remapped to row IDs as nodes are
// inserted; parents precede children in a snapshot, so every parent_id and
// alias edge refers to a row inserted earlier in the same transaction.
//
// Insert order per tree:
//  1. Tree row
//  2. Nodes, with their versions, signatures and sources
//  3. Alias targets (both ends are nodes of the same tree)
func (s *Store) SaveLibrary(lib *LibraryTrees) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save library: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteLibraryTx(tx, lib.Library); err != nil {
		return fmt.Errorf("save library: %w", err)
	}

	for _, snap := range lib.Trees {
		treeID, err := insertTreeTx(tx, lib, snap)
		if err != nil {
			return fmt.Errorf("save library %s: tree %s: %w", lib.Library, snap.Root, err)
		}

		arenaToRow := make([]int64, len(snap.Nodes))
		for i := range snap.Nodes {
			rec := &snap.Nodes[i]
			var parentID *int64
			if rec.Parent != aggtree.NoNode {
				if int(rec.Parent) >= i {
					return fmt.Errorf("save library %s: node %s: parent %d not yet inserted", lib.Library, rec.FullName, rec.Parent)
				}
				parentID = &arenaToRow[rec.Parent]
			}
			rowID, err := insertNodeTx(tx, treeID, parentID, rec)
			if err != nil {
				return fmt.Errorf("save library %s: node %s: %w", lib.Library, rec.FullName, err)
			}
			arenaToRow[i] = rowID
		}

		for _, e := range snap.Targets {
			if int(e.Alias) >= len(arenaToRow) || int(e.Target) >= len(arenaToRow) || e.Alias < 0 || e.Target < 0 {
				return fmt.Errorf("save library %s: alias edge %d -> %d out of range", lib.Library, e.Alias, e.Target)
			}
			if _, err := tx.Exec(
				"INSERT INTO alias_targets (alias_id, version, target_id) VALUES (?, ?, ?)",
				arenaToRow[e.Alias], e.Version, arenaToRow[e.Target],
			); err != nil {
				return fmt.Errorf("save library %s: alias target: %w", lib.Library, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save library: commit: %w", err)
	}
	return nil
}

func insertTreeTx(tx *sql.Tx, lib *LibraryTrees, snap *aggtree.Snapshot) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO trees (library, root, run_id, versions, input_hash, aggregated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		lib.Library, snap.Root, lib.RunID, marshalStrings(snap.Versions), lib.InputHash, lib.AggregatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertNodeTx(tx *sql.Tx, treeID int64, parentID *int64, rec *aggtree.NodeRecord) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO nodes (tree_id, parent_id, name, full_name, kind) VALUES (?, ?, ?, ?, ?)",
		treeID, parentID, rec.Name, rec.FullName, string(rec.Kind),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, v := range rec.Versions {
		if _, err := tx.Exec(
			"INSERT INTO node_versions (node_id, version, ordinal) VALUES (?, ?, ?)", id, v, i,
		); err != nil {
			return 0, fmt.Errorf("version %s: %w", v, err)
		}
	}
	for i, sig := range rec.Signatures {
		hash := ComputeSignatureHash(rec.Name, string(rec.Kind), sig.Params, sig.Defaults)
		if _, err := tx.Exec(
			`INSERT INTO signatures (node_id, version, ordinal, params, defaults, signature_hash)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, sig.Version, i, marshalStrings(sig.Params), marshalStrings(sig.Defaults), hash,
		); err != nil {
			return 0, fmt.Errorf("signature %s: %w", sig.Version, err)
		}
	}
	for i, src := range rec.Sources {
		if _, err := tx.Exec(
			"INSERT INTO sources (node_id, version, ordinal, path, diff_size) VALUES (?, ?, ?, ?, ?)",
			id, src.Version, i, src.Path, src.DiffSize,
		); err != nil {
			return 0, fmt.Errorf("source %s: %w", src.Version, err)
		}
	}
	return id, nil
}
