package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/apitrail/internal/aggtree"
)

const treeColumns = `t.id, t.library, t.root, t.run_id, t.versions, t.input_hash, t.aggregated_at,
	(SELECT COUNT(*) FROM nodes n WHERE n.tree_id = t.id)`

func scanTree(sc interface{ Scan(...any) error }) (*TreeInfo, error) {
	ti := &TreeInfo{}
	var versions string
	var inputHash sql.NullString
	var aggregatedAt sql.NullTime
	if err := sc.Scan(&ti.ID, &ti.Library, &ti.Root, &ti.RunID, &versions, &inputHash, &aggregatedAt, &ti.NodeCount); err != nil {
		return nil, err
	}
	ti.Versions = unmarshalStrings(versions)
	ti.InputHash = inputHash.String
	ti.AggregatedAt = aggregatedAt.Time
	return ti, nil
}

// Trees lists stored trees ordered by library and root. An empty library
// lists all of them.
func (s *Store) Trees(library string) ([]*TreeInfo, error) {
	q := "SELECT " + treeColumns + " FROM trees t"
	var args []any
	if library != "" {
		q += " WHERE t.library = ?"
		args = append(args, library)
	}
	q += " ORDER BY t.library, t.root"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("trees: %w", err)
	}
	defer rows.Close()
	var out []*TreeInfo
	for rows.Next() {
		ti, err := scanTree(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tree: %w", err)
		}
		out = append(out, ti)
	}
	return out, rows.Err()
}

// TreeByRoot returns the stored tree for (library, root), or nil.
func (s *Store) TreeByRoot(library, root string) (*TreeInfo, error) {
	ti, err := scanTree(s.db.QueryRow(
		"SELECT "+treeColumns+" FROM trees t WHERE t.library = ? AND t.root = ?", library, root,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tree by root: %w", err)
	}
	return ti, nil
}

// LibraryInputHash returns the input hash recorded for library, or "" when
// the library has not been stored.
func (s *Store) LibraryInputHash(library string) (string, error) {
	var h sql.NullString
	err := s.db.QueryRow("SELECT input_hash FROM trees WHERE library = ? LIMIT 1", library).Scan(&h)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("library input hash: %w", err)
	}
	return h.String, nil
}

// LoadTree reads a stored tree back into snapshot form. Row IDs are mapped
// to dense arena IDs in insertion order. Returns nil when the tree does not
// exist.
func (s *Store) LoadTree(treeID int64) (*aggtree.Snapshot, error) {
	var root, versions string
	err := s.db.QueryRow("SELECT root, versions FROM trees WHERE id = ?", treeID).Scan(&root, &versions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	snap := &aggtree.Snapshot{Root: root, Versions: unmarshalStrings(versions)}

	rowToArena := make(map[int64]aggtree.NodeID)
	rows, err := s.db.Query(
		"SELECT id, parent_id, name, full_name, kind FROM nodes WHERE tree_id = ? ORDER BY id", treeID,
	)
	if err != nil {
		return nil, fmt.Errorf("load tree: nodes: %w", err)
	}
	for rows.Next() {
		var id int64
		var parent sql.NullInt64
		var rec aggtree.NodeRecord
		var kind string
		if err := rows.Scan(&id, &parent, &rec.Name, &rec.FullName, &kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("load tree: scan node: %w", err)
		}
		rec.ID = aggtree.NodeID(len(snap.Nodes))
		rec.Kind = aggtree.Kind(kind)
		rec.Parent = aggtree.NoNode
		if parent.Valid {
			p, ok := rowToArena[parent.Int64]
			if !ok {
				rows.Close()
				return nil, fmt.Errorf("load tree: node %s has unknown parent %d", rec.FullName, parent.Int64)
			}
			rec.Parent = p
		}
		rowToArena[id] = rec.ID
		snap.Nodes = append(snap.Nodes, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load tree: nodes: %w", err)
	}

	if err := s.loadNodeVersions(treeID, snap, rowToArena); err != nil {
		return nil, err
	}
	if err := s.loadSignatures(treeID, snap, rowToArena); err != nil {
		return nil, err
	}
	if err := s.loadSources(treeID, snap, rowToArena); err != nil {
		return nil, err
	}
	if err := s.loadAliasTargets(treeID, snap, rowToArena); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadNodeVersions(treeID int64, snap *aggtree.Snapshot, rowToArena map[int64]aggtree.NodeID) error {
	rows, err := s.db.Query(
		`SELECT v.node_id, v.version FROM node_versions v
		 JOIN nodes n ON n.id = v.node_id WHERE n.tree_id = ? ORDER BY v.node_id, v.ordinal`, treeID,
	)
	if err != nil {
		return fmt.Errorf("load tree: versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nodeID int64
		var v string
		if err := rows.Scan(&nodeID, &v); err != nil {
			return fmt.Errorf("load tree: scan version: %w", err)
		}
		rec := &snap.Nodes[rowToArena[nodeID]]
		rec.Versions = append(rec.Versions, v)
	}
	return rows.Err()
}

func (s *Store) loadSignatures(treeID int64, snap *aggtree.Snapshot, rowToArena map[int64]aggtree.NodeID) error {
	rows, err := s.db.Query(
		`SELECT g.node_id, g.version, g.params, g.defaults FROM signatures g
		 JOIN nodes n ON n.id = g.node_id WHERE n.tree_id = ? ORDER BY g.node_id, g.ordinal`, treeID,
	)
	if err != nil {
		return fmt.Errorf("load tree: signatures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nodeID int64
		var v, params, defaults string
		if err := rows.Scan(&nodeID, &v, &params, &defaults); err != nil {
			return fmt.Errorf("load tree: scan signature: %w", err)
		}
		rec := &snap.Nodes[rowToArena[nodeID]]
		rec.Signatures = append(rec.Signatures, aggtree.SignatureRecord{
			Version:  v,
			Params:   unmarshalStrings(params),
			Defaults: unmarshalStrings(defaults),
		})
	}
	return rows.Err()
}

func (s *Store) loadSources(treeID int64, snap *aggtree.Snapshot, rowToArena map[int64]aggtree.NodeID) error {
	rows, err := s.db.Query(
		`SELECT s.node_id, s.version, s.path, s.diff_size FROM sources s
		 JOIN nodes n ON n.id = s.node_id WHERE n.tree_id = ? ORDER BY s.node_id, s.ordinal`, treeID,
	)
	if err != nil {
		return fmt.Errorf("load tree: sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nodeID int64
		var src aggtree.SourceRecord
		if err := rows.Scan(&nodeID, &src.Version, &src.Path, &src.DiffSize); err != nil {
			return fmt.Errorf("load tree: scan source: %w", err)
		}
		rec := &snap.Nodes[rowToArena[nodeID]]
		rec.Sources = append(rec.Sources, src)
	}
	return rows.Err()
}

func (s *Store) loadAliasTargets(treeID int64, snap *aggtree.Snapshot, rowToArena map[int64]aggtree.NodeID) error {
	rows, err := s.db.Query(
		`SELECT a.alias_id, a.version, a.target_id FROM alias_targets a
		 JOIN nodes n ON n.id = a.alias_id WHERE n.tree_id = ? ORDER BY a.alias_id, a.rowid`, treeID,
	)
	if err != nil {
		return fmt.Errorf("load tree: alias targets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var aliasID, targetID int64
		var v string
		if err := rows.Scan(&aliasID, &v, &targetID); err != nil {
			return fmt.Errorf("load tree: scan alias target: %w", err)
		}
		target, ok := rowToArena[targetID]
		if !ok {
			return fmt.Errorf("load tree: alias target %d outside tree", targetID)
		}
		snap.Targets = append(snap.Targets, aggtree.TargetRecord{
			Alias: rowToArena[aliasID], Version: v, Target: target,
		})
	}
	return rows.Err()
}

// NodesByFullName finds stored nodes named fullName across all libraries.
func (s *Store) NodesByFullName(fullName string) ([]*NodeRef, error) {
	rows, err := s.db.Query(
		`SELECT n.id, n.tree_id, t.library, t.root, n.name, n.full_name, n.kind
		 FROM nodes n JOIN trees t ON t.id = n.tree_id
		 WHERE n.full_name = ? ORDER BY t.library, t.root, n.id`, fullName,
	)
	if err != nil {
		return nil, fmt.Errorf("nodes by full name: %w", err)
	}
	defer rows.Close()
	var out []*NodeRef
	for rows.Next() {
		r := &NodeRef{}
		if err := rows.Scan(&r.ID, &r.TreeID, &r.Library, &r.Root, &r.Name, &r.FullName, &r.Kind); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SignatureRows returns the stored signatures of a node in recording order.
func (s *Store) SignatureRows(nodeID int64) ([]*SignatureRow, error) {
	rows, err := s.db.Query(
		`SELECT version, params, defaults, signature_hash FROM signatures
		 WHERE node_id = ? ORDER BY ordinal`, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("signature rows: %w", err)
	}
	defer rows.Close()
	var out []*SignatureRow
	for rows.Next() {
		r := &SignatureRow{}
		var params, defaults string
		if err := rows.Scan(&r.Version, &params, &defaults, &r.SignatureHash); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		r.Params = unmarshalStrings(params)
		r.Defaults = unmarshalStrings(defaults)
		out = append(out, r)
	}
	return out, rows.Err()
}
