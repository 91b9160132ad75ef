package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for aggregated API trees.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS trees (
  id              INTEGER PRIMARY KEY,
  library         TEXT NOT NULL,
  root            TEXT NOT NULL,
  run_id          TEXT NOT NULL,
  versions        TEXT NOT NULL,
  input_hash      TEXT,
  aggregated_at   TIMESTAMP,
  UNIQUE(library, root)
);

CREATE TABLE IF NOT EXISTS nodes (
  id              INTEGER PRIMARY KEY,
  tree_id         INTEGER NOT NULL REFERENCES trees(id),
  parent_id       INTEGER REFERENCES nodes(id),
  name            TEXT NOT NULL,
  full_name       TEXT NOT NULL,
  kind            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS node_versions (
  node_id         INTEGER NOT NULL REFERENCES nodes(id),
  version         TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  PRIMARY KEY (node_id, version)
);

CREATE TABLE IF NOT EXISTS signatures (
  node_id         INTEGER NOT NULL REFERENCES nodes(id),
  version         TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  params          TEXT NOT NULL,
  defaults        TEXT NOT NULL,
  signature_hash  TEXT NOT NULL,
  PRIMARY KEY (node_id, version)
);

CREATE TABLE IF NOT EXISTS sources (
  node_id         INTEGER NOT NULL REFERENCES nodes(id),
  version         TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  path            TEXT NOT NULL,
  diff_size       INTEGER NOT NULL,
  PRIMARY KEY (node_id, version)
);

CREATE TABLE IF NOT EXISTS alias_targets (
  alias_id        INTEGER NOT NULL REFERENCES nodes(id),
  version         TEXT NOT NULL,
  target_id       INTEGER NOT NULL REFERENCES nodes(id),
  PRIMARY KEY (alias_id, version)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_tree ON nodes(tree_id);
CREATE INDEX IF NOT EXISTS idx_nodes_full_name ON nodes(full_name, kind);
CREATE INDEX IF NOT EXISTS idx_alias_targets_target ON alias_targets(target_id);
`

// DeleteLibrary transactionally removes every tree stored for library.
func (s *Store) DeleteLibrary(library string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteLibraryTx(tx, library); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteLibraryTx deletes in reverse-dependency order to respect FK
// constraints. Nodes are deleted children first.
func deleteLibraryTx(tx *sql.Tx, library string) error {
	const nodesOf = "SELECT n.id FROM nodes n JOIN trees t ON t.id = n.tree_id WHERE t.library = ?"
	for _, q := range []string{
		"DELETE FROM alias_targets WHERE alias_id IN (" + nodesOf + ") OR target_id IN (" + nodesOf + ")",
		"DELETE FROM sources WHERE node_id IN (" + nodesOf + ")",
		"DELETE FROM signatures WHERE node_id IN (" + nodesOf + ")",
		"DELETE FROM node_versions WHERE node_id IN (" + nodesOf + ")",
	} {
		args := repeatArgs([]any{library}, countSubstring(q, "?"))
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("delete library %s: %w", library, err)
		}
	}

	// Parents precede children in id order, so deleting in descending id
	// order never orphans a row that is still referenced.
	rows, err := tx.Query(nodesOf+" ORDER BY n.id DESC", library)
	if err != nil {
		return fmt.Errorf("delete library %s: query nodes: %w", library, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("delete library %s: scan node id: %w", library, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("delete library %s: %w", library, err)
	}
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		chunk := ids[start:end]
		q := "DELETE FROM nodes WHERE id IN (" + placeholderList(len(chunk)) + ")"
		if _, err := tx.Exec(q, int64sToArgs(chunk)...); err != nil {
			return fmt.Errorf("delete library %s: nodes: %w", library, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM trees WHERE library = ?", library); err != nil {
		return fmt.Errorf("delete library %s: trees: %w", library, err)
	}
	return nil
}

// deleteChunk bounds the number of bound parameters per statement.
const deleteChunk = 500

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
