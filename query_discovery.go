package apitrail

import (
	"fmt"
	"strings"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list/search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByName     SortField = "name"
	SortByKind     SortField = "kind"
	SortByVersions SortField = "versions"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// NodeFilter specifies which stored nodes to include. All fields are
// optional.
type NodeFilter struct {
	Library  string
	Root     string
	Kinds    []Kind
	Pattern  string // substring of full_name
	ParentID *int64 // direct children of this node row
	Version  string // node is available in this version
}

// NodeResult is a stored node with its version span.
type NodeResult struct {
	NodeRef
	ParentID     *int64
	VersionCount int
	FirstVersion string
	LastVersion  string
}

func nodeSortColumn(field SortField) string {
	switch field {
	case SortByKind:
		return "n.kind"
	case SortByVersions:
		return "version_count"
	default:
		return "n.full_name"
	}
}

// sortDirection returns "ASC" or "DESC".
func sortDirection(order SortOrder) string {
	if order == Desc {
		return "DESC"
	}
	return "ASC"
}

// --- Enumeration Endpoints ---

// Nodes lists stored nodes matching filter.
func (q *QueryBuilder) Nodes(filter NodeFilter, sort Sort, page Pagination) (*PagedResult[NodeResult], error) {
	page = page.normalize()

	var where []string
	var args []any

	if filter.Library != "" {
		where = append(where, "t.library = ?")
		args = append(args, filter.Library)
	}
	if filter.Root != "" {
		where = append(where, "t.root = ?")
		args = append(args, filter.Root)
	}
	if len(filter.Kinds) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Kinds)-1) + "?"
		where = append(where, "n.kind IN ("+placeholders+")")
		for _, k := range filter.Kinds {
			args = append(args, string(k))
		}
	}
	if filter.Pattern != "" {
		where = append(where, "n.full_name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(filter.Pattern)+"%")
	}
	if filter.ParentID != nil {
		where = append(where, "n.parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.Version != "" {
		where = append(where, "EXISTS (SELECT 1 FROM node_versions v WHERE v.node_id = n.id AND v.version = ?)")
		args = append(args, filter.Version)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countSQL := `SELECT COUNT(*) FROM nodes n JOIN trees t ON t.id = n.tree_id ` + whereClause
	var totalCount int
	if err := q.store.DB().QueryRow(countSQL, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("nodes: count: %w", err)
	}

	dataSQL := fmt.Sprintf(
		`SELECT n.id, n.tree_id, t.library, t.root, n.name, n.full_name, n.kind, n.parent_id,
			(SELECT COUNT(*) FROM node_versions v WHERE v.node_id = n.id) AS version_count,
			COALESCE((SELECT v.version FROM node_versions v WHERE v.node_id = n.id ORDER BY v.ordinal ASC LIMIT 1), '') AS first_version,
			COALESCE((SELECT v.version FROM node_versions v WHERE v.node_id = n.id ORDER BY v.ordinal DESC LIMIT 1), '') AS last_version
		 FROM nodes n
		 JOIN trees t ON t.id = n.tree_id
		 %s
		 ORDER BY %s %s, n.id
		 LIMIT ? OFFSET ?`,
		whereClause, nodeSortColumn(sort.Field), sortDirection(sort.Order),
	)
	dataArgs := append(append([]any{}, args...), page.Limit, page.Offset)

	rows, err := q.store.DB().Query(dataSQL, dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("nodes: query: %w", err)
	}
	defer rows.Close()

	items := []NodeResult{}
	for rows.Next() {
		var nr NodeResult
		if err := rows.Scan(
			&nr.ID, &nr.TreeID, &nr.Library, &nr.Root, &nr.Name, &nr.FullName, &nr.Kind, &nr.ParentID,
			&nr.VersionCount, &nr.FirstVersion, &nr.LastVersion,
		); err != nil {
			return nil, fmt.Errorf("nodes: scan: %w", err)
		}
		items = append(items, nr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nodes: rows: %w", err)
	}
	return &PagedResult[NodeResult]{Items: items, TotalCount: totalCount}, nil
}

// --- Digest Endpoints ---

// TreeSummary breaks down one stored tree by category.
type TreeSummary struct {
	Root       string
	Versions   []string
	NodeCount  int
	KindCounts map[string]int
	AliasEdges int // (alias, version) pairs with a target
}

// LibrarySummary provides an overview of one stored library.
type LibrarySummary struct {
	Library string
	RunID   string
	Trees   []TreeSummary
}

// LibrarySummary summarises a stored library. Returns nil when nothing is
// stored for it.
func (q *QueryBuilder) LibrarySummary(library string) (*LibrarySummary, error) {
	trees, err := q.store.Trees(library)
	if err != nil {
		return nil, fmt.Errorf("library summary: %w", err)
	}
	if len(trees) == 0 {
		return nil, nil
	}

	summary := &LibrarySummary{Library: library, RunID: trees[0].RunID}
	for _, ti := range trees {
		ts := TreeSummary{
			Root:       ti.Root,
			Versions:   ti.Versions,
			NodeCount:  ti.NodeCount,
			KindCounts: make(map[string]int),
		}

		kindRows, err := q.store.DB().Query(
			`SELECT kind, COUNT(*) FROM nodes WHERE tree_id = ? GROUP BY kind`, ti.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("library summary: kind counts for %s: %w", ti.Root, err)
		}
		for kindRows.Next() {
			var kind string
			var count int
			if err := kindRows.Scan(&kind, &count); err != nil {
				kindRows.Close()
				return nil, fmt.Errorf("library summary: scan kind: %w", err)
			}
			ts.KindCounts[kind] = count
		}
		kindRows.Close()
		if err := kindRows.Err(); err != nil {
			return nil, fmt.Errorf("library summary: kind rows: %w", err)
		}

		err = q.store.DB().QueryRow(
			`SELECT COUNT(*) FROM alias_targets a JOIN nodes n ON n.id = a.alias_id WHERE n.tree_id = ?`, ti.ID,
		).Scan(&ts.AliasEdges)
		if err != nil {
			return nil, fmt.Errorf("library summary: alias edges for %s: %w", ti.Root, err)
		}
		summary.Trees = append(summary.Trees, ts)
	}
	return summary, nil
}

// escapeLike escapes SQL LIKE special characters (% and _) with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
