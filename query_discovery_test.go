package apitrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64Ptr(i int64) *int64 { return &i }

func fullNames(items []NodeResult) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.FullName
	}
	return out
}

// =============================================================================
// Pagination normalization
// =============================================================================

func TestPagination_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    Pagination
		expected Pagination
	}{
		{"zero value uses defaults", Pagination{}, Pagination{Offset: 0, Limit: 50}},
		{"negative offset becomes 0", Pagination{Offset: -5, Limit: 10}, Pagination{Offset: 0, Limit: 10}},
		{"zero limit uses default", Pagination{Offset: 0, Limit: 0}, Pagination{Offset: 0, Limit: 50}},
		{"exceeding max limit capped", Pagination{Offset: 0, Limit: 1000}, Pagination{Offset: 0, Limit: 500}},
		{"valid values unchanged", Pagination{Offset: 10, Limit: 20}, Pagination{Offset: 10, Limit: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.input.normalize()
			assert.Equal(t, tt.expected, got)
		})
	}
}

// =============================================================================
// escapeLike
// =============================================================================

func TestEscapeLike(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `hello`, escapeLike("hello"))
	assert.Equal(t, `hello\%world`, escapeLike("hello%world"))
	assert.Equal(t, `hello\_world`, escapeLike("hello_world"))
	assert.Equal(t, `hello\\world`, escapeLike(`hello\world`))
	assert.Equal(t, `\%\_\\`, escapeLike(`%_\`))
}

// =============================================================================
// Nodes
// =============================================================================

func TestNodes_EmptyDB(t *testing.T) {
	q := newTestEngine(t).Query()

	result, err := q.Nodes(NodeFilter{}, Sort{}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount)
	assert.Empty(t, result.Items)
	assert.NotNil(t, result.Items)
}

func TestNodes_Filters(t *testing.T) {
	q := newAggregatedEngine(t).Query()

	tests := []struct {
		name   string
		filter NodeFilter
		count  int
	}{
		{"no filter", NodeFilter{}, 8},
		{"library", NodeFilter{Library: "compat"}, 6},
		{"library and root", NodeFilter{Library: "demo", Root: "pkg"}, 2},
		{"unknown root", NodeFilter{Root: "other"}, 0},
		{"kind", NodeFilter{Kinds: []Kind{"api"}}, 3},
		{"several kinds", NodeFilter{Library: "compat", Kinds: []Kind{"module", "api_alias"}}, 3},
		{"pattern", NodeFilter{Pattern: "compat"}, 2},
		{"pattern escapes wildcards", NodeFilter{Pattern: "Base_"}, 0},
		{"version", NodeFilter{Library: "compat", Version: "1.0.0"}, 4},
		{"combined", NodeFilter{Library: "compat", Kinds: []Kind{"api"}, Version: "2.0.0"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := q.Nodes(tt.filter, Sort{}, Pagination{})
			require.NoError(t, err)
			assert.Equal(t, tt.count, result.TotalCount)
			assert.Len(t, result.Items, tt.count)
		})
	}
}

func TestNodes_FilterByParentID(t *testing.T) {
	q := newAggregatedEngine(t).Query()

	refs, err := q.Find("pkg.Base")
	require.NoError(t, err)
	var classID int64
	for _, r := range refs {
		if r.Kind == "class" {
			classID = r.ID
		}
	}
	require.NotZero(t, classID)

	result, err := q.Nodes(NodeFilter{ParentID: i64Ptr(classID)}, Sort{Field: SortByName}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg.Base", "pkg.Base.run"}, fullNames(result.Items))
	for _, it := range result.Items {
		require.NotNil(t, it.ParentID)
		assert.Equal(t, classID, *it.ParentID)
	}
}

func TestNodes_VersionSpan(t *testing.T) {
	q := newAggregatedEngine(t).Query()

	result, err := q.Nodes(NodeFilter{Library: "compat", Pattern: "pkg.compat.run"}, Sort{}, Pagination{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	alias := result.Items[0]
	assert.Equal(t, "api_alias", alias.Kind)
	assert.Equal(t, 1, alias.VersionCount)
	assert.Equal(t, "2.0.0", alias.FirstVersion)
	assert.Equal(t, "2.0.0", alias.LastVersion)

	result, err = q.Nodes(NodeFilter{Library: "demo", Kinds: []Kind{"api"}}, Sort{}, Pagination{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	foo := result.Items[0]
	assert.Equal(t, "pkg.foo", foo.FullName)
	assert.Equal(t, "demo", foo.Library)
	assert.Equal(t, 2, foo.VersionCount)
	assert.Equal(t, "1.0.0", foo.FirstVersion)
	assert.Equal(t, "2.0.0", foo.LastVersion)
}

func TestNodes_Pagination(t *testing.T) {
	q := newAggregatedEngine(t).Query()
	filter := NodeFilter{Library: "compat"}
	sort := Sort{Field: SortByName, Order: Asc}

	result, err := q.Nodes(filter, sort, Pagination{Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, result.TotalCount)
	assert.Equal(t, []string{"pkg", "pkg.Base"}, fullNames(result.Items))

	result, err = q.Nodes(filter, sort, Pagination{Offset: 4, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, result.TotalCount)
	assert.Equal(t, []string{"pkg.compat", "pkg.compat.run"}, fullNames(result.Items))

	result, err = q.Nodes(filter, sort, Pagination{Offset: 5, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
}

func TestNodes_Sort(t *testing.T) {
	q := newAggregatedEngine(t).Query()
	filter := NodeFilter{Library: "compat"}

	result, err := q.Nodes(filter, Sort{Field: SortByName, Order: Desc}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, "pkg.compat.run", result.Items[0].FullName)

	result, err = q.Nodes(filter, Sort{Field: SortByVersions, Order: Asc}, Pagination{})
	require.NoError(t, err)
	require.Len(t, result.Items, 6)
	assert.Equal(t, 1, result.Items[0].VersionCount)
	assert.Equal(t, 2, result.Items[5].VersionCount)

	result, err = q.Nodes(filter, Sort{Field: SortByKind, Order: Asc}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, "api", result.Items[0].Kind)
	assert.Equal(t, "module", result.Items[5].Kind)
}

// =============================================================================
// LibrarySummary
// =============================================================================

func TestLibrarySummary(t *testing.T) {
	q := newAggregatedEngine(t).Query()

	summary, err := q.LibrarySummary("compat")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "compat", summary.Library)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Trees, 1)

	ts := summary.Trees[0]
	assert.Equal(t, "pkg", ts.Root)
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, ts.Versions)
	assert.Equal(t, 6, ts.NodeCount)
	assert.Equal(t, map[string]int{"module": 2, "class": 1, "api": 2, "api_alias": 1}, ts.KindCounts)
	assert.Equal(t, 1, ts.AliasEdges)
}

func TestLibrarySummary_Missing(t *testing.T) {
	q := newAggregatedEngine(t).Query()

	summary, err := q.LibrarySummary("nope")
	require.NoError(t, err)
	assert.Nil(t, summary)
}
