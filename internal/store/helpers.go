package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// repeatArgs repeats args n times (for queries with multiple IN clauses).
func repeatArgs(args []any, n int) []any {
	result := make([]any, 0, len(args)*n)
	for range n {
		result = append(result, args...)
	}
	return result
}

// countSubstring counts non-overlapping occurrences of substr in s.
func countSubstring(s, substr string) int {
	return strings.Count(s, substr)
}

// marshalStrings converts []string to JSON text for storage. A nil list is
// stored as null so that it stays distinct from an empty one.
func marshalStrings(list []string) string {
	if list == nil {
		return "null"
	}
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// unmarshalStrings converts JSON text back to []string. null decodes to
// nil and [] to an empty, non-nil list.
func unmarshalStrings(s string) []string {
	switch s {
	case "", "null":
		return nil
	case "[]":
		return []string{}
	}
	var list []string
	_ = json.Unmarshal([]byte(s), &list)
	return list
}
