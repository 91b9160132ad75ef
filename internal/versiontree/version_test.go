package versiontree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"v2.0.0", "1.9.9", 1},
		{"1.0", "1.0.1", -1},
		{"1.0rc1", "1.0", -1},
		{"1.0a1", "1.0b1", -1},
		{"1.0.dev1", "1.0a1", -1},
		{"1.0.post1", "1.0", 1},
		{"1.0.post1", "1.0.1", -1},
		{"2.1.3.4", "2.1.3.10", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a))
		})
	}
}

func TestSortVersions(t *testing.T) {
	t.Parallel()

	labels := []string{"1.10.0", "0.9", "1.2.0", "1.2.0rc1", "1.2.0.post1"}
	SortVersions(labels)
	assert.Equal(t, []string{"0.9", "1.2.0rc1", "1.2.0", "1.2.0.post1", "1.10.0"}, labels)
}
