package versiontree

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/mod/semver"
)

// CompareVersions orders two version labels by release precedence. Labels
// that are valid semantic versions (with or without a leading "v") compare
// by semver rules; anything else falls back to a segment-wise comparison
// that understands PEP 440 style pre- and post-releases such as "1.0rc1" and
// "1.0.post2".
func CompareVersions(a, b string) int {
	sa, sb := canonicalSemver(a), canonicalSemver(b)
	if semver.IsValid(sa) && semver.IsValid(sb) {
		if c := semver.Compare(sa, sb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	}
	if c := compareSegments(tokenize(a), tokenize(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// SortVersions sorts labels oldest first.
func SortVersions(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		return CompareVersions(labels[i], labels[j]) < 0
	})
}

func canonicalSemver(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

type token struct {
	num   int
	text  string
	isNum bool
}

func tokenize(v string) []token {
	var out []token
	v = strings.TrimPrefix(strings.ToLower(v), "v")
	for i := 0; i < len(v); {
		r := rune(v[i])
		switch {
		case unicode.IsDigit(r):
			j := i
			for j < len(v) && unicode.IsDigit(rune(v[j])) {
				j++
			}
			n, _ := strconv.Atoi(v[i:j])
			out = append(out, token{num: n, isNum: true})
			i = j
		case unicode.IsLetter(r):
			j := i
			for j < len(v) && unicode.IsLetter(rune(v[j])) {
				j++
			}
			out = append(out, token{text: v[i:j]})
			i = j
		default:
			i++
		}
	}
	return out
}

func compareSegments(a, b []token) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := a[i], b[i]
		switch {
		case x.isNum && y.isNum:
			if x.num != y.num {
				if x.num < y.num {
					return -1
				}
				return 1
			}
		case x.isNum:
			// A further release segment outranks any tag: 1.0.1 > 1.0rc1.
			return 1
		case y.isNum:
			return -1
		default:
			rx, ry := tagRank(x.text), tagRank(y.text)
			if rx != ry {
				if rx < ry {
					return -1
				}
				return 1
			}
			if c := strings.Compare(x.text, y.text); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) > len(b):
		return tailSign(a[len(b)])
	default:
		return -tailSign(b[len(a)])
	}
}

func tagRank(tag string) int {
	switch tag {
	case "dev":
		return 0
	case "a", "alpha":
		return 1
	case "b", "beta":
		return 2
	case "c", "rc", "pre", "preview":
		return 3
	case "post", "rev", "r":
		return 5
	}
	return 4
}

// tailSign reports how a label with an extra trailing token compares to the
// label without it: further numbers and post-releases sort later,
// pre-release tags sort earlier.
func tailSign(t token) int {
	if t.isNum || t.text == "post" {
		return 1
	}
	return -1
}
