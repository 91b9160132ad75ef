package difftrack

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Patch renders the zero-context diff between two snapshots as a unified
// patch. Names label the two sides in the file header.
func Patch(oldName, newName, a, b string) ([]byte, error) {
	fd := FileDiff(oldName, newName, a, b)
	if len(fd.Hunks) == 0 {
		return nil, nil
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return nil, fmt.Errorf("print diff: %w", err)
	}
	return out, nil
}

// FileDiff builds the zero-context hunks between a and b.
func FileDiff(oldName, newName, a, b string) *diff.FileDiff {
	al, bl := splitLines(a), splitLines(b)
	fd := &diff.FileDiff{OrigName: oldName, NewName: newName}
	for _, group := range opcodes(a, b) {
		first, last := group[0], group[len(group)-1]
		h := &diff.Hunk{
			OrigStartLine: hunkStart(first.I1, last.I2),
			OrigLines:     int32(last.I2 - first.I1),
			NewStartLine:  hunkStart(first.J1, last.J2),
			NewLines:      int32(last.J2 - first.J1),
		}
		var body strings.Builder
		for _, op := range group {
			if op.Tag == 'e' {
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				writeLines(&body, '-', al[op.I1:op.I2])
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				writeLines(&body, '+', bl[op.J1:op.J2])
			}
		}
		h.Body = []byte(body.String())
		fd.Hunks = append(fd.Hunks, h)
	}
	return fd
}

// hunkStart follows the unified format: an empty range starts at the line
// before it.
func hunkStart(start, stop int) int32 {
	if stop == start {
		return int32(start)
	}
	return int32(start + 1)
}

func writeLines(b *strings.Builder, prefix byte, lines []string) {
	for _, l := range lines {
		b.WriteByte(prefix)
		b.WriteString(l)
		if !strings.HasSuffix(l, "\n") {
			b.WriteByte('\n')
		}
	}
}
