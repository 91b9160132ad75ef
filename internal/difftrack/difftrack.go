// Package difftrack measures line-level change between consecutive source
// snapshots of a symbol.
package difftrack

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ErrSourceRead marks a snapshot that could not be read. The snapshot is
// treated as empty.
var ErrSourceRead = errors.New("source read failure")

// Reader loads the text of a source snapshot.
type Reader interface {
	ReadSource(path string) (string, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(path string) (string, error)

func (f ReaderFunc) ReadSource(path string) (string, error) { return f(path) }

// FileReader reads snapshots from the local filesystem.
var FileReader Reader = ReaderFunc(func(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
})

// FSReader reads snapshots from fsys.
func FSReader(fsys fs.FS) Reader {
	return ReaderFunc(func(path string) (string, error) {
		b, err := fs.ReadFile(fsys, path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
}

// Tracker computes diff sizes between snapshot paths.
type Tracker struct {
	reader Reader
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithReader sets the snapshot reader. Defaults to FileReader.
func WithReader(r Reader) Option {
	return func(t *Tracker) { t.reader = r }
}

// WithLogger sets the logger used to report read failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{reader: FileReader, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Size returns the number of changed content lines between the snapshots at
// oldPath and newPath. An empty path is an empty snapshot.
func (t *Tracker) Size(oldPath, newPath string) int {
	return Count(t.read(oldPath), t.read(newPath))
}

// Load reads one snapshot, returning "" for an empty path or a read failure.
func (t *Tracker) Load(path string) string {
	return t.read(path)
}

func (t *Tracker) read(path string) string {
	if path == "" {
		return ""
	}
	text, err := t.reader.ReadSource(path)
	if err != nil {
		t.logger.Warn("source snapshot unreadable, treating as empty",
			"path", path, "error", fmt.Errorf("%w: %w", ErrSourceRead, err))
		return ""
	}
	return text
}

// Count returns the number of inserted plus deleted lines in a zero-context
// line diff of a and b.
func Count(a, b string) int {
	n := 0
	for _, group := range opcodes(a, b) {
		for _, op := range group {
			switch op.Tag {
			case 'r':
				n += (op.I2 - op.I1) + (op.J2 - op.J1)
			case 'd':
				n += op.I2 - op.I1
			case 'i':
				n += op.J2 - op.J1
			}
		}
	}
	return n
}

func opcodes(a, b string) [][]difflib.OpCode {
	m := difflib.NewMatcher(splitLines(a), splitLines(b))
	return m.GetGroupedOpCodes(0)
}

// splitLines splits s into lines keeping line terminators. Unlike
// difflib.SplitLines it does not append a phantom final line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
