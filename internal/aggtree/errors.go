package aggtree

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAncestor means a graft could not locate or synthesize a
	// parent path segment.
	ErrMissingAncestor = errors.New("missing ancestor")

	// ErrTypeConflict means a full name is claimed by incompatible kinds.
	ErrTypeConflict = errors.New("type conflict")

	// ErrAliasTargetUnresolved means an alias's real target exists neither
	// in the tree nor in the incoming version.
	ErrAliasTargetUnresolved = errors.New("alias target unresolved")

	// ErrRootMismatch means an incoming version is rooted at a different
	// package than the tree.
	ErrRootMismatch = errors.New("root mismatch")

	// ErrVersionExists means the version label was already folded in.
	ErrVersionExists = errors.New("version already aggregated")

	// ErrInvalidTree means a version tree is malformed and cannot be used.
	ErrInvalidTree = errors.New("invalid version tree")
)

// SymbolError is a failure confined to one symbol of one version.
type SymbolError struct {
	FullName string
	Kind     Kind
	Version  string
	Err      error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s %s in %s: %v", e.Kind, e.FullName, e.Version, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// Report summarizes one Build or Merge.
type Report struct {
	Version string
	Added   int
	Updated int
	Errors  []*SymbolError
}

// Err joins the report's symbol errors, or returns nil when there are none.
func (r *Report) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
