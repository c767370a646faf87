package partition

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedNode     = errors.New("malformed node")
	ErrDuplicateGroupKey = errors.New("duplicate group key")
	ErrCycle             = errors.New("cycle in page tree")
	ErrDepthExceeded     = errors.New("maximum depth exceeded")
	ErrNodeLimit         = errors.New("maximum node count exceeded")
)

// MalformedNodeError reports a page missing a required field.
type MalformedNodeError struct {
	Path  string // position in the tree, e.g. results[0].children[2]
	ID    string
	Title string
	Err   error
}

func (e *MalformedNodeError) Error() string {
	return fmt.Sprintf("partition: malformed node at %s (id=%q, title=%q): %v", e.Path, e.ID, e.Title, e.Err)
}

func (e *MalformedNodeError) Unwrap() []error {
	return []error{ErrMalformedNode, e.Err}
}

// DuplicateGroupKeyError reports top-level pages whose titles normalize to the same key.
type DuplicateGroupKeyError struct {
	Key    string
	Titles []string
}

func (e *DuplicateGroupKeyError) Error() string {
	return fmt.Sprintf("partition: duplicate group key %q for titles %s", e.Key, strings.Join(quoteAll(e.Titles), ", "))
}

func (e *DuplicateGroupKeyError) Unwrap() error { return ErrDuplicateGroupKey }

// LimitError stops a traversal that hit a cycle or a configured bound.
type LimitError struct {
	Path  string
	Depth int
	Err   error // ErrCycle, ErrDepthExceeded or ErrNodeLimit
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("partition: %v at %s (depth %d)", e.Err, e.Path, e.Depth)
}

func (e *LimitError) Unwrap() error { return e.Err }

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
