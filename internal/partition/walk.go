package partition

// Limits bounds a traversal. Zero values disable the corresponding check.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

// Step is one node reached by Walk.
type Step[T comparable] struct {
	Node   T
	Parent *Step[T] // nil only for the walk root
	Depth  int      // 1 for direct children of the root
	Index  int      // position among its siblings
}

// Indices returns the sibling positions leading from the root to s.
func (s *Step[T]) Indices() []int {
	var out []int
	for cur := s; cur != nil && cur.Parent != nil; cur = cur.Parent {
		out = append(out, cur.Index)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Step[T]) revisits() bool {
	for a := s.Parent; a != nil; a = a.Parent {
		if a.Node == s.Node {
			return true
		}
	}
	return false
}

// VisitFunc is called once per reached node. Returning descend=false skips
// the node's subtree; a non-nil error stops the walk.
type VisitFunc[T comparable] func(s *Step[T]) (descend bool, err error)

// Walk visits every strict descendant of root in breadth-first order: all
// nodes of depth d before any node of depth d+1, siblings in the order
// children returns them.
//
// A node that is its own ancestor stops the walk with ErrCycle. Exceeding
// lim.MaxDepth or lim.MaxNodes stops it with ErrDepthExceeded or ErrNodeLimit.
// Both are returned as *LimitError with an empty Path; callers fill it in.
func Walk[T comparable](root T, children func(T) []T, lim Limits, visit VisitFunc[T]) (*Step[T], error) {
	var visited int
	return WalkCounted(root, children, lim, &visited, visit)
}

// WalkCounted is Walk with the node count kept in *visited, so that several
// walks can share one lim.MaxNodes budget.
func WalkCounted[T comparable](root T, children func(T) []T, lim Limits, visited *int, visit VisitFunc[T]) (*Step[T], error) {
	top := &Step[T]{Node: root}

	var level []*Step[T]
	for i, c := range children(root) {
		level = append(level, &Step[T]{Node: c, Parent: top, Depth: 1, Index: i})
	}

	for len(level) > 0 {
		var next []*Step[T]
		for _, s := range level {
			switch {
			case lim.MaxDepth > 0 && s.Depth > lim.MaxDepth:
				return s, &LimitError{Depth: s.Depth, Err: ErrDepthExceeded}
			case s.revisits():
				return s, &LimitError{Depth: s.Depth, Err: ErrCycle}
			}
			*visited++
			if lim.MaxNodes > 0 && *visited > lim.MaxNodes {
				return s, &LimitError{Depth: s.Depth, Err: ErrNodeLimit}
			}

			descend, err := visit(s)
			if err != nil {
				return s, err
			}
			if !descend {
				continue
			}
			for i, c := range children(s.Node) {
				next = append(next, &Step[T]{Node: c, Parent: s, Depth: s.Depth + 1, Index: i})
			}
		}
		level = next
	}
	return nil, nil
}
