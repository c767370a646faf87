// Package partition splits a page tree into one group per top-level page and
// flattens each group's subtree into breadth-first records.
package partition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/pagetree/internal/models"
)

// DuplicatePolicy decides what happens when two top-level titles share a key.
type DuplicatePolicy string

const (
	// DuplicateError rejects the whole plan before anything is written.
	DuplicateError DuplicatePolicy = "error"
	// DuplicateMerge writes all colliding pages into one group, in source order.
	DuplicateMerge DuplicatePolicy = "merge"
	// DuplicateRename suffixes later keys with -2, -3, ...
	DuplicateRename DuplicatePolicy = "rename"
)

// Options configures a Partitioner.
type Options struct {
	BaseURL     string
	Limits      Limits
	OnDuplicate DuplicatePolicy
}

// Partitioner turns top-level pages into groups and groups into records.
type Partitioner struct {
	opts Options
}

// New creates a Partitioner. An empty OnDuplicate means DuplicateError.
func New(opts Options) *Partitioner {
	if opts.OnDuplicate == "" {
		opts.OnDuplicate = DuplicateError
	}
	return &Partitioner{opts: opts}
}

type groupRoot struct {
	node  *models.PageNode
	index int // position in the document's top-level list
}

// Group is one output group with the top-level page(s) it was formed from.
type Group struct {
	models.TopLevelGroup
	roots []groupRoot
}

// Plan is the set of groups derived from a document's top-level pages.
type Plan struct {
	Groups []*Group
	// Skipped holds a *MalformedNodeError for every top-level page that
	// could not form a group.
	Skipped []error
}

// Plan validates the top-level pages and assigns each a group key. Under
// DuplicateError a key collision fails the whole plan with one
// *DuplicateGroupKeyError per colliding key.
func (p *Partitioner) Plan(roots []*models.PageNode) (*Plan, error) {
	plan := &Plan{}
	byKey := make(map[string]*Group)
	var dups []error
	reported := make(map[string]*DuplicateGroupKeyError)

	for i, r := range roots {
		path := rootPath(i)
		if r == nil {
			plan.Skipped = append(plan.Skipped, &MalformedNodeError{Path: path, Err: errors.New("null page")})
			continue
		}
		if err := r.Validate(); err != nil {
			plan.Skipped = append(plan.Skipped, &MalformedNodeError{Path: path, ID: string(r.ID), Title: r.Title, Err: err})
			continue
		}

		key := GroupKey(r.Title)
		existing, taken := byKey[collisionKey(key)]
		if taken {
			switch p.opts.OnDuplicate {
			case DuplicateMerge:
				existing.roots = append(existing.roots, groupRoot{node: r, index: i})
				continue
			case DuplicateRename:
				key = p.freeKey(byKey, key)
			default:
				d, ok := reported[existing.Key]
				if !ok {
					d = &DuplicateGroupKeyError{Key: existing.Key, Titles: []string{existing.Title}}
					reported[existing.Key] = d
					dups = append(dups, d)
				}
				d.Titles = append(d.Titles, r.Title)
				continue
			}
		}

		g := &Group{
			TopLevelGroup: models.TopLevelGroup{
				Key:   key,
				ID:    string(r.ID),
				Title: r.Title,
				URL:   ResolveURL(p.opts.BaseURL, r.Locator()),
			},
			roots: []groupRoot{{node: r, index: i}},
		}
		byKey[collisionKey(key)] = g
		plan.Groups = append(plan.Groups, g)
	}

	if len(dups) > 0 {
		return nil, errors.Join(dups...)
	}
	return plan, nil
}

func (p *Partitioner) freeKey(byKey map[string]*Group, key string) string {
	for n := 2; ; n++ {
		candidate := key + "-" + strconv.Itoa(n)
		if _, taken := byKey[collisionKey(candidate)]; !taken {
			return candidate
		}
	}
}

// EmitFunc receives each descendant record of a group as it is discovered.
type EmitFunc func(rec models.FlatRecord) error

// Descendants walks the group's subtree(s) breadth-first and emits one record
// per strict descendant. The top-level page itself is never emitted.
//
// A malformed descendant is reported as a *MalformedNodeError, gets no record,
// and its subtree is skipped; the walk continues with the remaining nodes.
// A merged group shares one MaxNodes budget across its roots. A cycle or
// depth overrun stops only the root it was found under, and later roots of
// the group are still walked. The node limit or an error returned by emit
// stops the whole group. All problems are joined into the returned error.
func (p *Partitioner) Descendants(g *Group, emit EmitFunc) error {
	var errs []error
	var visited int
	for _, root := range g.roots {
		base := rootPath(root.index)
		stop, err := WalkCounted(root.node, (*models.PageNode).ChildPages, p.opts.Limits, &visited,
			func(s *Step[*models.PageNode]) (bool, error) {
				n := s.Node
				if n == nil {
					errs = append(errs, &MalformedNodeError{Path: stepPath(base, s), Err: errors.New("null page")})
					return false, nil
				}
				if verr := n.Validate(); verr != nil {
					errs = append(errs, &MalformedNodeError{Path: stepPath(base, s), ID: string(n.ID), Title: n.Title, Err: verr})
					return false, nil
				}
				rec := models.FlatRecord{
					ID:    string(n.ID),
					Title: n.Title,
					URL:   ResolveURL(p.opts.BaseURL, n.Locator()),
					Depth: s.Depth,
				}
				if s.Parent != nil && s.Parent.Node != nil {
					rec.ParentID = string(s.Parent.Node.ID)
				}
				return true, emit(rec)
			})
		if err != nil {
			var lim *LimitError
			if errors.As(err, &lim) && lim.Path == "" {
				lim.Path = stepPath(base, stop)
			}
			errs = append(errs, err)
			if lim == nil || errors.Is(err, ErrNodeLimit) {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Collect returns all descendant records of g.
func (p *Partitioner) Collect(g *Group) ([]models.FlatRecord, error) {
	var out []models.FlatRecord
	err := p.Descendants(g, func(rec models.FlatRecord) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Partition plans the groups of roots and emits every group's descendants,
// one group fully before the next.
func (p *Partitioner) Partition(roots []*models.PageNode, emit func(g *Group, rec models.FlatRecord) error) error {
	plan, err := p.Plan(roots)
	if err != nil {
		return err
	}
	errs := append([]error(nil), plan.Skipped...)
	for _, g := range plan.Groups {
		if err := p.Descendants(g, func(rec models.FlatRecord) error { return emit(g, rec) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResolveURL joins a locator onto base with exactly one slash between them.
// Absolute locators are returned unchanged; an empty locator yields "".
func ResolveURL(base, locator string) string {
	switch {
	case locator == "":
		return ""
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return locator
	case base == "":
		return locator
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(locator, "/")
}

func rootPath(i int) string {
	return fmt.Sprintf("results[%d]", i)
}

func stepPath[T comparable](base string, s *Step[T]) string {
	if s == nil {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	for _, i := range s.Indices() {
		fmt.Fprintf(&b, ".children[%d]", i)
	}
	return b.String()
}
