// Package hierarchy resolves roots, ancestors, descendants and branch
// membership over the organizational forests (departments, equipments).
// A Tree is an immutable snapshot validated at load time; all methods are
// read-only and safe for concurrent use.
package hierarchy

import (
	"iter"
	"sort"

	"github.com/gastransit/pipeledger/internal/types"
	"gorm.io/gorm"
)

// TreeRow is implemented by models persisted as adjacency-list forests.
type TreeRow interface {
	TreeID() uint64
	TreeParentID() *uint64
	TreeName() string
}

type node struct {
	parent   *uint64
	name     string
	children []uint64
}

// Tree is a validated snapshot of one forest.
type Tree struct {
	nodes map[uint64]*node
	roots []uint64
}

// New builds a Tree from rows. A dangling parent reference or a parent cycle
// is a data-integrity error and fails construction; it is never silently
// tolerated.
func New[T TreeRow](rows []T) (*Tree, error) {
	t := &Tree{nodes: make(map[uint64]*node, len(rows))}
	for _, r := range rows {
		id := r.TreeID()
		if _, dup := t.nodes[id]; dup {
			return nil, types.Validation("duplicate tree node %d", id)
		}
		t.nodes[id] = &node{parent: r.TreeParentID(), name: r.TreeName()}
	}
	for id, n := range t.nodes {
		if n.parent == nil {
			t.roots = append(t.roots, id)
			continue
		}
		p, ok := t.nodes[*n.parent]
		if !ok {
			return nil, types.Validation("tree node %d references missing parent %d", id, *n.parent)
		}
		p.children = append(p.children, id)
	}
	// Walk every parent chain; a chain longer than the node count is a cycle.
	for id := range t.nodes {
		if err := t.checkChain(id); err != nil {
			return nil, err
		}
	}
	// Ordered siblings: by name, then id for stability.
	for _, n := range t.nodes {
		children := n.children
		sort.Slice(children, func(i, j int) bool {
			a, b := t.nodes[children[i]], t.nodes[children[j]]
			if a.name != b.name {
				return a.name < b.name
			}
			return children[i] < children[j]
		})
	}
	sort.Slice(t.roots, func(i, j int) bool { return t.roots[i] < t.roots[j] })
	return t, nil
}

func (t *Tree) checkChain(id uint64) error {
	steps := 0
	for cur := t.nodes[id]; cur.parent != nil; cur = t.nodes[*cur.parent] {
		steps++
		if steps > len(t.nodes) {
			return types.Validation("parent cycle through tree node %d", id)
		}
	}
	return nil
}

// Load reads every row of the tree model T and builds a validated Tree.
func Load[T TreeRow](db *gorm.DB) (*Tree, error) {
	var rows []T
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return New(rows)
}

// Contains reports whether the forest has a node with the given id.
func (t *Tree) Contains(id uint64) bool {
	_, ok := t.nodes[id]
	return ok
}

// Roots returns the root ids of the forest, ascending.
func (t *Tree) Roots() []uint64 {
	out := make([]uint64, len(t.roots))
	copy(out, t.roots)
	return out
}

// Root returns the ancestor of id that has no parent. O(depth).
func (t *Tree) Root(id uint64) (uint64, error) {
	n, ok := t.nodes[id]
	if !ok {
		return 0, types.NotFound("tree node %d", id)
	}
	for n.parent != nil {
		id = *n.parent
		n = t.nodes[id]
	}
	return id, nil
}

// Ancestors returns the parent chain of id, nearest first, excluding id.
func (t *Tree) Ancestors(id uint64) ([]uint64, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, types.NotFound("tree node %d", id)
	}
	var out []uint64
	for n.parent != nil {
		out = append(out, *n.parent)
		n = t.nodes[*n.parent]
	}
	return out, nil
}

// Descendants returns a lazy, restartable depth-first sequence of every node
// reachable downward from id. An unknown id yields an empty sequence.
func (t *Tree) Descendants(id uint64, includeSelf bool) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		if _, ok := t.nodes[id]; !ok {
			return
		}
		if includeSelf && !yield(id) {
			return
		}
		t.walk(id, yield)
	}
}

func (t *Tree) walk(id uint64, yield func(uint64) bool) bool {
	for _, child := range t.nodes[id].children {
		if !yield(child) {
			return false
		}
		if !t.walk(child, yield) {
			return false
		}
	}
	return true
}

// SameBranch reports whether a and b hang off the same root.
func (t *Tree) SameBranch(a, b uint64) (bool, error) {
	ra, err := t.Root(a)
	if err != nil {
		return false, err
	}
	rb, err := t.Root(b)
	if err != nil {
		return false, err
	}
	return ra == rb, nil
}

// Depth returns the number of ancestors above id.
func (t *Tree) Depth(id uint64) (int, error) {
	anc, err := t.Ancestors(id)
	if err != nil {
		return 0, err
	}
	return len(anc), nil
}
