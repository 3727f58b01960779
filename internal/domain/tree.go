package domain

import "fmt"

// Node is one entry of the content tree. Parent and children are referenced by id.
type Node struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     Kind        `json:"type"`
	ParentID string      `json:"-"`
	ChildIDs []string    `json:"-"`
	Text     string      `json:"content,omitempty"`
	Media    []MediaItem `json:"mediaFiles,omitempty"`
}

// Tree is an arena of nodes keyed by id. It is built once per run and not mutated afterwards.
type Tree struct {
	RootID string
	nodes  map[string]*Node
	order  []string
}

// NewTree starts a tree with the given root
func NewTree(root Node) *Tree {
	root.ParentID = ""
	root.ChildIDs = nil
	return &Tree{
		RootID: root.ID,
		nodes:  map[string]*Node{root.ID: &root},
		order:  []string{root.ID},
	}
}

// Add appends n under its ParentID. Children keep insertion order.
func (t *Tree) Add(n Node) error {
	if _, dup := t.nodes[n.ID]; dup {
		return fmt.Errorf("duplicate node id %s", n.ID)
	}
	parent, ok := t.nodes[n.ParentID]
	if !ok {
		return fmt.Errorf("node %s: unknown parent %s", n.ID, n.ParentID)
	}
	n.ChildIDs = nil
	t.nodes[n.ID] = &n
	t.order = append(t.order, n.ID)
	parent.ChildIDs = append(parent.ChildIDs, n.ID)
	return nil
}

// Get returns a copy of the node with the given id
func (t *Tree) Get(id string) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Root returns the root node
func (t *Tree) Root() Node {
	n, _ := t.Get(t.RootID)
	return n
}

// Children returns the direct children of id in listing order
func (t *Tree) Children(id string) []Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(n.ChildIDs))
	for _, cid := range n.ChildIDs {
		out = append(out, *t.nodes[cid])
	}
	return out
}

// Len returns the number of nodes including the root
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Projects returns every project node in depth-first listing order
func (t *Tree) Projects() []Node {
	var out []Node
	var visit func(id string)
	visit = func(id string) {
		n := t.nodes[id]
		if n.Kind == KindProject {
			out = append(out, *n)
		}
		for _, cid := range n.ChildIDs {
			visit(cid)
		}
	}
	visit(t.RootID)
	return out
}

// FindPage returns the first direct child page of the root with the given name
func (t *Tree) FindPage(name string) (Node, bool) {
	for _, c := range t.Children(t.RootID) {
		if c.Kind == KindPage && c.Name == name {
			return c, true
		}
	}
	return Node{}, false
}
