// Package tree converts between flat bookmark records and the nested view
// handed to consumers.
package tree

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
)

// Node is one element of the materialized view. Folders carry Children and
// Collapsed; links carry URL.
type Node struct {
	ID        string      `json:"id"`
	Label     string      `json:"label"`
	Kind      domain.Kind `json:"kind"`
	URL       string      `json:"url,omitempty"`
	Collapsed bool        `json:"collapsed,omitempty"`
	Children  []*Node     `json:"children,omitempty"`
}

// IsFolder reports whether the node can hold children.
func (n *Node) IsFolder() bool { return n.Kind == domain.KindFolder }

// MarshalJSON always emits children and collapsed for folders and never for
// links.
func (n *Node) MarshalJSON() ([]byte, error) {
	if !n.IsFolder() {
		return json.Marshal(struct {
			ID    string      `json:"id"`
			Label string      `json:"label"`
			Kind  domain.Kind `json:"kind"`
			URL   string      `json:"url"`
		}{n.ID, n.Label, n.Kind, n.URL})
	}
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(struct {
		ID        string      `json:"id"`
		Label     string      `json:"label"`
		Kind      domain.Kind `json:"kind"`
		Collapsed bool        `json:"collapsed"`
		Children  []*Node     `json:"children"`
	}{n.ID, n.Label, n.Kind, n.Collapsed, children})
}

// Build nests records by ParentID. Siblings are ordered by SortOrder with
// ties kept in input order. Records whose parent is missing from the input
// are dropped with their subtree. A record already on the current path is
// not expanded again, so cyclic or duplicated input still terminates.
func Build(records []domain.Bookmark) []*Node {
	children := make(map[string][]domain.Bookmark, len(records))
	for _, r := range records {
		h := r.Meta()
		children[h.ParentID] = append(children[h.ParentID], r)
	}
	for _, group := range children {
		slices.SortStableFunc(group, func(a, b domain.Bookmark) int {
			return cmp.Compare(a.Meta().SortOrder, b.Meta().SortOrder)
		})
	}
	return build(children, "", map[string]bool{})
}

func build(children map[string][]domain.Bookmark, parent string, onPath map[string]bool) []*Node {
	group := children[parent]
	nodes := make([]*Node, 0, len(group))
	for _, r := range group {
		h := r.Meta()
		if onPath[h.ID] {
			continue
		}
		n := &Node{ID: h.ID, Label: h.Label, Kind: r.Kind()}
		switch v := r.(type) {
		case *domain.Folder:
			n.Collapsed = v.Collapsed
			onPath[h.ID] = true
			n.Children = build(children, h.ID, onPath)
			delete(onPath, h.ID)
		case *domain.Link:
			n.URL = v.URL
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// Flatten walks nodes depth-first and returns one record per node, with
// SortOrder set to the node's position among its siblings and every record
// stamped with scope.
func Flatten(nodes []*Node, scope string) []domain.Bookmark {
	var out []domain.Bookmark
	var walk func(nodes []*Node, parent string)
	walk = func(nodes []*Node, parent string) {
		for i, n := range nodes {
			h := domain.Header{ID: n.ID, Label: n.Label, ParentID: parent, SortOrder: i, Scope: scope}
			if n.IsFolder() {
				out = append(out, &domain.Folder{Header: h, Collapsed: n.Collapsed})
				walk(n.Children, n.ID)
				continue
			}
			out = append(out, &domain.Link{Header: h, URL: n.URL})
		}
	}
	walk(nodes, "")
	return out
}

// CollectDescendantIDs returns every id strictly below id, depth-first.
func CollectDescendantIDs(records []domain.Bookmark, id string) []string {
	children := make(map[string][]string, len(records))
	for _, r := range records {
		h := r.Meta()
		children[h.ParentID] = append(children[h.ParentID], h.ID)
	}

	var out []string
	seen := map[string]bool{id: true}
	var walk func(parent string)
	walk = func(parent string) {
		for _, child := range children[parent] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			walk(child)
		}
	}
	walk(id)
	return out
}

// Clone deep-copies nodes.
func Clone(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		c := *n
		c.Children = Clone(n.Children)
		out[i] = &c
	}
	return out
}

// Reassign returns a copy of nodes with every id replaced by newID().
func Reassign(nodes []*Node, newID func() string) []*Node {
	out := Clone(nodes)
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			n.ID = newID()
			walk(n.Children)
		}
	}
	walk(out)
	return out
}

// Find returns the node with id, or nil.
func Find(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
		if found := Find(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// Count returns the number of nodes in the forest.
func Count(nodes []*Node) int {
	total := 0
	for _, n := range nodes {
		total += 1 + Count(n.Children)
	}
	return total
}
