// Package dom turns a rendered page into an indexed text tree.
//
// A capture produces a RawTree, an immutable arena of element nodes with
// geometry and computed style. Three filters (visibility, paint order,
// bounding-box propagation) each derive a new Tree of processed nodes over
// the same arena, and Serialize renders the final Tree as indented text
// plus a selector map keyed by the indices in that text.
package dom

import (
	"strings"

	"github.com/nextlevelbuilder/pagelens/pkg/cssselect"
)

// NodeID indexes RawTree.Nodes.
type NodeID int

// NoNode marks an absent parent or reference.
const NoNode NodeID = -1

type Kind int

const (
	KindElement Kind = iota
	KindDocument
)

// Style holds the computed style properties the filters read.
type Style struct {
	Display         string  `json:"display,omitempty"`
	Visibility      string  `json:"visibility,omitempty"`
	Opacity         float64 `json:"opacity"`
	Overflow        string  `json:"overflow,omitempty"`
	PointerEvents   string  `json:"pointerEvents,omitempty"`
	Cursor          string  `json:"cursor,omitempty"`
	BackgroundAlpha float64 `json:"backgroundAlpha"`
}

// DefaultStyle is the computed style of a plain visible block.
func DefaultStyle() Style {
	return Style{Display: "block", Visibility: "visible", Opacity: 1}
}

func (s Style) clips() bool {
	return hasOverflow(s.Overflow, "hidden") || hasOverflow(s.Overflow, "clip")
}

func (s Style) scrolls() bool {
	return hasOverflow(s.Overflow, "auto") || hasOverflow(s.Overflow, "scroll")
}

// hasOverflow matches one keyword of a possibly two-valued overflow
// shorthand ("hidden auto").
func hasOverflow(overflow, keyword string) bool {
	for _, f := range strings.Fields(overflow) {
		if f == keyword {
			return true
		}
	}
	return false
}

// ScrollInfo is the scroll state of an element: offset, content size and
// client (visible) size.
type ScrollInfo struct {
	Left         float64 `json:"left"`
	Top          float64 `json:"top"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	ClientWidth  float64 `json:"clientWidth"`
	ClientHeight float64 `json:"clientHeight"`
}

// Overflows reports whether the content is larger than the client box.
func (s ScrollInfo) Overflows() bool {
	if s.ClientWidth <= 0 && s.ClientHeight <= 0 {
		return false
	}
	return s.Height > s.ClientHeight+1 || s.Width > s.ClientWidth+1
}

// RawNode is one element (or the document) as captured from the page.
type RawNode struct {
	ID            NodeID            `json:"id"`
	Parent        NodeID            `json:"parent"`
	Children      []NodeID          `json:"children,omitempty"`
	BackendNodeID int64             `json:"backendNodeId"`
	Kind          Kind              `json:"kind"`
	Tag           string            `json:"tag"`
	Attrs         map[string]string `json:"attrs,omitempty"`
	Text          string            `json:"text,omitempty"`
	Value         string            `json:"value,omitempty"`
	Bounds        Rect              `json:"bounds"`
	HasLayout     bool              `json:"hasLayout"`
	PaintOrder    int               `json:"paintOrder"`
	Style         Style             `json:"style"`
	Scroll        ScrollInfo        `json:"scroll"`
	Clickable     bool              `json:"clickable,omitempty"`
}

// RawTree is the immutable arena of captured nodes. Node IDs follow
// document order.
type RawTree struct {
	Nodes    []RawNode `json:"nodes"`
	Root     NodeID    `json:"root"`
	Viewport Rect      `json:"viewport"`
}

func NewRawTree(viewport Rect) *RawTree {
	return &RawTree{Root: NoNode, Viewport: viewport}
}

// Add appends n under parent and returns its ID. The first node added
// with parent NoNode becomes the root. Nodes must be added in document
// order.
func (t *RawTree) Add(parent NodeID, n RawNode) NodeID {
	id := NodeID(len(t.Nodes))
	n.ID = id
	n.Parent = parent
	n.Children = nil
	n.Tag = strings.ToLower(n.Tag)
	t.Nodes = append(t.Nodes, n)
	if parent == NoNode {
		if t.Root == NoNode {
			t.Root = id
		}
	} else {
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, id)
	}
	return id
}

func (t *RawTree) Node(id NodeID) *RawNode {
	return &t.Nodes[id]
}

func (t *RawTree) Attr(id NodeID, name string) string {
	return t.Nodes[id].Attrs[name]
}

// IsAncestor reports whether a is a proper ancestor of b.
func (t *RawTree) IsAncestor(a, b NodeID) bool {
	for p := t.Nodes[b].Parent; p != NoNode; p = t.Nodes[p].Parent {
		if p == a {
			return true
		}
	}
	return false
}

// Element returns a selector-synthesis view of an element node.
func (t *RawTree) Element(id NodeID) cssselect.Element {
	return arenaElement{t: t, id: id}
}

type arenaElement struct {
	t  *RawTree
	id NodeID
}

func (e arenaElement) TagName() string { return e.t.Nodes[e.id].Tag }

func (e arenaElement) Attribute(name string) string { return e.t.Nodes[e.id].Attrs[name] }

func (e arenaElement) ParentElement() cssselect.Element {
	p := e.t.Nodes[e.id].Parent
	if p == NoNode || e.t.Nodes[p].Kind != KindElement {
		return nil
	}
	return arenaElement{t: e.t, id: p}
}

func (e arenaElement) SiblingPosition() (int, int) {
	n := &e.t.Nodes[e.id]
	if n.Parent == NoNode {
		return 1, 1
	}
	pos, count := 0, 0
	for _, sib := range e.t.Nodes[n.Parent].Children {
		s := &e.t.Nodes[sib]
		if s.Kind == KindElement && s.Tag == n.Tag {
			count++
			if sib == e.id {
				pos = count
			}
		}
	}
	return pos, count
}

// Node is a processed node. It references its raw node for geometry and
// attributes and exclusively owns its children.
type Node struct {
	Raw      NodeID
	Children []*Node
	// Folded is text absorbed from descendants removed by a filter.
	Folded   []string
	Compound *Compound
}

func (n *Node) shallowCopy() *Node {
	c := &Node{Raw: n.Raw, Compound: n.Compound}
	if len(n.Folded) > 0 {
		c.Folded = append([]string(nil), n.Folded...)
	}
	return c
}

// Tree is the output of a filter stage. Trees share the raw arena; each
// stage builds fresh Node values.
type Tree struct {
	Raw  *RawTree
	Root *Node

	// visible marks raw nodes that passed their own visibility check and
	// clip chain, whether or not they were kept in the tree.
	visible []bool
	stats   Stats
}

// Visible reports whether raw node id was rendered on screen.
func (t *Tree) Visible(id NodeID) bool {
	return int(id) < len(t.visible) && t.visible[id]
}

func (t *Tree) derive(root *Node) *Tree {
	return &Tree{Raw: t.Raw, Root: root, visible: t.visible, stats: t.stats}
}

// Walk visits every node in document order. Returning false from fn skips
// the node's children.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	if t.Root != nil {
		walk(t.Root, 0)
	}
}

// Len counts processed nodes, excluding the document root.
func (t *Tree) Len() int {
	n := 0
	t.Walk(func(*Node, int) bool { n++; return true })
	return n - 1
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
