package dom

import (
	"fmt"
	"strings"
)

var testViewport = Rect{Width: 1280, Height: 800}

// page is a small builder for raw trees in tests. Nodes get increasing
// paint order and backend ids in creation order unless overridden.
type page struct {
	raw  *RawTree
	doc  NodeID
	body NodeID
}

func newPage() *page {
	raw := NewRawTree(testViewport)
	doc := raw.Add(NoNode, RawNode{Kind: KindDocument, Tag: "#document", Bounds: testViewport, HasLayout: true, Style: DefaultStyle()})
	p := &page{raw: raw, doc: doc}
	html := p.add(doc, "html", testViewport)
	p.body = p.add(html, "body", testViewport)
	return p
}

type opt func(*RawNode)

func (p *page) add(parent NodeID, tag string, bounds Rect, opts ...opt) NodeID {
	n := RawNode{
		Kind:          KindElement,
		Tag:           tag,
		Attrs:         map[string]string{},
		Bounds:        bounds,
		HasLayout:     true,
		Style:         DefaultStyle(),
		BackendNodeID: int64(1000 + len(p.raw.Nodes)),
		PaintOrder:    len(p.raw.Nodes),
	}
	for _, o := range opts {
		o(&n)
	}
	return p.raw.Add(parent, n)
}

func attr(k, v string) opt { return func(n *RawNode) { n.Attrs[k] = v } }
func text(s string) opt    { return func(n *RawNode) { n.Text = s } }
func value(s string) opt   { return func(n *RawNode) { n.Value = s } }
func paint(o int) opt      { return func(n *RawNode) { n.PaintOrder = o } }
func opaque() opt          { return func(n *RawNode) { n.Style.BackgroundAlpha = 1 } }
func noLayout() opt        { return func(n *RawNode) { n.HasLayout = false; n.Bounds = Rect{} } }
func styled(fn func(*Style)) opt {
	return func(n *RawNode) { fn(&n.Style) }
}
func scrolled(s ScrollInfo) opt {
	return func(n *RawNode) {
		n.Style.Overflow = "auto"
		n.Scroll = s
	}
}

func box(x, y, w, h float64) Rect { return Rect{X: x, Y: y, Width: w, Height: h} }

// outline lists processed nodes in document order as "depth:tag", with
// "#id" appended when the raw node has one.
func outline(t *Tree) []string {
	var out []string
	t.Walk(func(n *Node, depth int) bool {
		if n == t.Root {
			return true
		}
		rn := t.Raw.Node(n.Raw)
		s := fmt.Sprintf("%d:%s", depth, rn.Tag)
		if id := rn.Attrs["id"]; id != "" {
			s += "#" + id
		}
		out = append(out, s)
		return true
	})
	return out
}

func lines(s ...string) string { return strings.Join(s, "\n") }
