package dom

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ErrEmptySnapshot is returned when the page produced no document.
var ErrEmptySnapshot = errors.New("empty dom snapshot")

// captureStyles are requested from DOMSnapshot in this order; styleIdx
// constants index into each node's style array.
var captureStyles = []string{
	"display",
	"visibility",
	"opacity",
	"overflow",
	"pointer-events",
	"cursor",
	"background-color",
}

const (
	styleDisplay = iota
	styleVisibility
	styleOpacity
	styleOverflow
	stylePointerEvents
	styleCursor
	styleBackground
)

// skippedTags never render content a user reads; their subtrees are
// dropped at capture.
var skippedTags = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"meta":     true,
	"link":     true,
}

const (
	nodeTypeElement  = 1
	nodeTypeText     = 3
	nodeTypeDocument = 9
)

// Capture snapshots the page's main frame and builds a RawTree from it.
func Capture(ctx context.Context, page *rod.Page) (*RawTree, error) {
	p := page.Context(ctx)
	snap, err := proto.DOMSnapshotCaptureSnapshot{
		ComputedStyles:    captureStyles,
		IncludePaintOrder: true,
		IncludeDOMRects:   true,
	}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}

	metrics, err := proto.PageGetLayoutMetrics{}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("layout metrics: %w", err)
	}
	var viewport Rect
	if vp := metrics.CSSLayoutViewport; vp != nil {
		viewport = Rect{Width: float64(vp.ClientWidth), Height: float64(vp.ClientHeight)}
	}
	return BuildRawTree(snap, viewport)
}

// BuildRawTree converts the first document of a DOMSnapshot into a
// RawTree. Element and document nodes become RawNodes, text nodes fold
// into their parent's Text, and shadow roots, pseudo elements and
// non-rendering subtrees are skipped. Bounds are shifted into viewport
// coordinates by the document scroll offset.
func BuildRawTree(res *proto.DOMSnapshotCaptureSnapshotResult, viewport Rect) (*RawTree, error) {
	if res == nil || len(res.Documents) == 0 || res.Documents[0].Nodes == nil {
		return nil, ErrEmptySnapshot
	}
	doc := res.Documents[0]
	nodes := doc.Nodes
	if len(nodes.NodeType) == 0 {
		return nil, ErrEmptySnapshot
	}

	b := &treeBuilder{
		strs:   res.Strings,
		nodes:  nodes,
		layout: doc.Layout,
		tree:   NewRawTree(viewport),
	}
	if doc.ScrollOffsetX != nil {
		b.scrollX = *doc.ScrollOffsetX
	}
	if doc.ScrollOffsetY != nil {
		b.scrollY = *doc.ScrollOffsetY
	}
	b.index()

	// mapped[i] is the RawTree id of snapshot node i, or NoNode when the
	// node (or an ancestor) was skipped.
	mapped := make([]NodeID, len(nodes.NodeType))
	for i := range nodes.NodeType {
		mapped[i] = NoNode
		parent := NoNode
		if i < len(nodes.ParentIndex) && nodes.ParentIndex[i] >= 0 {
			pi := nodes.ParentIndex[i]
			if pi >= i || mapped[pi] == NoNode {
				continue
			}
			parent = mapped[pi]
		} else if b.tree.Root != NoNode {
			continue
		}

		switch nodes.NodeType[i] {
		case nodeTypeText:
			if parent != NoNode {
				pn := b.tree.Node(parent)
				pn.Text = joinText(pn.Text, b.str(nodes.NodeValue, i))
			}
		case nodeTypeDocument:
			if parent == NoNode {
				mapped[i] = b.tree.Add(NoNode, RawNode{
					Kind:          KindDocument,
					Tag:           "#document",
					BackendNodeID: b.backendID(i),
					Bounds:        viewport,
					HasLayout:     true,
					Style:         DefaultStyle(),
				})
			}
		case nodeTypeElement:
			if b.pseudo[i] {
				continue
			}
			tag := strings.ToLower(b.str(nodes.NodeName, i))
			if skippedTags[tag] {
				continue
			}
			if parent == NoNode {
				parent = b.tree.Add(NoNode, RawNode{Kind: KindDocument, Tag: "#document", Bounds: viewport, HasLayout: true, Style: DefaultStyle()})
			}
			mapped[i] = b.tree.Add(parent, b.element(i, tag))
		}
	}
	if b.tree.Root == NoNode {
		return nil, ErrEmptySnapshot
	}
	return b.tree, nil
}

type treeBuilder struct {
	strs    []string
	nodes   *proto.DOMSnapshotNodeTreeSnapshot
	layout  *proto.DOMSnapshotLayoutTreeSnapshot
	tree    *RawTree
	scrollX float64
	scrollY float64

	layoutOf  map[int]int
	clickable map[int]bool
	pseudo    map[int]bool
	values    map[int]string
}

func (b *treeBuilder) index() {
	b.layoutOf = make(map[int]int)
	if b.layout != nil {
		for li, ni := range b.layout.NodeIndex {
			if _, ok := b.layoutOf[ni]; !ok {
				b.layoutOf[ni] = li
			}
		}
	}
	b.clickable = make(map[int]bool)
	if rb := b.nodes.IsClickable; rb != nil {
		for _, i := range rb.Index {
			b.clickable[i] = true
		}
	}
	b.pseudo = make(map[int]bool)
	if rs := b.nodes.PseudoType; rs != nil {
		for _, i := range rs.Index {
			b.pseudo[i] = true
		}
	}
	b.values = make(map[int]string)
	if rs := b.nodes.InputValue; rs != nil {
		for k, i := range rs.Index {
			if k < len(rs.Value) {
				b.values[i] = b.lookup(rs.Value[k])
			}
		}
	}
}

func (b *treeBuilder) lookup(idx proto.DOMSnapshotStringIndex) string {
	if idx < 0 || int(idx) >= len(b.strs) {
		return ""
	}
	return b.strs[idx]
}

func (b *treeBuilder) str(col []proto.DOMSnapshotStringIndex, i int) string {
	if i >= len(col) {
		return ""
	}
	return b.lookup(col[i])
}

func (b *treeBuilder) backendID(i int) int64 {
	if i >= len(b.nodes.BackendNodeID) {
		return 0
	}
	return int64(b.nodes.BackendNodeID[i])
}

func (b *treeBuilder) element(i int, tag string) RawNode {
	n := RawNode{
		Kind:          KindElement,
		Tag:           tag,
		BackendNodeID: b.backendID(i),
		Attrs:         make(map[string]string),
		Clickable:     b.clickable[i],
		Value:         b.values[i],
		Style:         DefaultStyle(),
	}
	if i < len(b.nodes.Attributes) {
		attrs := b.nodes.Attributes[i]
		for k := 0; k+1 < len(attrs); k += 2 {
			n.Attrs[strings.ToLower(b.lookup(attrs[k]))] = b.lookup(attrs[k+1])
		}
	}

	li, ok := b.layoutOf[i]
	if !ok {
		return n
	}
	n.HasLayout = true
	if r := rectAt(b.layout.Bounds, li); r != nil {
		n.Bounds = Rect{X: r[0] - b.scrollX, Y: r[1] - b.scrollY, Width: r[2], Height: r[3]}
	}
	if li < len(b.layout.PaintOrders) {
		n.PaintOrder = b.layout.PaintOrders[li]
	}
	if li < len(b.layout.Styles) {
		n.Style = b.style(b.layout.Styles[li])
	}
	if s := rectAt(b.layout.ScrollRects, li); s != nil {
		n.Scroll.Left, n.Scroll.Top, n.Scroll.Width, n.Scroll.Height = s[0], s[1], s[2], s[3]
	}
	if c := rectAt(b.layout.ClientRects, li); c != nil {
		n.Scroll.ClientWidth, n.Scroll.ClientHeight = c[2], c[3]
	}
	return n
}

func rectAt(rects []proto.DOMSnapshotRectangle, i int) []float64 {
	if i >= len(rects) || len(rects[i]) < 4 {
		return nil
	}
	return rects[i]
}

func (b *treeBuilder) style(values proto.DOMSnapshotArrayOfStrings) Style {
	get := func(k int) string {
		if k >= len(values) {
			return ""
		}
		return b.lookup(values[k])
	}
	s := Style{
		Display:         get(styleDisplay),
		Visibility:      get(styleVisibility),
		Opacity:         1,
		Overflow:        get(styleOverflow),
		PointerEvents:   get(stylePointerEvents),
		Cursor:          get(styleCursor),
		BackgroundAlpha: colorAlpha(get(styleBackground)),
	}
	if o, err := strconv.ParseFloat(get(styleOpacity), 64); err == nil {
		s.Opacity = o
	}
	return s
}

// colorAlpha reads the alpha channel of a computed CSS color:
// "rgb(…)" is opaque, "rgba(…, a)" carries it, "transparent" is 0.
func colorAlpha(c string) float64 {
	c = strings.TrimSpace(c)
	switch {
	case c == "" || c == "transparent":
		return 0
	case strings.HasPrefix(c, "rgba("):
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(c, "rgba("), ")"), ",")
		if len(parts) != 4 {
			return 0
		}
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return 0
		}
		return a
	case strings.HasPrefix(c, "rgb("):
		return 1
	}
	return 0
}

func joinText(a, b string) string {
	b = collapseSpace(b)
	if b == "" {
		return a
	}
	if a == "" {
		return b
	}
	return a + " " + b
}
