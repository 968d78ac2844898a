package dom

var opaqueTags = map[string]bool{
	"img":    true,
	"video":  true,
	"canvas": true,
	"iframe": true,
	"svg":    true,
}

func isOpaque(n *RawNode) bool {
	if n.Kind != KindElement || n.Style.Opacity < 1 {
		return false
	}
	return n.Style.BackgroundAlpha >= 1 || opaqueTags[n.Tag]
}

// FilterPaintOrder removes nodes hidden behind an opaque element painted
// later. Occluders come from every rendered raw node, including ones the
// visibility stage collapsed, so an empty backdrop still hides what is
// under it.
func FilterPaintOrder(t *Tree, cfg Config) *Tree {
	cfg = cfg.withDefaults()
	raw := t.Raw

	var occluders []NodeID
	for i := range raw.Nodes {
		id := NodeID(i)
		if t.Visible(id) && isOpaque(&raw.Nodes[i]) {
			occluders = append(occluders, id)
		}
	}

	out := t.derive(nil)
	if t.Root == nil {
		return out
	}
	p := &paintPass{raw: raw, occluders: occluders, threshold: cfg.OcclusionThreshold}
	root := t.Root.shallowCopy()
	for _, c := range t.Root.Children {
		root.Children = append(root.Children, p.walk(c)...)
	}
	out.Root = root
	out.stats.Occluded += p.removed
	return out
}

type paintPass struct {
	raw       *RawTree
	occluders []NodeID
	threshold float64
	removed   int
}

func (p *paintPass) walk(n *Node) []*Node {
	var kids []*Node
	for _, c := range n.Children {
		kids = append(kids, p.walk(c)...)
	}
	if p.occluded(n.Raw) {
		p.removed++
		return kids
	}
	c := n.shallowCopy()
	c.Children = kids
	return []*Node{c}
}

// occluded reports whether an opaque node painted after a covers it. A
// node's own descendants never hide it, but an ancestor whose background
// paints later (a negative z-index child) does.
func (p *paintPass) occluded(a NodeID) bool {
	an := &p.raw.Nodes[a]
	for _, b := range p.occluders {
		if b == a || p.raw.IsAncestor(a, b) {
			continue
		}
		bn := &p.raw.Nodes[b]
		later := bn.PaintOrder > an.PaintOrder || (bn.PaintOrder == an.PaintOrder && b > a)
		if later && coverage(an.Bounds, bn.Bounds) >= p.threshold {
			return true
		}
	}
	return false
}
