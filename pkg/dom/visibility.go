package dom

// FilterVisibility derives the first processed tree from raw, keeping
// only nodes a user could see. A node that fails its own check is
// replaced by its surviving children, except that display:none and
// opacity:0 hide the whole subtree.
func FilterVisibility(raw *RawTree, cfg Config) *Tree {
	cfg = cfg.withDefaults()
	t := &Tree{Raw: raw, visible: make([]bool, len(raw.Nodes))}
	if raw.Root == NoNode {
		return t
	}

	var clips []Rect
	if cfg.ViewportExpansion >= 0 {
		clips = append(clips, raw.Viewport.Expand(cfg.ViewportExpansion))
	}

	v := &visibilityPass{raw: raw, visible: t.visible}
	root := &Node{Raw: raw.Root}
	t.visible[raw.Root] = true
	for _, c := range raw.Nodes[raw.Root].Children {
		kids, _ := v.walk(c, clips)
		root.Children = append(root.Children, kids...)
	}
	t.Root = root
	t.stats.Visible = t.Len()
	return t
}

type visibilityPass struct {
	raw     *RawTree
	visible []bool
}

// walk returns the processed nodes standing in for id and whether any of
// them is interactive.
func (v *visibilityPass) walk(id NodeID, clips []Rect) ([]*Node, bool) {
	n := &v.raw.Nodes[id]
	if n.Style.Display == "none" || n.Style.Opacity <= 0 {
		return nil, false
	}

	hidden := n.Style.Visibility == "hidden" || n.Style.Visibility == "collapse"
	shown := n.HasLayout && n.Bounds.Area() > 0 && !hidden && withinClips(n.Bounds, clips)

	childClips := clips
	if n.HasLayout {
		switch {
		case n.Style.scrolls():
			childClips = appendClip(clips, scrollRegion(n))
		case n.Style.clips():
			childClips = appendClip(clips, n.Bounds)
		}
	}

	var kids []*Node
	interactive := false
	for _, c := range n.Children {
		k, ki := v.walk(c, childClips)
		kids = append(kids, k...)
		interactive = interactive || ki
	}

	if !shown {
		return kids, interactive
	}
	v.visible[id] = true

	self := Score(n) > 0
	if !self && !interactive && !isScrollContainer(n) && !hasContent(n) {
		return kids, false
	}
	return []*Node{{Raw: id, Children: kids}}, self || interactive
}

func withinClips(r Rect, clips []Rect) bool {
	for _, c := range clips {
		if !r.Intersects(c) {
			return false
		}
	}
	return true
}

func appendClip(clips []Rect, r Rect) []Rect {
	out := make([]Rect, len(clips), len(clips)+1)
	copy(out, clips)
	return append(out, r)
}

// scrollRegion is the box content of a scroll container can be scrolled
// through.
func scrollRegion(n *RawNode) Rect {
	r := Rect{
		X:      n.Bounds.X - n.Scroll.Left,
		Y:      n.Bounds.Y - n.Scroll.Top,
		Width:  n.Scroll.Width,
		Height: n.Scroll.Height,
	}
	if r.Width < n.Bounds.Width {
		r.Width = n.Bounds.Width
	}
	if r.Height < n.Bounds.Height {
		r.Height = n.Bounds.Height
	}
	return r
}

// hasContent reports whether a node carries text a reader would see.
func hasContent(n *RawNode) bool {
	return ownText(n) != ""
}

// ownText is the node's visible text: inline text, the value of form
// controls, or alt text for images.
func ownText(n *RawNode) string {
	if t := collapseSpace(n.Text); t != "" {
		return t
	}
	switch n.Tag {
	case "input", "textarea", "select":
		return collapseSpace(n.Value)
	case "img":
		return collapseSpace(n.Attrs["alt"])
	}
	return ""
}
