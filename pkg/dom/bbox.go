package dom

// FilterBoundingBox collapses inert descendants into the interactive
// ancestor that visually contains them, then runs compound detection.
func FilterBoundingBox(t *Tree, cfg Config) *Tree {
	cfg = cfg.withDefaults()
	out := t.derive(nil)
	if t.Root == nil {
		return out
	}

	b := &bboxPass{raw: t.Raw, threshold: cfg.ContainmentThreshold}
	root := t.Root.shallowCopy()
	for _, c := range t.Root.Children {
		root.Children = append(root.Children, b.walk(c, nil)...)
	}
	out.Root = root
	out.stats.Pruned += b.pruned

	out.stats.Compounds += detectCompounds(out, cfg.Detectors)
	return out
}

type bboxPass struct {
	raw       *RawTree
	threshold float64
	pruned    int
}

// walk copies n. prop is the copy of the nearest propagating ancestor,
// which absorbs the text of pruned descendants.
func (b *bboxPass) walk(n *Node, prop *Node) []*Node {
	rn := &b.raw.Nodes[n.Raw]
	if prop != nil && b.inert(n) {
		anc := &b.raw.Nodes[prop.Raw]
		if ContainmentPct(rn.Bounds, anc.Bounds) >= b.threshold {
			prop.Folded = append(prop.Folded, subtreeText(b.raw, n)...)
			b.pruned += countNodes(n)
			return nil
		}
	}

	c := n.shallowCopy()
	next := prop
	if isPropagating(rn) {
		next = c
	}
	for _, k := range n.Children {
		c.Children = append(c.Children, b.walk(k, next)...)
	}
	return []*Node{c}
}

// inert nodes neither act, identify themselves, nor hold anything that
// does.
func (b *bboxPass) inert(n *Node) bool {
	rn := &b.raw.Nodes[n.Raw]
	if n.Compound != nil || Score(rn) > 0 || hasIdentity(rn) || isScrollContainer(rn) {
		return false
	}
	for _, c := range n.Children {
		if !b.inert(c) {
			return false
		}
	}
	return true
}

// subtreeText collects the visible text of n and its descendants in
// document order.
func subtreeText(raw *RawTree, n *Node) []string {
	var out []string
	if t := ownText(&raw.Nodes[n.Raw]); t != "" {
		out = append(out, t)
	}
	out = append(out, n.Folded...)
	for _, c := range n.Children {
		out = append(out, subtreeText(raw, c)...)
	}
	return out
}

func countNodes(n *Node) int {
	total := 1
	for _, c := range n.Children {
		total += countNodes(c)
	}
	return total
}
