package dom

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/pagelens/pkg/cssselect"
)

// SelectorMap maps a 1-based index from the serialized tree to a CSS
// selector for the element behind it.
type SelectorMap map[int]string

// Indices returns the map's keys in ascending order.
func (m SelectorMap) Indices() []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Entry describes one indexed line of the serialized tree.
type Entry struct {
	Index int    `json:"index"`
	Node  NodeID `json:"node"`
	// BackendNodeID is the capture-time id of the node the selector
	// targets: the compound's primary member, or the node itself.
	BackendNodeID int64  `json:"backendNodeId"`
	Tag           string `json:"tag"`
	Selector      string `json:"selector"`
	Compound      string `json:"compound,omitempty"`
}

// Stats counts what each stage kept and dropped.
type Stats struct {
	RawNodes  int `json:"rawNodes"`
	Visible   int `json:"visible"`
	Occluded  int `json:"occluded"`
	Pruned    int `json:"pruned"`
	Compounds int `json:"compounds"`
	Indexed   int `json:"indexed"`
}

// Result is the output of one extraction.
type Result struct {
	ExtractionID string      `json:"extractionId"`
	Tree         string      `json:"tree"`
	Selectors    SelectorMap `json:"selectors"`
	Entries      []Entry     `json:"entries"`
	Stats        Stats       `json:"stats"`
}

// serializedAttrs are rendered on indexed lines, in this order.
var serializedAttrs = []string{"id", "role", "name", "placeholder", "aria-label", "type"}

// widths ignores the locale so output is the same on every host.
var widths = &runewidth.Condition{EastAsianWidth: false, StrictEmojiNeutral: true}

// Serialize renders t depth-first in document order. Every indexed line
// gets the next index, counting from 1 for each call, and the selector
// for it is recorded under the same index.
func Serialize(t *Tree, opts Options) *Result {
	opts = opts.withDefaults()
	s := &serializer{raw: t.Raw, opts: opts, selectors: SelectorMap{}}
	if t.Root != nil {
		for _, c := range t.Root.Children {
			s.walk(c, 0)
		}
	}

	stats := t.stats
	stats.RawNodes = len(t.Raw.Nodes)
	stats.Indexed = len(s.entries)
	return &Result{
		Tree:      strings.TrimSuffix(s.b.String(), "\n"),
		Selectors: s.selectors,
		Entries:   s.entries,
		Stats:     stats,
	}
}

type serializer struct {
	raw       *RawTree
	opts      Options
	b         strings.Builder
	next      int
	selectors SelectorMap
	entries   []Entry
}

func (s *serializer) walk(n *Node, depth int) {
	rn := &s.raw.Nodes[n.Raw]
	indent := strings.Repeat("  ", depth)
	text := s.text(n)
	scroll := isScrollContainer(rn)

	switch {
	case n.Compound != nil || scroll || Score(rn) > 0:
		s.next++
		idx := s.next
		target := n.Raw
		kind := ""
		if n.Compound != nil {
			target = n.Compound.Primary
			kind = n.Compound.Kind
		}
		sel := cssselect.Synthesize(s.raw.Element(target))
		s.selectors[idx] = sel
		s.entries = append(s.entries, Entry{
			Index:         idx,
			Node:          n.Raw,
			BackendNodeID: s.raw.Nodes[target].BackendNodeID,
			Tag:           rn.Tag,
			Selector:      sel,
			Compound:      kind,
		})

		fmt.Fprintf(&s.b, "%s[%d]<%s%s>%s", indent, idx, rn.Tag, renderAttrs(rn), text)
		if n.Compound != nil && s.opts.IncludeCompounds {
			fmt.Fprintf(&s.b, " {%s}", n.Compound.Label())
		}
		if scroll {
			s.b.WriteString(scrollAnnotation(rn.Scroll))
		}
		s.b.WriteByte('\n')
	case text != "":
		fmt.Fprintf(&s.b, "%s%s\n", indent, text)
	case s.opts.IncludeStructure:
		fmt.Fprintf(&s.b, "%s<%s>\n", indent, rn.Tag)
	default:
		for _, c := range n.Children {
			s.walk(c, depth)
		}
		return
	}

	for _, c := range n.Children {
		s.walk(c, depth+1)
	}
}

// text is the node's own text plus folded descendant text, collapsed and
// truncated to the configured display width.
func (s *serializer) text(n *Node) string {
	parts := make([]string, 0, 1+len(n.Folded))
	parts = append(parts, ownText(&s.raw.Nodes[n.Raw]))
	parts = append(parts, n.Folded...)
	text := collapseSpace(strings.Join(parts, " "))
	return widths.Truncate(text, s.opts.MaxTextLength, s.opts.Ellipsis)
}

func renderAttrs(n *RawNode) string {
	var b strings.Builder
	for _, name := range serializedAttrs {
		v, ok := n.Attrs[name]
		if !ok || v == "" {
			continue
		}
		fmt.Fprintf(&b, " %s=%q", name, v)
	}
	return b.String()
}

func scrollAnnotation(s ScrollInfo) string {
	above := math.Max(0, math.Round(s.Top))
	below := math.Max(0, math.Round(s.Height-s.ClientHeight-s.Top))
	return fmt.Sprintf(" |scroll %d↑ %d↓|", int(above), int(below))
}
