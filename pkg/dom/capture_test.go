package dom

import (
	"errors"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
)

type strtab struct {
	strs []string
	idx  map[string]proto.DOMSnapshotStringIndex
}

func (s *strtab) i(v string) proto.DOMSnapshotStringIndex {
	if s.idx == nil {
		s.idx = make(map[string]proto.DOMSnapshotStringIndex)
	}
	if i, ok := s.idx[v]; ok {
		return i
	}
	i := proto.DOMSnapshotStringIndex(len(s.strs))
	s.strs = append(s.strs, v)
	s.idx[v] = i
	return i
}

func (s *strtab) styles(display, visibility, opacity, overflow, cursor, bg string) proto.DOMSnapshotArrayOfStrings {
	return proto.DOMSnapshotArrayOfStrings{
		s.i(display), s.i(visibility), s.i(opacity), s.i(overflow), s.i("auto"), s.i(cursor), s.i(bg),
	}
}

func sampleSnapshot() *proto.DOMSnapshotCaptureSnapshotResult {
	s := &strtab{}
	none := proto.DOMSnapshotStringIndex(-1)
	type raw struct {
		parent int
		typ    int
		name   string
		value  string
		attrs  []string
	}
	nodes := []raw{
		{-1, 9, "#document", "", nil},       // 0
		{0, 1, "HTML", "", nil},             // 1
		{1, 1, "HEAD", "", nil},             // 2
		{2, 1, "TITLE", "", nil},            // 3
		{1, 1, "BODY", "", nil},             // 4
		{4, 1, "DIV", "", []string{"id", "main", "ROLE", "region"}}, // 5
		{5, 3, "#text", "  hello\n  world ", nil},                  // 6
		{4, 1, "SCRIPT", "", nil},                                   // 7
		{7, 3, "#text", "var x", nil},                               // 8
		{4, 1, "INPUT", "", []string{"name", "q"}},                  // 9
		{5, 1, "::before", "", nil},                                 // 10
		{5, 8, "#comment", "note", nil},                             // 11
		{5, 3, "#text", "again", nil},                               // 12
	}

	tree := &proto.DOMSnapshotNodeTreeSnapshot{}
	for i, n := range nodes {
		tree.ParentIndex = append(tree.ParentIndex, n.parent)
		tree.NodeType = append(tree.NodeType, n.typ)
		tree.NodeName = append(tree.NodeName, s.i(n.name))
		if n.value == "" {
			tree.NodeValue = append(tree.NodeValue, none)
		} else {
			tree.NodeValue = append(tree.NodeValue, s.i(n.value))
		}
		tree.BackendNodeID = append(tree.BackendNodeID, proto.DOMBackendNodeID(500+i))
		var attrs proto.DOMSnapshotArrayOfStrings
		for _, a := range n.attrs {
			attrs = append(attrs, s.i(a))
		}
		tree.Attributes = append(tree.Attributes, attrs)
	}
	tree.InputValue = &proto.DOMSnapshotRareStringData{Index: []int{9}, Value: []proto.DOMSnapshotStringIndex{s.i("typed")}}
	tree.IsClickable = &proto.DOMSnapshotRareBooleanData{Index: []int{9}}
	tree.PseudoType = &proto.DOMSnapshotRareStringData{Index: []int{10}, Value: []proto.DOMSnapshotStringIndex{s.i("before")}}

	layout := &proto.DOMSnapshotLayoutTreeSnapshot{
		NodeIndex: []int{1, 4, 5, 6, 9},
		Bounds: []proto.DOMSnapshotRectangle{
			{0, 0, 1280, 2000},
			{0, 0, 1280, 2000},
			{10, 150, 300, 200},
			{12, 152, 50, 16},
			{10, 400, 200, 30},
		},
		Styles: []proto.DOMSnapshotArrayOfStrings{
			s.styles("block", "visible", "1", "visible", "auto", "rgba(0, 0, 0, 0)"),
			s.styles("block", "visible", "1", "visible", "auto", "rgb(255, 255, 255)"),
			s.styles("flex", "visible", "0.5", "hidden auto", "pointer", "rgba(10, 20, 30, 0.25)"),
			s.styles("", "", "", "", "", ""),
			s.styles("inline-block", "visible", "1", "visible", "text", "transparent"),
		},
		PaintOrders: []int{0, 1, 2, 3, 4},
		ScrollRects: []proto.DOMSnapshotRectangle{
			{0, 0, 1280, 2000},
			{0, 0, 1280, 2000},
			{0, 40, 300, 900},
			{0, 0, 0, 0},
			{0, 0, 200, 30},
		},
		ClientRects: []proto.DOMSnapshotRectangle{
			{0, 0, 1280, 800},
			{0, 0, 1280, 2000},
			{0, 0, 300, 200},
			{0, 0, 0, 0},
			{0, 0, 200, 30},
		},
	}

	scrollY := 100.0
	return &proto.DOMSnapshotCaptureSnapshotResult{
		Documents: []*proto.DOMSnapshotDocumentSnapshot{{
			Nodes:         tree,
			Layout:        layout,
			ScrollOffsetY: &scrollY,
		}},
		Strings: s.strs,
	}
}

func TestBuildRawTree(t *testing.T) {
	raw, err := BuildRawTree(sampleSnapshot(), testViewport)
	if err != nil {
		t.Fatalf("BuildRawTree() error = %v", err)
	}

	var tags []string
	for _, n := range raw.Nodes {
		tags = append(tags, n.Tag)
	}
	if diff := cmp.Diff([]string{"#document", "html", "body", "div", "input"}, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if raw.Root != 0 || raw.Nodes[0].Kind != KindDocument {
		t.Errorf("root = %d kind %v, want document at 0", raw.Root, raw.Nodes[0].Kind)
	}
	if raw.Nodes[3].Parent != 2 || raw.Nodes[4].Parent != 2 {
		t.Errorf("div parent %d, input parent %d, want body (2)", raw.Nodes[3].Parent, raw.Nodes[4].Parent)
	}

	div := raw.Nodes[3]
	if div.Text != "hello world again" {
		t.Errorf("div text = %q", div.Text)
	}
	if diff := cmp.Diff(map[string]string{"id": "main", "role": "region"}, div.Attrs); diff != "" {
		t.Errorf("div attrs mismatch (-want +got):\n%s", diff)
	}
	if want := (Rect{X: 10, Y: 50, Width: 300, Height: 200}); div.Bounds != want {
		t.Errorf("div bounds = %+v, want %+v", div.Bounds, want)
	}
	wantStyle := Style{
		Display:         "flex",
		Visibility:      "visible",
		Opacity:         0.5,
		Overflow:        "hidden auto",
		PointerEvents:   "auto",
		Cursor:          "pointer",
		BackgroundAlpha: 0.25,
	}
	if diff := cmp.Diff(wantStyle, div.Style); diff != "" {
		t.Errorf("div style mismatch (-want +got):\n%s", diff)
	}
	if want := (ScrollInfo{Top: 40, Width: 300, Height: 900, ClientWidth: 300, ClientHeight: 200}); div.Scroll != want {
		t.Errorf("div scroll = %+v, want %+v", div.Scroll, want)
	}
	if div.BackendNodeID != 505 {
		t.Errorf("div backend id = %d, want 505", div.BackendNodeID)
	}

	input := raw.Nodes[4]
	if input.Value != "typed" || !input.Clickable || !input.HasLayout {
		t.Errorf("input = %+v", input)
	}
	if raw.Nodes[2].Style.BackgroundAlpha != 1 {
		t.Errorf("body background alpha = %v, want 1", raw.Nodes[2].Style.BackgroundAlpha)
	}
}

func TestBuildRawTreeEmpty(t *testing.T) {
	tests := []struct {
		name string
		res  *proto.DOMSnapshotCaptureSnapshotResult
	}{
		{"nil", nil},
		{"no documents", &proto.DOMSnapshotCaptureSnapshotResult{}},
		{"no nodes", &proto.DOMSnapshotCaptureSnapshotResult{
			Documents: []*proto.DOMSnapshotDocumentSnapshot{{Nodes: &proto.DOMSnapshotNodeTreeSnapshot{}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildRawTree(tt.res, testViewport); !errors.Is(err, ErrEmptySnapshot) {
				t.Errorf("error = %v, want ErrEmptySnapshot", err)
			}
		})
	}
}

func TestColorAlpha(t *testing.T) {
	tests := map[string]float64{
		"":                      0,
		"transparent":           0,
		"rgb(1, 2, 3)":          1,
		"rgba(1, 2, 3, 0.4)":    0.4,
		"rgba(1, 2, 3, 1)":      1,
		"rgba(broken)":          0,
		"color(srgb 1 0 0 / 1)": 0,
	}
	for in, want := range tests {
		if got := colorAlpha(in); got != want {
			t.Errorf("colorAlpha(%q) = %v, want %v", in, got, want)
		}
	}
}
