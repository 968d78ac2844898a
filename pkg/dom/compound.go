package dom

import (
	"sort"
	"strings"
)

// memberDepth bounds how far below a container detectors look for
// members.
const memberDepth = 3

// Compound groups several nodes that act as one control. The container
// node carries it; Primary is the member used for identity.
type Compound struct {
	Kind    string   `json:"kind"`
	Members []NodeID `json:"members"`
	Primary NodeID   `json:"primary"`
	Roles   []string `json:"roles"`
}

// Label renders the compound for the serialized tree, e.g.
// "combobox: input+button".
func (c *Compound) Label() string {
	return c.Kind + ": " + strings.Join(c.Roles, "+")
}

// View is the read-only capability surface detectors work against.
type View interface {
	ID() NodeID
	Tag() string
	Attr(name string) string
	Role() string
	Score() int
	Text() string
	// IsCompound reports whether the node already heads a compound.
	IsCompound() bool
	Children() []View
}

// Detection is a detector's verdict on one container.
type Detection struct {
	IsCompound bool
	Members    []NodeID
	Primary    NodeID
}

// Detector recognizes one kind of compound control. Detect must be a pure
// function of the view.
type Detector interface {
	Name() string
	Detect(v View) Detection
}

type detectorFunc struct {
	name string
	fn   func(View) Detection
}

func (d detectorFunc) Name() string            { return d.name }
func (d detectorFunc) Detect(v View) Detection { return d.fn(v) }

// NewDetector wraps fn as a named Detector.
func NewDetector(name string, fn func(View) Detection) Detector {
	return detectorFunc{name: name, fn: fn}
}

// DefaultDetectors returns the built-in detectors in the order they are
// tried.
func DefaultDetectors() []Detector {
	return []Detector{
		NewDetector("combobox", detectCombobox),
		NewDetector("labeled-control", detectLabeledControl),
		NewDetector("stepper", detectStepper),
	}
}

type nodeView struct {
	raw *RawTree
	n   *Node
}

func (v nodeView) rn() *RawNode            { return &v.raw.Nodes[v.n.Raw] }
func (v nodeView) ID() NodeID              { return v.n.Raw }
func (v nodeView) Tag() string             { return v.rn().Tag }
func (v nodeView) Attr(name string) string { return v.rn().Attrs[name] }
func (v nodeView) Role() string            { return Role(v.rn()) }
func (v nodeView) Score() int              { return Score(v.rn()) }
func (v nodeView) IsCompound() bool        { return v.n.Compound != nil }

func (v nodeView) Text() string {
	parts := append([]string{ownText(v.rn())}, v.n.Folded...)
	return collapseSpace(strings.Join(parts, " "))
}

func (v nodeView) Children() []View {
	out := make([]View, len(v.n.Children))
	for i, c := range v.n.Children {
		out[i] = nodeView{raw: v.raw, n: c}
	}
	return out
}

// descendants lists views below v in document order, down to depth
// levels. Form controls are leaves and existing compounds are skipped.
func descendants(v View, depth int) []View {
	if depth == 0 {
		return nil
	}
	var out []View
	for _, c := range v.Children() {
		if c.IsCompound() {
			continue
		}
		out = append(out, c)
		if !formControlTags[c.Tag()] {
			out = append(out, descendants(c, depth-1)...)
		}
	}
	return out
}

var textInputTypes = map[string]bool{
	"": true, "text": true, "search": true, "email": true,
	"url": true, "tel": true, "password": true,
}

func isTextEntry(v View) bool {
	switch v.Tag() {
	case "input":
		return textInputTypes[strings.ToLower(v.Attr("type"))]
	case "textarea":
		return true
	case "select":
		return false
	}
	if e := v.Attr("contenteditable"); e != "" && e != "false" {
		return true
	}
	switch v.Role() {
	case "textbox", "searchbox", "combobox":
		return true
	}
	return false
}

func isToggle(v View) bool {
	return v.Tag() == "button" || v.Role() == "button" || v.Attr("aria-haspopup") != ""
}

func hasComboSemantics(v View) bool {
	if v.Role() == "combobox" || v.Attr("aria-autocomplete") != "" || v.Attr("list") != "" {
		return true
	}
	switch v.Attr("aria-haspopup") {
	case "listbox", "true":
		return true
	}
	return false
}

func isNumberInput(v View) bool {
	return (v.Tag() == "input" && strings.ToLower(v.Attr("type")) == "number") || v.Role() == "spinbutton"
}

func isFormControl(v View) bool {
	if !formControlTags[v.Tag()] {
		return false
	}
	return v.Tag() != "input" || strings.ToLower(v.Attr("type")) != "hidden"
}

func ids(primary View, rest []View) []NodeID {
	out := []NodeID{primary.ID()}
	for _, v := range rest {
		out = append(out, v.ID())
	}
	return out
}

// detectCombobox: a text field plus a toggle that opens a list.
func detectCombobox(v View) Detection {
	if formControlTags[v.Tag()] || v.Tag() == "button" {
		return Detection{}
	}
	var texts, toggles []View
	for _, d := range descendants(v, memberDepth) {
		switch {
		case isTextEntry(d):
			texts = append(texts, d)
		case isToggle(d):
			toggles = append(toggles, d)
		}
	}
	if len(texts) != 1 || len(toggles) == 0 {
		return Detection{}
	}
	if !hasComboSemantics(v) && !hasComboSemantics(texts[0]) {
		return Detection{}
	}
	return Detection{IsCompound: true, Members: ids(texts[0], toggles), Primary: texts[0].ID()}
}

// detectLabeledControl: a label wrapping one form control and the content
// describing it.
func detectLabeledControl(v View) Detection {
	if formControlTags[v.Tag()] {
		return Detection{}
	}
	switch {
	case v.Tag() == "label":
	case v.Role() == "checkbox", v.Role() == "radio", v.Role() == "switch":
	default:
		return Detection{}
	}
	var controls, others []View
	for _, d := range descendants(v, memberDepth) {
		switch {
		case isFormControl(d):
			controls = append(controls, d)
		case d.Text() != "" || d.Score() > 0:
			others = append(others, d)
		}
	}
	if len(controls) != 1 || len(others) == 0 {
		return Detection{}
	}
	return Detection{IsCompound: true, Members: ids(controls[0], others), Primary: controls[0].ID()}
}

// detectStepper: a number field with increment/decrement buttons.
func detectStepper(v View) Detection {
	if formControlTags[v.Tag()] || v.Tag() == "button" {
		return Detection{}
	}
	var numbers, buttons []View
	for _, d := range descendants(v, memberDepth) {
		switch {
		case isNumberInput(d):
			numbers = append(numbers, d)
		case d.Tag() == "button" || d.Role() == "button":
			buttons = append(buttons, d)
		}
	}
	if len(numbers) != 1 || len(buttons) == 0 {
		return Detection{}
	}
	return Detection{IsCompound: true, Members: ids(numbers[0], buttons), Primary: numbers[0].ID()}
}

// pageContainers never head a compound.
var pageContainers = map[string]bool{"html": true, "body": true}

// detectCompounds runs detectors over t innermost container first, so a
// control groups with its closest wrapper. For each container the first
// matching detector wins. It returns how many compounds were formed.
func detectCompounds(t *Tree, detectors []Detector) int {
	count := 0
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, c := range n.Children {
			visit(c)
		}
		if n == t.Root || n.Compound != nil || pageContainers[t.Raw.Nodes[n.Raw].Tag] {
			return
		}
		for _, d := range detectors {
			det := d.Detect(nodeView{raw: t.Raw, n: n})
			if !validDetection(n, det) {
				continue
			}
			applyCompound(t.Raw, n, d.Name(), det)
			count++
			return
		}
	}
	if t.Root != nil {
		visit(t.Root)
	}
	return count
}

// validDetection rejects verdicts whose members are not distinct nodes
// strictly inside container or whose primary is not a member.
func validDetection(container *Node, det Detection) bool {
	if !det.IsCompound || len(det.Members) < 2 {
		return false
	}
	inside := make(map[NodeID]bool)
	var collect func(n *Node)
	collect = func(n *Node) {
		for _, c := range n.Children {
			inside[c.Raw] = true
			collect(c)
		}
	}
	collect(container)

	seen := make(map[NodeID]bool, len(det.Members))
	primary := false
	for _, m := range det.Members {
		if !inside[m] || seen[m] {
			return false
		}
		seen[m] = true
		primary = primary || m == det.Primary
	}
	return primary
}

func applyCompound(raw *RawTree, container *Node, kind string, det Detection) {
	members := append([]NodeID(nil), det.Members...)
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	isMember := make(map[NodeID]bool, len(members))
	roles := make([]string, 0, len(members))
	for _, m := range members {
		isMember[m] = true
		rn := &raw.Nodes[m]
		role := ExplicitRole(rn.Attrs)
		if role == "" {
			role = rn.Tag
		}
		roles = append(roles, role)
	}

	var strip func(n *Node)
	strip = func(n *Node) {
		kept := n.Children[:0]
		for _, c := range n.Children {
			if isMember[c.Raw] {
				container.Folded = append(container.Folded, subtreeText(raw, c)...)
				continue
			}
			strip(c)
			kept = append(kept, c)
		}
		n.Children = kept
	}
	strip(container)

	container.Compound = &Compound{
		Kind:    kind,
		Members: members,
		Primary: det.Primary,
		Roles:   roles,
	}
}
