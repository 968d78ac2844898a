package dom

import (
	"strconv"
	"strings"
)

// interactiveRoles are ARIA roles users can act on.
var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"textbox":          true,
	"checkbox":         true,
	"radio":            true,
	"combobox":         true,
	"listbox":          true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"option":           true,
	"searchbox":        true,
	"slider":           true,
	"spinbutton":       true,
	"switch":           true,
	"tab":              true,
	"treeitem":         true,
}

// propagatingRoles mark containers whose box stands for everything drawn
// inside them.
var propagatingRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"combobox": true,
	"menuitem": true,
	"option":   true,
	"tab":      true,
	"checkbox": true,
	"radio":    true,
	"switch":   true,
	"treeitem": true,
}

var propagatingTags = map[string]bool{
	"a":      true,
	"button": true,
}

var formControlTags = map[string]bool{
	"input":    true,
	"select":   true,
	"textarea": true,
}

// IsInteractive returns true if the role represents an interactive element.
func IsInteractive(role string) bool {
	return interactiveRoles[role]
}

// ExplicitRole is the first token of the role attribute.
func ExplicitRole(attrs map[string]string) string {
	fields := strings.Fields(strings.ToLower(attrs["role"]))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Role is the explicit role, or the implicit role of common elements.
func Role(n *RawNode) string {
	if r := ExplicitRole(n.Attrs); r != "" {
		return r
	}
	switch n.Tag {
	case "a":
		if _, ok := n.Attrs["href"]; ok {
			return "link"
		}
	case "button":
		return "button"
	case "select":
		if _, ok := n.Attrs["multiple"]; ok {
			return "listbox"
		}
		return "combobox"
	case "textarea":
		return "textbox"
	case "option":
		return "option"
	case "input":
		return inputRole(n.Attrs)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return "heading"
	case "nav":
		return "navigation"
	case "main":
		return "main"
	case "li":
		return "listitem"
	}
	return ""
}

func inputRole(attrs map[string]string) string {
	switch strings.ToLower(attrs["type"]) {
	case "checkbox":
		return "checkbox"
	case "radio":
		return "radio"
	case "range":
		return "slider"
	case "number":
		return "spinbutton"
	case "search":
		if _, ok := attrs["list"]; ok {
			return "combobox"
		}
		return "searchbox"
	case "button", "submit", "reset", "image":
		return "button"
	case "hidden":
		return ""
	}
	if _, ok := attrs["list"]; ok {
		return "combobox"
	}
	return "textbox"
}

func isEditable(attrs map[string]string) bool {
	v, ok := attrs["contenteditable"]
	if !ok {
		return false
	}
	return v != "false"
}

// Score rates how strongly a node invites interaction. Zero means the
// node is not indexed on its own account.
//
//	5  input (not hidden), select, textarea, contenteditable
//	4  button, a
//	3  interactive ARIA role
//	2  onclick, clickable per the snapshot, tabindex >= 0, label[for]
//	1  cursor: pointer
func Score(n *RawNode) int {
	if n.Kind != KindElement {
		return 0
	}
	switch n.Tag {
	case "input":
		if strings.ToLower(n.Attrs["type"]) != "hidden" {
			return 5
		}
		return 0
	case "select", "textarea":
		return 5
	}
	if isEditable(n.Attrs) {
		return 5
	}
	if n.Tag == "button" || n.Tag == "a" {
		return 4
	}
	if IsInteractive(ExplicitRole(n.Attrs)) {
		return 3
	}
	if _, ok := n.Attrs["onclick"]; ok || n.Clickable {
		return 2
	}
	if ti, ok := n.Attrs["tabindex"]; ok {
		if v, err := strconv.Atoi(strings.TrimSpace(ti)); err == nil && v >= 0 {
			return 2
		}
	}
	if n.Tag == "label" && n.Attrs["for"] != "" {
		return 2
	}
	if n.Style.Cursor == "pointer" {
		return 1
	}
	return 0
}

func isPropagating(n *RawNode) bool {
	return propagatingTags[n.Tag] || propagatingRoles[ExplicitRole(n.Attrs)]
}

// identifying attributes keep an otherwise inert node out of pruning.
var identifyingAttrs = []string{"id", "data-testid", "role", "aria-label", "name"}

func hasIdentity(n *RawNode) bool {
	for _, a := range identifyingAttrs {
		if n.Attrs[a] != "" {
			return true
		}
	}
	return false
}

// isScrollContainer is an element with scrollable overflow whose content
// does not fit.
func isScrollContainer(n *RawNode) bool {
	return n.Kind == KindElement && n.Style.scrolls() && n.Scroll.Overflows()
}
