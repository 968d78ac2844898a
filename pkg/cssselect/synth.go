package cssselect

import (
	_ "embed"
	"strconv"
	"strings"
)

// SynthesisJS is the in-page twin of Synthesize. It is a function
// declaration meant for Runtime.callFunctionOn with the element bound to
// `this`, and returns the selector string.
//
//go:embed synth.js
var SynthesisJS string

// Element is the read-only view of a DOM element the synthesis needs.
// ParentElement must return a nil interface (not a typed nil) when the
// element has no parent element.
type Element interface {
	TagName() string
	Attribute(name string) string
	ParentElement() Element
	// SiblingPosition reports the 1-based position of the element among
	// its parent's element children with the same tag, and how many such
	// children exist.
	SiblingPosition() (pos, count int)
}

var formControlTags = map[string]bool{
	"input":    true,
	"select":   true,
	"textarea": true,
}

// Synthesize builds a selector for el, trying in order:
//
//  1. #id
//  2. [data-testid="…"]
//  3. tag[name="…"] for input, select and textarea
//  4. body > … > tag:nth-of-type(n) structural path
//
// The result is deterministic for an unchanged element.
func Synthesize(el Element) string {
	tag := strings.ToLower(el.TagName())

	if id := el.Attribute("id"); id != "" {
		return "#" + EscapeIdent(id)
	}
	if testID := el.Attribute("data-testid"); testID != "" {
		return `[data-testid="` + Escape(testID) + `"]`
	}
	if formControlTags[tag] {
		if name := el.Attribute("name"); name != "" {
			return tag + `[name="` + Escape(name) + `"]`
		}
	}
	return structuralPath(el, tag)
}

func structuralPath(el Element, tag string) string {
	var segments []string
	for cur := el; cur != nil; {
		curTag := strings.ToLower(cur.TagName())
		if curTag == "body" || curTag == "html" {
			break
		}
		parent := cur.ParentElement()
		if parent == nil {
			break
		}
		seg := curTag
		if pos, count := cur.SiblingPosition(); count > 1 {
			seg += ":nth-of-type(" + strconv.Itoa(pos) + ")"
		}
		segments = append(segments, seg)
		cur = parent
	}
	if len(segments) == 0 {
		return tag
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "body > " + strings.Join(segments, " > ")
}
