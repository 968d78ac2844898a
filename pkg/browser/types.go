package browser

import (
	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

// TabInfo describes an open browser tab.
type TabInfo struct {
	TargetID string `json:"targetId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// SnapshotResult is the output of a page snapshot.
type SnapshotResult struct {
	Tree         string               `json:"tree"`
	Selectors    dom.SelectorMap      `json:"selectors"`
	Identities   identity.IdentityMap `json:"identities"`
	ExtractionID string               `json:"extractionId"`
	URL          string               `json:"url"`
	Title        string               `json:"title"`
	TargetID     string               `json:"targetId"`
	Stats        SnapshotStats        `json:"stats"`
	Truncated    bool                 `json:"truncated,omitempty"`
}

// SnapshotStats contains metrics about a snapshot.
type SnapshotStats struct {
	Lines      int       `json:"lines"`
	Chars      int       `json:"chars"`
	Entries    int       `json:"entries"`
	Identities int       `json:"identities"`
	Tokens     int       `json:"tokens,omitempty"`
	Pipeline   dom.Stats `json:"pipeline"`
}

// ActResult is the output of a browser action.
type ActResult struct {
	OK       bool   `json:"ok"`
	TargetID string `json:"targetId"`
	Index    int    `json:"index"`
	URL      string `json:"url,omitempty"`
}

// ClickOpts controls click behavior.
type ClickOpts struct {
	DoubleClick bool
	Button      string // "left", "right", "middle"
}

// TypeOpts controls type behavior.
type TypeOpts struct {
	Submit bool
	Clear  bool
}

// StatusInfo describes the current browser state.
type StatusInfo struct {
	Running bool   `json:"running"`
	Tabs    int    `json:"tabs"`
	URL     string `json:"url,omitempty"` // current tab URL
	Remote  bool   `json:"remote,omitempty"`
}
