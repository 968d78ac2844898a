// Package identity maps serialized-tree indices to element identities
// that outlive the extraction, and turns identities back into selectors.
//
// A Handle is the browser's backend node id. It stays meaningful for the
// lifetime of the page session, across DOM mutations and separate
// invocations, and is only ever dereferenced through a Channel.
package identity

import "sort"

// Handle identifies an element within one page session.
type Handle int64

// IdentityMap maps serialized-tree indices to handles. An index missing
// from the map did not resolve.
type IdentityMap map[int]Handle

// Indices returns the map's keys in ascending order.
func (m IdentityMap) Indices() []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
