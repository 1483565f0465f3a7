// Package buffer is the runtime side of collection flattening.
//
// A rewritten plan evaluates each correlated collection through a
// Correlator. QueryBuffer, the implementation, opens the decorrelated child
// sequence of a collection once, on first use, and then zips it onto parent
// rows: for each parent row it consumes child rows while the correlation
// predicate holds and the origin key stays the same, and leaves the first
// non-matching row pending for the next parent.
//
// This works because the rewrite orders parent and child rows identically.
// Parent rows must be evaluated in plan order, and every parent row must ask
// for each of its collections exactly once per EnterRow scope.
//
// Tracked payloads are identity-resolved through a StateManager, so an
// entity that appears under several parents is one instance.
package buffer
