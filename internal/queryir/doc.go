// Package queryir provides the query plan intermediate representation that
// the collection rewrite operates on and the SQL backend compiles.
//
// ARCHITECTURE:
//
// A compilation produces one Arena. Every row source (entity scan, join
// subquery) is allocated in that arena and addressed by a SourceID handle.
// Expressions refer to row sources only through SourceRef handles, never by
// pointer, so a row source can be referenced from many places without an
// owner:
//
//	[query spec] → [Plan + Subquery nodes] → [rewrite] → [Plan + CorrelateCollection]
//	                                                   → [SQL backend] → rows
//
// Cloning a plan allocates fresh row sources in the same arena and returns
// a Mapping from original to cloned handles. AdjustAfterCloning rewrites
// every handle in an expression through that mapping.
//
// PLANS:
//
// A Plan is a FROM source, an ordered body of clauses and a selector:
//
//	Plan{From, Body: [*Join, *Where, *OrderBy ...], Selector}
//
// Body order matters for ordering clauses only: the last *OrderBy is the
// effective ordering of the plan. Joins are inner joins.
//
// SEALED INTERFACES:
//
// Expr and Clause are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so switches over them are
// exhaustive:
//
//	switch e := expr.(type) {
//	case *SourceRef:
//	    // row reference
//	case *Property:
//	    // column read
//	...
//	default:
//	    // impossible - every Expr type is listed above
//	}
//
// NULL SEMANTICS:
//
// NullSafe guards a read against a null row source: if Caller evaluates to
// null the whole NullSafe is null. Convert to a non-nullable scalar type
// fails on null; Convert to Any never does.
package queryir
