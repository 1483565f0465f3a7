// Package rewrite flattens correlated collection subqueries.
//
// A parent plan whose selector holds a correlated *queryir.Subquery (for
// example "each Blog with its Posts") would naively run the child plan once
// per parent row. The rewrite replaces each such subquery with a single
// decorrelated child plan:
//
//	parent:  from b: Blog  order by <user>, b.Id
//	child:   from p: Post
//	         join _b: (clone of parent projecting its orderings) on p?.BlogId = _b[k]
//	         order by _b[0..n], <child user ordering>
//	         select (payload, current key, origin key)
//
// Because parent and child rows come out in the same order, the runtime
// correlator can zip the child stream onto the parent rows in one pass.
//
// Components, leaf first:
//   - BuildKeyAccess: null-safe composite key reads
//   - SynthesizeOrderings / OrderingSet: parent alignment orderings
//   - CloneParent / SynthesizeJoin: the joined parent clone
//   - LiftOrderBy: moves clone orderings onto the child
//   - BuildCorrelationPredicate: runtime key match
//   - Rewriter: the orchestrator
//
// Precondition failures are *InvariantError values and abort the rewrite.
package rewrite
