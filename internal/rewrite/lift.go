package rewrite

import "github.com/roach88/flatten/internal/queryir"

// LiftOrderBy moves the ordering clauses of from onto to, reading the
// ordered values off join, the row source wrapping from's projection.
//
// For each ordering clause of from, to receives a new clause with one
// ordering per original ordering: join[i] with the same direction, where i
// is the ordering's position (and hence its projection column). The lifted
// orderings are followed by the orderings of to's previous last ordering
// clause, which is removed, so lifted orderings dominate. The clauses are
// removed from from: the lift is a move.
func LiftOrderBy(from, to *queryir.Plan, join queryir.SourceID) {
	kept := from.Body[:0]
	for _, c := range from.Body {
		ob, ok := c.(*queryir.OrderBy)
		if !ok {
			kept = append(kept, c)
			continue
		}

		lifted := make([]queryir.Ordering, 0, len(ob.Orderings))
		for i, o := range ob.Orderings {
			lifted = append(lifted, queryir.Ordering{
				Expr:      &queryir.TupleField{Tuple: queryir.Ref(join), Index: i},
				Direction: o.Direction,
			})
		}
		if prev, idx := to.LastOrderBy(); prev != nil {
			lifted = append(lifted, prev.Orderings...)
			to.RemoveClause(idx)
		}
		to.Body = append(to.Body, &queryir.OrderBy{Orderings: lifted})
	}
	from.Body = kept
}
