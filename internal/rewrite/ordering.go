package rewrite

import (
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
)

// OrderingSet accumulates parent orderings for one parent-plan pass.
// Sibling collections of the same parent append to the same set; it never
// holds two equivalent orderings.
type OrderingSet struct {
	orderings []queryir.Ordering
}

// Add appends o unless an equivalent ordering is present. It reports
// whether o was added.
func (s *OrderingSet) Add(o queryir.Ordering) bool {
	if containsEquivalent(s.orderings, o.Expr) {
		return false
	}
	s.orderings = append(s.orderings, o)
	return true
}

// AddAll adds each ordering in order.
func (s *OrderingSet) AddAll(os []queryir.Ordering) {
	for _, o := range os {
		s.Add(o)
	}
}

// List returns a copy of the accumulated orderings.
func (s *OrderingSet) List() []queryir.Ordering {
	return append([]queryir.Ordering(nil), s.orderings...)
}

// Len returns the number of accumulated orderings.
func (s *OrderingSet) Len() int {
	return len(s.orderings)
}

// SynthesizeOrderings computes the orderings that align parent rows with
// their children, in fixed priority:
//
//  1. existing user orderings, as declared
//  2. the origin entity's primary key parts, read off origin
//  3. the principal key parts, read off outer
//
// Key parts already covered by an equivalent ordering are skipped.
func SynthesizeOrderings(existing []queryir.Ordering, originKey []*model.Property, origin queryir.SourceID,
	principalKey []*model.Property, outer queryir.SourceID) []queryir.Ordering {
	out := append([]queryir.Ordering(nil), existing...)
	for _, p := range originKey {
		out = TryAddPropertyOrdering(out, p, origin)
	}
	for _, p := range principalKey {
		out = TryAddPropertyOrdering(out, p, outer)
	}
	return out
}

// TryAddPropertyOrdering appends an ascending ordering on src.p unless os
// already orders by an equivalent expression.
func TryAddPropertyOrdering(os []queryir.Ordering, p *model.Property, src queryir.SourceID) []queryir.Ordering {
	e := orderingExpr(p, src)
	if containsEquivalent(os, e) {
		return os
	}
	return append(os, queryir.Ordering{Expr: e, Direction: queryir.Asc})
}

// orderingExpr is the key-part read used for orderings: src?.p converted
// back to the property's own type.
func orderingExpr(p *model.Property, src queryir.SourceID) queryir.Expr {
	return &queryir.Convert{
		Operand: nullSafeRead(src, p),
		To:      queryir.ScalarOf(p.Type),
	}
}

func containsEquivalent(os []queryir.Ordering, e queryir.Expr) bool {
	for _, o := range os {
		if Equivalent(o.Expr, e) {
			return true
		}
	}
	return false
}

// Equivalent reports whether two ordering or key expressions read the same
// data. Property reads are equivalent when they read the same row source
// and the same property name, whatever null guards and casts wrap them.
// Anything else is compared structurally after unwrapping.
func Equivalent(a, b queryir.Expr) bool {
	srcA, pa, okA := queryir.PropertyRead(a)
	srcB, pb, okB := queryir.PropertyRead(b)
	if okA || okB {
		return okA && okB && srcA == srcB && pa.Property.Name == pb.Property.Name
	}
	return queryir.Equal(queryir.Unwrap(a), queryir.Unwrap(b))
}
