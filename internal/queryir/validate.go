package queryir

import (
	"fmt"
	"slices"
)

// ValidationResult contains the structural problems found in a plan.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	// Problems lists every violation found, in traversal order.
	Problems []string
}

// Validate checks that a plan is well-formed before it is rewritten or
// executed:
//  1. Every source handle resolves in the plan's arena
//  2. Every SourceRef names a source in scope (the plan's own sources plus
//     those of enclosing plans)
//  3. Ordering clauses are non-empty and join keys are present
//  4. Correlated subqueries carry a navigation, a parent in scope and
//     exactly one correlation filter
//  5. Collection indices are unique across the whole tree
//  6. Property reads off entity sources name a property of that entity
//
// Validate is a pure function with no side effects.
func Validate(p *Plan) ValidationResult {
	v := &validator{a: p.Arena, indices: map[int]bool{}}
	v.validatePlan(p, nil, "plan")
	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	a        *Arena
	indices  map[int]bool
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePlan(p *Plan, outer []SourceID, path string) {
	if p == nil {
		v.addProblem("%s: nil plan", path)
		return
	}
	if p.Arena != v.a {
		v.addProblem("%s: plan belongs to a different arena", path)
		return
	}
	scope := slices.Clone(outer)
	for _, id := range p.Sources() {
		if !v.a.Has(id) {
			v.addProblem("%s: unresolved source handle %d", path, id)
			continue
		}
		src := v.a.Source(id)
		switch src.Kind {
		case SourceEntity:
			if src.Entity == nil {
				v.addProblem("%s: entity source %s has no entity type", path, src.Name)
			}
		case SourceSubquery:
			v.validatePlan(src.Plan, scope, path+"/"+src.Name)
		}
		scope = append(scope, id)
	}

	for i, c := range p.Body {
		where := fmt.Sprintf("%s: clause %d", path, i)
		switch x := c.(type) {
		case *Join:
			if x.OuterKey == nil || x.InnerKey == nil {
				v.addProblem("%s: join on %d is missing a key", where, x.Source)
				continue
			}
			v.validateExpr(x.OuterKey, scope, where)
			v.validateExpr(x.InnerKey, scope, where)
		case *Where:
			if x.Predicate == nil {
				v.addProblem("%s: where without predicate", where)
				continue
			}
			v.validateExpr(x.Predicate, scope, where)
		case *OrderBy:
			if len(x.Orderings) == 0 {
				v.addProblem("%s: empty order by", where)
			}
			for _, o := range x.Orderings {
				v.validateExpr(o.Expr, scope, where)
			}
		}
	}

	if p.Selector == nil {
		v.addProblem("%s: nil selector", path)
		return
	}
	v.validateExpr(p.Selector, scope, path+": selector")
}

func (v *validator) validateExpr(e Expr, scope []SourceID, where string) {
	Walk(e, func(x Expr) bool {
		switch n := x.(type) {
		case *SourceRef:
			if !slices.Contains(scope, n.Source) {
				v.addProblem("%s: reference to source %d out of scope", where, n.Source)
			}
		case *Property:
			v.validateProperty(n, where)
		case *Subquery:
			v.validateSubquery(n, scope, where)
		case *CorrelateCollection:
			v.checkIndex(n.Index, where)
			if n.Predicate == nil || len(n.Predicate.Params) != 2 {
				v.addProblem("%s: correlate #%d needs a two-parameter predicate", where, n.Index)
			}
			if n.Factory == nil {
				v.addProblem("%s: correlate #%d has no collection factory", where, n.Index)
			}
			v.validatePlan(n.Child, nil, fmt.Sprintf("%s/correlate#%d", where, n.Index))
		}
		return true
	})
}

func (v *validator) validateProperty(p *Property, where string) {
	if p.Property == nil {
		v.addProblem("%s: property read without descriptor", where)
		return
	}
	ref, ok := Unwrap(p.Target).(*SourceRef)
	if !ok || !v.a.Has(ref.Source) {
		return
	}
	src := v.a.Source(ref.Source)
	if src.Kind != SourceEntity || src.Entity == nil {
		v.addProblem("%s: property %s read off non-entity source %s", where, p.Property.Name, src.Name)
		return
	}
	if !slices.Contains(src.Entity.AllProperties(), p.Property) {
		v.addProblem("%s: %s has no property %s", where, src.Entity.Name, p.Property.Name)
	}
}

func (v *validator) validateSubquery(sq *Subquery, scope []SourceID, where string) {
	if c := sq.Correlation; c != nil {
		v.checkIndex(c.Index, where)
		if c.Navigation == nil {
			v.addProblem("%s: correlated subquery #%d has no navigation", where, c.Index)
		}
		if !slices.Contains(scope, c.Parent) {
			v.addProblem("%s: correlated subquery #%d parent %d out of scope", where, c.Index, c.Parent)
		}
		if sq.Plan != nil {
			filters := 0
			for _, cl := range sq.Plan.Body {
				if w, ok := cl.(*Where); ok {
					if _, ok := w.Predicate.(*NullSafeEqual); ok {
						filters++
					}
				}
			}
			if filters != 1 {
				v.addProblem("%s: correlated subquery #%d has %d correlation filters, want 1", where, c.Index, filters)
			}
		}
	}
	v.validatePlan(sq.Plan, scope, where+"/subquery")
}

func (v *validator) checkIndex(i int, where string) {
	if i < 0 {
		v.addProblem("%s: negative collection index %d", where, i)
		return
	}
	if v.indices[i] {
		v.addProblem("%s: duplicate collection index %d", where, i)
	}
	v.indices[i] = true
}
