package rewrite

import (
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
)

// Predicate parameter names: the parent's outer key and the child's
// current key.
const (
	OuterParam = "o"
	InnerParam = "i"
)

var boolType = queryir.ScalarOf(model.ScalarType{Kind: model.KindBool})

// BuildCorrelationPredicate builds the runtime predicate that decides
// whether a child row belongs to the current parent row:
//
//	(o, i) => AND_k (unset(o[k]) || unset(i[k]) ? false : T(o[k]) = T(i[k]))
//
// T reconciles the principal and dependent property types: when they
// differ the nullable one wins. An element is unset when it is null or,
// for a non-nullable T, equal to T's zero value; an unset element on
// either side never correlates.
func BuildCorrelationPredicate(fk *model.ForeignKey) *queryir.Lambda {
	o := &queryir.Param{Name: OuterParam}
	i := &queryir.Param{Name: InnerParam}

	terms := make([]queryir.Expr, len(fk.Properties))
	for k, dep := range fk.Properties {
		st := ReconcileTypes(fk.PrincipalKey.Properties[k].Type, dep.Type)
		t := queryir.ScalarOf(st)
		outer := &queryir.TupleField{Tuple: o, Index: k}
		inner := &queryir.TupleField{Tuple: i, Index: k}
		unset := []queryir.Expr{
			&queryir.IsNull{Operand: outer},
			&queryir.IsNull{Operand: inner},
		}
		if !st.Nullable {
			unset = append(unset,
				isDefault(queryir.Copy(outer), st),
				isDefault(queryir.Copy(inner), st),
			)
		}
		terms[k] = &queryir.Conditional{
			Test: &queryir.Or{Terms: unset},
			Then: &queryir.Constant{Value: ir.Bool(false), Type: boolType},
			Else: &queryir.Compare{
				Op:    queryir.OpEq,
				Left:  &queryir.Convert{Operand: queryir.Copy(outer), To: t},
				Right: &queryir.Convert{Operand: queryir.Copy(inner), To: t},
			},
		}
	}

	body := terms[0]
	if len(terms) > 1 {
		body = &queryir.And{Terms: terms}
	}
	return &queryir.Lambda{Params: []string{OuterParam, InnerParam}, Body: body}
}

// isDefault tests a key element against the zero value of st. The operand
// must already be known non-null.
func isDefault(operand queryir.Expr, st model.ScalarType) queryir.Expr {
	t := queryir.ScalarOf(st)
	return &queryir.Compare{
		Op:    queryir.OpEq,
		Left:  &queryir.Convert{Operand: operand, To: t},
		Right: &queryir.Constant{Value: st.Default(), Type: t},
	}
}

// ReconcileTypes picks the comparison type for a principal/dependent key
// pair. Identical types are kept; otherwise the nullable side's type wins,
// promoting the non-nullable operand.
func ReconcileTypes(principal, dependent model.ScalarType) model.ScalarType {
	if principal == dependent || principal.Nullable {
		return principal
	}
	return dependent
}
