package queryir

import (
	"slices"

	"github.com/roach88/flatten/internal/ir"
)

// Equal reports structural equality of two expressions. Row sources
// compare by handle, properties by descriptor identity, nested plans by
// pointer.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *SourceRef:
		y, ok := b.(*SourceRef)
		return ok && x.Source == y.Source
	case *Property:
		y, ok := b.(*Property)
		return ok && x.Property == y.Property && Equal(x.Target, y.Target)
	case *NullSafe:
		y, ok := b.(*NullSafe)
		return ok && Equal(x.Caller, y.Caller) && Equal(x.Access, y.Access)
	case *TupleField:
		y, ok := b.(*TupleField)
		return ok && x.Index == y.Index && Equal(x.Tuple, y.Tuple)
	case *Constant:
		y, ok := b.(*Constant)
		return ok && x.Type.Same(y.Type) && ir.Equal(x.Value, y.Value)
	case *Convert:
		y, ok := b.(*Convert)
		return ok && x.To.Same(y.To) && Equal(x.Operand, y.Operand)
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && equalAll(x.Elements, y.Elements)
	case *Record:
		y, ok := b.(*Record)
		return ok && slices.Equal(x.Names, y.Names) && equalAll(x.Values, y.Values)
	case *Param:
		y, ok := b.(*Param)
		return ok && x.Name == y.Name
	case *Compare:
		y, ok := b.(*Compare)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *NullSafeEqual:
		y, ok := b.(*NullSafeEqual)
		return ok && Equal(x.Outer, y.Outer) && Equal(x.Inner, y.Inner)
	case *And:
		y, ok := b.(*And)
		return ok && equalAll(x.Terms, y.Terms)
	case *Or:
		y, ok := b.(*Or)
		return ok && equalAll(x.Terms, y.Terms)
	case *IsNull:
		y, ok := b.(*IsNull)
		return ok && Equal(x.Operand, y.Operand)
	case *Conditional:
		y, ok := b.(*Conditional)
		return ok && Equal(x.Test, y.Test) && Equal(x.Then, y.Then) && Equal(x.Else, y.Else)
	case *Lambda:
		y, ok := b.(*Lambda)
		return ok && slices.Equal(x.Params, y.Params) && Equal(x.Body, y.Body)
	case *Subquery:
		y, ok := b.(*Subquery)
		return ok && x.Plan == y.Plan
	case *CorrelateCollection:
		y, ok := b.(*CorrelateCollection)
		return ok && x.Index == y.Index && x.Navigation == y.Navigation && x.Child == y.Child &&
			x.Tracking == y.Tracking && Equal(x.OuterKey, y.OuterKey)
	case *AsOrdered:
		y, ok := b.(*AsOrdered)
		return ok && Equal(x.Operand, y.Operand)
	default:
		return false
	}
}

func equalAll(a, b []Expr) bool {
	return slices.EqualFunc(a, b, Equal)
}
