package queryir

import "github.com/roach88/flatten/internal/model"

var boolType = ScalarOf(model.ScalarType{Kind: model.KindBool})

// TypeOf computes the static type of e. Row sources resolve through a.
func TypeOf(a *Arena, e Expr) Type {
	switch x := e.(type) {
	case *SourceRef:
		src := a.Source(x.Source)
		if src.Kind == SourceSubquery {
			return TypeOf(a, src.Plan.Selector)
		}
		return EntityOf(src.Entity)
	case *Property:
		return ScalarOf(x.Property.Type)
	case *NullSafe:
		t := TypeOf(a, x.Access)
		if t.Kind == TypeScalar {
			t.Scalar = t.Scalar.AsNullable()
		}
		return t
	case *TupleField:
		t := TypeOf(a, x.Tuple)
		if t.Kind == TypeTuple && x.Index < len(t.Elems) {
			return t.Elems[x.Index]
		}
		return Any
	case *Constant:
		return x.Type
	case *Convert:
		return x.To
	case *Tuple:
		t := Type{Kind: TypeTuple, Elems: make([]Type, len(x.Elements))}
		for i, el := range x.Elements {
			t.Elems[i] = TypeOf(a, el)
		}
		return t
	case *Record:
		t := Type{Kind: TypeRecord, Names: append([]string(nil), x.Names...), Elems: make([]Type, len(x.Values))}
		for i, v := range x.Values {
			t.Elems[i] = TypeOf(a, v)
		}
		return t
	case *Compare, *NullSafeEqual, *And, *Or, *IsNull:
		return boolType
	case *Conditional:
		return TypeOf(a, x.Then)
	case *Subquery:
		elem := TypeOf(a, x.Plan.Selector)
		if x.Correlation != nil {
			return Type{Kind: TypeCollection, Elem: &elem}
		}
		return SequenceOf(elem, x.Plan.HasOrdering())
	case *CorrelateCollection:
		elem := x.ElementType
		return Type{Kind: TypeCollection, Elem: &elem}
	case *AsOrdered:
		t := TypeOf(a, x.Operand)
		t.Kind = TypeOrderedSequence
		return t
	default:
		return Any
	}
}
