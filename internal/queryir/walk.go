package queryir

import "fmt"

// Transform rebuilds e bottom-up, calling f on every rebuilt node. f returns
// the replacement for the node it is given (possibly the node itself).
// The result shares no expression nodes with e. Nested plans of *Subquery
// and *CorrelateCollection are kept by pointer and not visited; callers
// that need them copied go through Clone.
func Transform(e Expr, f func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	tr := func(x Expr) Expr { return Transform(x, f) }
	trAll := func(xs []Expr) []Expr {
		out := make([]Expr, len(xs))
		for i, x := range xs {
			out[i] = tr(x)
		}
		return out
	}

	var n Expr
	switch x := e.(type) {
	case *SourceRef:
		n = &SourceRef{Source: x.Source}
	case *Property:
		n = &Property{Target: tr(x.Target), Property: x.Property}
	case *NullSafe:
		n = &NullSafe{Caller: tr(x.Caller), Access: tr(x.Access)}
	case *TupleField:
		n = &TupleField{Tuple: tr(x.Tuple), Index: x.Index}
	case *Constant:
		n = &Constant{Value: x.Value, Type: x.Type}
	case *Convert:
		n = &Convert{Operand: tr(x.Operand), To: x.To}
	case *Tuple:
		n = &Tuple{Elements: trAll(x.Elements)}
	case *Record:
		n = &Record{Names: append([]string(nil), x.Names...), Values: trAll(x.Values)}
	case *Param:
		n = &Param{Name: x.Name}
	case *Compare:
		n = &Compare{Op: x.Op, Left: tr(x.Left), Right: tr(x.Right)}
	case *NullSafeEqual:
		n = &NullSafeEqual{Outer: tr(x.Outer), Inner: tr(x.Inner)}
	case *And:
		n = &And{Terms: trAll(x.Terms)}
	case *Or:
		n = &Or{Terms: trAll(x.Terms)}
	case *IsNull:
		n = &IsNull{Operand: tr(x.Operand)}
	case *Conditional:
		n = &Conditional{Test: tr(x.Test), Then: tr(x.Then), Else: tr(x.Else)}
	case *Lambda:
		n = &Lambda{Params: append([]string(nil), x.Params...), Body: tr(x.Body)}
	case *Subquery:
		sq := &Subquery{Plan: x.Plan}
		if x.Correlation != nil {
			c := *x.Correlation
			sq.Correlation = &c
		}
		n = sq
	case *CorrelateCollection:
		cc := *x
		cc.OuterKey = tr(x.OuterKey)
		if x.Predicate != nil {
			cc.Predicate = tr(x.Predicate).(*Lambda)
		}
		n = &cc
	case *AsOrdered:
		n = &AsOrdered{Operand: tr(x.Operand)}
	default:
		panic(fmt.Sprintf("queryir: unknown expression %T", e))
	}
	if r := f(n); r != nil {
		return r
	}
	return n
}

// Copy returns a deep copy of e sharing no expression nodes with it.
func Copy(e Expr) Expr {
	return Transform(e, func(x Expr) Expr { return x })
}

// Walk visits e pre-order. Returning false from visit skips the node's
// children. Nested plans are not visited.
func Walk(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}
	w := func(xs ...Expr) {
		for _, x := range xs {
			Walk(x, visit)
		}
	}
	switch x := e.(type) {
	case *SourceRef, *Constant, *Param, *Subquery:
	case *Property:
		w(x.Target)
	case *NullSafe:
		w(x.Caller, x.Access)
	case *TupleField:
		w(x.Tuple)
	case *Convert:
		w(x.Operand)
	case *Tuple:
		w(x.Elements...)
	case *Record:
		w(x.Values...)
	case *Compare:
		w(x.Left, x.Right)
	case *NullSafeEqual:
		w(x.Outer, x.Inner)
	case *And:
		w(x.Terms...)
	case *Or:
		w(x.Terms...)
	case *IsNull:
		w(x.Operand)
	case *Conditional:
		w(x.Test, x.Then, x.Else)
	case *Lambda:
		w(x.Body)
	case *CorrelateCollection:
		w(x.OuterKey)
		if x.Predicate != nil {
			w(x.Predicate)
		}
	case *AsOrdered:
		w(x.Operand)
	default:
		panic(fmt.Sprintf("queryir: unknown expression %T", e))
	}
}

// SourceRefs returns the distinct row sources e references, in first-seen
// order.
func SourceRefs(e Expr) []SourceID {
	var out []SourceID
	seen := map[SourceID]bool{}
	Walk(e, func(x Expr) bool {
		if r, ok := x.(*SourceRef); ok && !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
		return true
	})
	return out
}

// Unwrap strips Convert and NullSafe wrappers, returning the innermost
// access expression.
func Unwrap(e Expr) Expr {
	for {
		switch x := e.(type) {
		case *Convert:
			e = x.Operand
		case *NullSafe:
			e = x.Access
		default:
			return e
		}
	}
}

// PropertyRead matches e, after Unwrap, against a property read directly
// off a row source and returns that source and property.
func PropertyRead(e Expr) (SourceID, *Property, bool) {
	p, ok := Unwrap(e).(*Property)
	if !ok {
		return 0, nil, false
	}
	ref, ok := Unwrap(p.Target).(*SourceRef)
	if !ok {
		return 0, nil, false
	}
	return ref.Source, p, true
}
