package engine

import (
	"fmt"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/querysql"
	"github.com/roach88/flatten/internal/store"
)

// env is the evaluation scope of one result row. Lookups fall back to the
// enclosing row's env, which is how naive subqueries read their parent.
type env struct {
	plan   *queryir.Plan
	layout *querysql.Layout
	row    store.Row
	parent *env
	params map[string]ir.Value
	cache  map[queryir.SourceID]ir.Value
}

func newEnv(p *queryir.Plan, layout *querysql.Layout, row store.Row, parent *env) *env {
	return &env{
		plan:   p,
		layout: layout,
		row:    row,
		parent: parent,
		cache:  make(map[queryir.SourceID]ir.Value),
	}
}

// source returns the current row of a row source in scope.
func (en *env) source(id queryir.SourceID) (ir.Value, bool) {
	for e := en; e != nil; e = e.parent {
		if e.layout == nil {
			continue
		}
		sl, ok := e.layout.Source(id)
		if !ok {
			continue
		}
		if v, ok := e.cache[id]; ok {
			return v, true
		}
		v := materialize(sl, e.row)
		e.cache[id] = v
		return v, true
	}
	return nil, false
}

func (en *env) param(name string) (ir.Value, bool) {
	for e := en; e != nil; e = e.parent {
		if v, ok := e.params[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// bind records the current row of every source in scope. Inner scopes
// shadow outer ones.
func (en *env) bind(bound map[queryir.SourceID]ir.Value) {
	for e := en; e != nil; e = e.parent {
		if e.plan == nil {
			continue
		}
		for _, id := range e.plan.Sources() {
			if _, ok := bound[id]; ok {
				continue
			}
			if v, ok := e.source(id); ok {
				bound[id] = v
			}
		}
	}
}

// materialize builds the value of one row source from a result row:
// an entity of the concrete type named by the discriminator, or the tuple
// of a subquery source's projection.
func materialize(sl *querysql.SourceLayout, row store.Row) ir.Value {
	if sl.Kind == queryir.SourceSubquery {
		t := make(ir.Tuple, len(sl.Fields))
		for i, col := range sl.Fields {
			t[i] = row[col]
		}
		return t
	}

	discriminator := ""
	if sl.Discriminator >= 0 {
		if s, ok := row[sl.Discriminator].(ir.String); ok {
			discriminator = string(s)
		}
	}
	t := sl.ConcreteType(discriminator)

	fields := make(map[string]ir.Value)
	for _, p := range t.AllProperties() {
		fields[p.Name] = row[sl.Props[p.Name]]
	}
	keyProps := t.Key().Properties
	key := make(ir.Tuple, len(keyProps))
	for i, p := range keyProps {
		key[i] = fields[p.Name]
	}
	return &ir.Entity{Type: t.Name, Key: key, Fields: fields}
}

// eval evaluates e in en.
func (x *execution) eval(en *env, e queryir.Expr) (ir.Value, error) {
	switch n := e.(type) {
	case *queryir.SourceRef:
		v, ok := en.source(n.Source)
		if !ok {
			return nil, NewUnsupportedExprError("source", fmt.Sprintf("source %d is not in scope", n.Source))
		}
		return v, nil

	case *queryir.Property:
		target, err := x.eval(en, n.Target)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(target) {
			return ir.Null{}, nil
		}
		ent, ok := target.(*ir.Entity)
		if !ok {
			return nil, NewUnsupportedExprError("property", fmt.Sprintf("%s read off %T", n.Property.Name, target))
		}
		return ent.Get(n.Property.Name), nil

	case *queryir.NullSafe:
		caller, err := x.eval(en, n.Caller)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(caller) {
			return ir.Null{}, nil
		}
		return x.eval(en, n.Access)

	case *queryir.TupleField:
		v, err := x.eval(en, n.Tuple)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			return ir.Null{}, nil
		}
		t, ok := v.(ir.Tuple)
		if !ok || n.Index < 0 || n.Index >= len(t) {
			return nil, NewUnsupportedExprError("tuple field", fmt.Sprintf("index %d of %s", n.Index, ir.Format(v)))
		}
		return t[n.Index], nil

	case *queryir.Constant:
		if n.Value == nil {
			return ir.Null{}, nil
		}
		return n.Value, nil

	case *queryir.Convert:
		v, err := x.eval(en, n.Operand)
		if err != nil {
			return nil, err
		}
		if n.To.Kind == queryir.TypeScalar && !n.To.Scalar.Nullable && ir.IsNull(v) {
			return nil, NewNullConversionError(n.To.String())
		}
		if n.To.Kind == queryir.TypeScalar && !ir.IsNull(v) && scalarKind(v) != n.To.Scalar.Kind {
			return nil, NewUnsupportedExprError("convert", fmt.Sprintf("cannot convert %s to %s", ir.Format(v), n.To))
		}
		return v, nil

	case *queryir.Tuple:
		out := make(ir.Tuple, len(n.Elements))
		for i, el := range n.Elements {
			v, err := x.eval(en, el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *queryir.Record:
		fields := make([]ir.Field, len(n.Names))
		for i, name := range n.Names {
			v, err := x.eval(en, n.Values[i])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields[i] = ir.F(name, v)
		}
		return ir.NewRecord(fields...), nil

	case *queryir.Param:
		v, ok := en.param(n.Name)
		if !ok {
			return nil, NewUnsupportedExprError("param", fmt.Sprintf("%s is not bound", n.Name))
		}
		return v, nil

	case *queryir.Compare:
		l, err := x.eval(en, n.Left)
		if err != nil {
			return nil, err
		}
		r, err := x.eval(en, n.Right)
		if err != nil {
			return nil, err
		}
		ok, err := compare(n.Op, l, r)
		return ir.Bool(ok), err

	case *queryir.NullSafeEqual:
		o, err := x.eval(en, n.Outer)
		if err != nil {
			return nil, err
		}
		i, err := x.eval(en, n.Inner)
		if err != nil {
			return nil, err
		}
		return ir.Bool(keysEqual(o, i)), nil

	case *queryir.And:
		for _, term := range n.Terms {
			ok, err := x.test(en, term)
			if err != nil || !ok {
				return ir.Bool(false), err
			}
		}
		return ir.Bool(true), nil

	case *queryir.Or:
		for _, term := range n.Terms {
			ok, err := x.test(en, term)
			if err != nil || ok {
				return ir.Bool(ok), err
			}
		}
		return ir.Bool(false), nil

	case *queryir.IsNull:
		v, err := x.eval(en, n.Operand)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ir.IsNull(v)), nil

	case *queryir.Conditional:
		ok, err := x.test(en, n.Test)
		if err != nil {
			return nil, err
		}
		if ok {
			return x.eval(en, n.Then)
		}
		return x.eval(en, n.Else)

	case *queryir.Lambda:
		return nil, NewUnsupportedExprError("lambda", "only valid as a correlation predicate")

	case *queryir.Subquery:
		return x.subquery(en, n)

	case *queryir.CorrelateCollection:
		return x.correlate(en, n)

	case *queryir.AsOrdered:
		v, err := x.eval(en, n.Operand)
		if err != nil {
			return nil, err
		}
		coll, ok := v.(ir.Collection)
		if !ok {
			return nil, NewUnsupportedExprError("ordered", fmt.Sprintf("operand is %T, not a collection", v))
		}
		return ir.AsOrdered(coll), nil

	default:
		return nil, NewUnsupportedExprError(fmt.Sprintf("%T", e), "unknown expression")
	}
}

func (x *execution) test(en *env, e queryir.Expr) (bool, error) {
	v, err := x.eval(en, e)
	if err != nil {
		return false, err
	}
	return truthy(v)
}

// truthy treats null as false, like a SQL filter.
func truthy(v ir.Value) (bool, error) {
	switch b := v.(type) {
	case ir.Bool:
		return bool(b), nil
	case ir.Null, nil:
		return false, nil
	default:
		return false, NewUnsupportedExprError("condition", fmt.Sprintf("%s is not a boolean", ir.Format(v)))
	}
}

// compare applies op. A null operand makes every comparison false.
func compare(op queryir.CompareOp, l, r ir.Value) (bool, error) {
	if ir.IsNull(l) || ir.IsNull(r) {
		return false, nil
	}
	switch op {
	case queryir.OpEq:
		return ir.Equal(l, r), nil
	case queryir.OpNe:
		return !ir.Equal(l, r), nil
	}

	var c int
	switch a := l.(type) {
	case ir.Int:
		b, ok := r.(ir.Int)
		if !ok {
			return false, NewUnsupportedExprError("compare", fmt.Sprintf("int %s %T", op, r))
		}
		c = cmpOrdered(a, b)
	case ir.String:
		b, ok := r.(ir.String)
		if !ok {
			return false, NewUnsupportedExprError("compare", fmt.Sprintf("string %s %T", op, r))
		}
		c = cmpOrdered(a, b)
	default:
		return false, NewUnsupportedExprError("compare", fmt.Sprintf("%T values are not ordered", l))
	}

	switch op {
	case queryir.OpLt:
		return c < 0, nil
	case queryir.OpLe:
		return c <= 0, nil
	case queryir.OpGt:
		return c > 0, nil
	case queryir.OpGe:
		return c >= 0, nil
	default:
		return false, NewUnsupportedExprError("compare", fmt.Sprintf("unknown operator %q", op))
	}
}

func cmpOrdered[T ir.Int | ir.String](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// keysEqual compares keys element-wise. A null element never matches.
func keysEqual(a, b ir.Value) bool {
	at, aok := a.(ir.Tuple)
	bt, bok := b.(ir.Tuple)
	if !aok || !bok {
		return !ir.IsNull(a) && !ir.IsNull(b) && ir.Equal(a, b)
	}
	if len(at) != len(bt) {
		return false
	}
	for i := range at {
		if ir.IsNull(at[i]) || ir.IsNull(bt[i]) || !ir.Equal(at[i], bt[i]) {
			return false
		}
	}
	return true
}

// scalarKind reports the kind of a scalar value, "" for anything else.
func scalarKind(v ir.Value) model.ScalarKind {
	switch v.(type) {
	case ir.Int:
		return model.KindInt
	case ir.String:
		return model.KindString
	case ir.Bool:
		return model.KindBool
	default:
		return ""
	}
}
