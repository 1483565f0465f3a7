package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/flatten/internal/buffer"
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/querysql"
	"github.com/roach88/flatten/internal/rewrite"
	"github.com/roach88/flatten/internal/store"
)

// execution is the state of one Execute call.
type execution struct {
	ctx    context.Context
	store  *store.Store
	buf    *buffer.QueryBuffer
	clock  *Clock
	logger *slog.Logger
	passID string
}

// query compiles p, binding the rows of outer, and runs it.
func (x *execution) query(p *queryir.Plan, outer *env) (*querysql.Compiled, []store.Row, error) {
	compiler := querysql.NewSQLCompiler()
	if outer != nil {
		outer.bind(compiler.Bound)
	}
	compiled, err := compiler.Compile(p)
	if err != nil {
		return nil, nil, fmt.Errorf("compile query: %w", err)
	}

	seq := x.clock.Next()
	x.logger.Debug("executing statement", "seq", seq, "sql", compiled.SQL, "params", len(compiled.Params))

	rows, err := x.store.Query(x.ctx, compiled)
	if err != nil {
		return nil, nil, fmt.Errorf("statement %d: %w", seq, err)
	}
	return compiled, rows, nil
}

// run executes p and evaluates its selector once per row, each row inside
// its own memo scope.
func (x *execution) run(p *queryir.Plan, outer *env) ([]ir.Value, error) {
	compiled, rows, err := x.query(p, outer)
	if err != nil {
		return nil, err
	}

	out := make([]ir.Value, 0, len(rows))
	for i, row := range rows {
		if err := x.ctx.Err(); err != nil {
			return nil, err
		}
		en := newEnv(p, compiled.Layout, row, outer)
		leave := x.buf.EnterRow()
		v, err := x.eval(en, p.Selector)
		leave()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// subquery evaluates a nested plan naively: compiled with the enclosing
// rows bound as parameters and run for the current row.
//
// A parent whose principal key is unset gets an empty collection without
// a statement.
func (x *execution) subquery(en *env, sq *queryir.Subquery) (ir.Value, error) {
	var values []ir.Value
	unset := false
	if c := sq.Correlation; c != nil {
		var err error
		if unset, err = x.unsetKey(en, c); err != nil {
			return nil, fmt.Errorf("collection #%d (%s): %w", c.Index, c.Navigation, err)
		}
	}
	if !unset {
		var err error
		values, err = x.run(sq.Plan, en)
		if err != nil {
			if c := sq.Correlation; c != nil {
				return nil, fmt.Errorf("collection #%d (%s): %w", c.Index, c.Navigation, err)
			}
			return nil, err
		}
	}

	factory := ir.NewList
	tracking := false
	if c := sq.Correlation; c != nil {
		t := queryir.TypeOf(sq.Plan.Arena, sq.Plan.Selector)
		if t.Kind == queryir.TypeEntity && t.Entity == c.Navigation.Target() {
			factory = c.Navigation.NewCollection
			tracking = c.Tracking
		}
	}

	coll := factory()
	for _, v := range values {
		if tracking {
			v = x.buf.State().Resolve(v)
		}
		coll.Add(v)
	}
	if sq.Plan.HasOrdering() {
		return ir.AsOrdered(coll), nil
	}
	return coll, nil
}

// unsetKey reports whether the parent row's principal key for c fails to
// correlate with itself, which is the case when any part is null or the
// zero value of a non-nullable key type.
func (x *execution) unsetKey(en *env, c *queryir.Correlation) (bool, error) {
	fk := c.Navigation.ForeignKey
	key, err := x.eval(en, rewrite.BuildKeyAccess(fk.PrincipalKey.Properties, c.Parent))
	if err != nil {
		return false, fmt.Errorf("outer key: %w", err)
	}
	pred, err := x.predicate(rewrite.BuildCorrelationPredicate(fk))
	if err != nil {
		return false, err
	}
	ok, err := pred(key, key)
	return !ok, err
}

// correlate evaluates a flattened collection through the QueryBuffer.
func (x *execution) correlate(en *env, cc *queryir.CorrelateCollection) (ir.Value, error) {
	outer, err := x.eval(en, cc.OuterKey)
	if err != nil {
		return nil, fmt.Errorf("collection #%d (%s): outer key: %w", cc.Index, cc.Navigation, err)
	}
	pred, err := x.predicate(cc.Predicate)
	if err != nil {
		return nil, fmt.Errorf("collection #%d (%s): %w", cc.Index, cc.Navigation, err)
	}
	children := func() (buffer.Iterator, error) {
		return x.open(cc.Child)
	}
	return x.buf.CorrelateSubquery(cc.Index, cc.Navigation, cc.Factory, outer, cc.Tracking, children, pred)
}

// predicate turns a two-parameter lambda into a buffer.Predicate.
func (x *execution) predicate(l *queryir.Lambda) (buffer.Predicate, error) {
	if l == nil || len(l.Params) != 2 {
		return nil, NewUnsupportedExprError("lambda", "correlation predicate must take exactly two parameters")
	}
	return func(outer, inner ir.Value) (bool, error) {
		en := &env{params: map[string]ir.Value{l.Params[0]: outer, l.Params[1]: inner}}
		v, err := x.eval(en, l.Body)
		if err != nil {
			return false, err
		}
		return truthy(v)
	}, nil
}

// open runs a flattened child plan and returns an iterator over its rows.
// The statement runs once; rows are evaluated as the buffer pulls them.
func (x *execution) open(p *queryir.Plan) (buffer.Iterator, error) {
	sel, ok := p.Selector.(*queryir.Tuple)
	if !ok || len(sel.Elements) != 3 {
		return nil, NewUnsupportedExprError("child selector", "expected (payload, current key, origin key)")
	}
	compiled, rows, err := x.query(p, nil)
	if err != nil {
		return nil, err
	}
	return &childIterator{x: x, plan: p, sel: sel, layout: compiled.Layout, rows: rows}, nil
}

// childIterator evaluates child rows lazily, one memo scope per row.
type childIterator struct {
	x      *execution
	plan   *queryir.Plan
	sel    *queryir.Tuple
	layout *querysql.Layout
	rows   []store.Row
	pos    int
}

// Next implements buffer.Iterator.
func (it *childIterator) Next() (buffer.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return buffer.Row{}, false, nil
	}
	en := newEnv(it.plan, it.layout, it.rows[it.pos], nil)
	it.pos++

	leave := it.x.buf.EnterRow()
	defer leave()

	var vals [3]ir.Value
	for i, e := range it.sel.Elements {
		v, err := it.x.eval(en, e)
		if err != nil {
			return buffer.Row{}, false, fmt.Errorf("child row %d: %w", it.pos-1, err)
		}
		vals[i] = v
	}
	return buffer.Row{Payload: vals[0], CurrentKey: vals[1], OriginKey: vals[2]}, true, nil
}

// Close implements buffer.Iterator.
func (it *childIterator) Close() error {
	it.rows = nil
	return nil
}
