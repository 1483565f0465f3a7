package querysql

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
)

// SQLCompiler compiles query plans to parameterized SQL for SQLite.
//
// CRITICAL: top-level queries always end in ORDER BY with the FROM entity's
// primary key as tiebreaker, so row order is deterministic.
// CRITICAL: all values are parameterized, never interpolated.
//
// Only the relational part of a plan is compiled. The selector is not
// translated; the result row carries every column of every row source and
// the engine evaluates the selector against it through the Layout.
type SQLCompiler struct {
	// Bound holds the current row of enclosing-plan sources, for plans
	// compiled once per parent row (naive execution of correlated
	// subqueries). Reads off a bound source become ? parameters.
	Bound map[queryir.SourceID]ir.Value
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		Bound: make(map[queryir.SourceID]ir.Value),
	}
}

// Compiled is a compiled plan.
type Compiled struct {
	SQL    string
	Params []any
	Layout *Layout
}

// compilation is the state of one Compile call. params are appended in the
// order their placeholders appear in the SQL text.
type compilation struct {
	c      *SQLCompiler
	a      *queryir.Arena
	params []any
}

// Compile converts a plan to a SELECT statement.
func (c *SQLCompiler) Compile(p *queryir.Plan) (*Compiled, error) {
	if p == nil {
		return nil, fmt.Errorf("cannot compile nil plan")
	}
	cc := &compilation{c: c, a: p.Arena}
	layout := newLayout()

	var cols []string
	for _, id := range p.Sources() {
		src := p.Source(id)
		sl := &SourceLayout{Source: id, Kind: src.Kind, Discriminator: -1}
		alias := sourceAlias(id)
		switch src.Kind {
		case queryir.SourceEntity:
			sl.Entity = src.Entity
			sl.Props = make(map[string]int)
			for _, prop := range src.Entity.TableProperties() {
				sl.Props[prop.Name] = layout.add(prop.Type.Kind)
				cols = append(cols, alias+"."+quoteIdent(prop.Name))
			}
			if src.Entity.Discriminated() {
				sl.Discriminator = layout.add(model.KindString)
				cols = append(cols, alias+"."+quoteIdent(model.DiscriminatorColumn))
			}
		case queryir.SourceSubquery:
			elems, err := projection(src.Plan)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
			for i, e := range elems {
				kind := model.ScalarKind("")
				if t := queryir.TypeOf(p.Arena, e); t.Kind == queryir.TypeScalar {
					kind = t.Scalar.Kind
				}
				sl.Fields = append(sl.Fields, layout.add(kind))
				cols = append(cols, alias+"."+fieldAlias(i))
			}
		}
		layout.sources[id] = sl
	}

	body, err := cc.compileBody(p)
	if err != nil {
		return nil, err
	}

	// MANDATORY: Always add ORDER BY with a deterministic tiebreaker
	order, err := cc.compileOrderBy(p, true)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), body, order)
	return &Compiled{SQL: sql, Params: cc.params, Layout: layout}, nil
}

// compileSubquery compiles a plan used as a row source. Its selector must
// be a tuple of scalar expressions; element i is projected as c<i>.
func (cc *compilation) compileSubquery(p *queryir.Plan) (string, error) {
	elems, err := projection(p)
	if err != nil {
		return "", err
	}

	// Placeholders in the projection precede those of FROM and WHERE, so
	// the projection is compiled first.
	cols := make([]string, len(elems))
	for i, e := range elems {
		sql, err := cc.compileExpr(p, e)
		if err != nil {
			return "", fmt.Errorf("projection %d: %w", i, err)
		}
		cols[i] = sql + " AS " + fieldAlias(i)
	}

	body, err := cc.compileBody(p)
	if err != nil {
		return "", err
	}
	order, err := cc.compileOrderBy(p, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), body, order), nil
}

// compileBody compiles FROM, JOIN and WHERE.
func (cc *compilation) compileBody(p *queryir.Plan) (string, error) {
	var b strings.Builder

	from, err := cc.compileSource(p.From)
	if err != nil {
		return "", err
	}
	b.WriteString(from)

	var filters []string
	for _, c := range p.Body {
		j, ok := c.(*queryir.Join)
		if !ok {
			continue
		}
		src, err := cc.compileSource(j.Source)
		if err != nil {
			return "", err
		}
		on, err := cc.compileKeyEquality(p, j.OuterKey, j.InnerKey)
		if err != nil {
			return "", fmt.Errorf("join %s: %w", cc.a.Source(j.Source).Name, err)
		}
		fmt.Fprintf(&b, " INNER JOIN %s ON %s", src, on)
	}

	for _, id := range p.Sources() {
		f, ok := cc.discriminatorFilter(id)
		if ok {
			filters = append(filters, f)
		}
	}
	for _, c := range p.Body {
		w, ok := c.(*queryir.Where)
		if !ok {
			continue
		}
		sql, err := cc.compileExpr(p, w.Predicate)
		if err != nil {
			return "", fmt.Errorf("where: %w", err)
		}
		filters = append(filters, sql)
	}
	if len(filters) > 0 {
		b.WriteString(" WHERE " + strings.Join(filters, " AND "))
	}
	return b.String(), nil
}

func (cc *compilation) compileSource(id queryir.SourceID) (string, error) {
	src := cc.a.Source(id)
	switch src.Kind {
	case queryir.SourceEntity:
		return quoteIdent(src.Entity.Table) + " AS " + sourceAlias(id), nil
	case queryir.SourceSubquery:
		sql, err := cc.compileSubquery(src.Plan)
		if err != nil {
			return "", fmt.Errorf("subquery %s: %w", src.Name, err)
		}
		return "(" + sql + ") AS " + sourceAlias(id), nil
	default:
		return "", fmt.Errorf("unsupported source kind %s", src.Kind)
	}
}

// discriminatorFilter restricts a scan of a derived type to the rows of
// that type and its own derived types.
func (cc *compilation) discriminatorFilter(id queryir.SourceID) (string, bool) {
	src := cc.a.Source(id)
	if src.Kind != queryir.SourceEntity || src.Entity.BaseType == nil {
		return "", false
	}
	types := src.Entity.Hierarchy()
	marks := make([]string, len(types))
	for i, t := range types {
		marks[i] = "?"
		cc.params = append(cc.params, t.Name)
	}
	return fmt.Sprintf("%s.%s IN (%s)", sourceAlias(id), quoteIdent(model.DiscriminatorColumn),
		strings.Join(marks, ", ")), true
}

// compileOrderBy compiles the plan's last ordering clause. With tiebreak,
// the FROM entity's primary key is appended so the order is total.
func (cc *compilation) compileOrderBy(p *queryir.Plan, tiebreak bool) (string, error) {
	var terms []string
	ordered := make(map[string]bool)
	if ob, _ := p.LastOrderBy(); ob != nil {
		for _, o := range ob.Orderings {
			sql, err := cc.compileExpr(p, o.Expr)
			if err != nil {
				return "", fmt.Errorf("order by: %w", err)
			}
			ordered[sql] = true
			terms = append(terms, sql+" "+strings.ToUpper(o.Direction.String()))
		}
	}
	if tiebreak {
		if src := p.Source(p.From); src.Kind == queryir.SourceEntity && src.Entity.Key() != nil {
			for _, prop := range src.Entity.Key().Properties {
				col := sourceAlias(p.From) + "." + quoteIdent(prop.Name)
				if ordered[col] {
					continue
				}
				// COLLATE BINARY keeps text ordering stable across SQLite builds
				terms = append(terms, col+" COLLATE BINARY ASC")
			}
		}
	}
	if len(terms) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// compileKeyEquality compiles an equality of two keys, element-wise when
// both are tuples. SQL = never matches a NULL, which is exactly the key
// semantics: a null key part correlates with nothing.
func (cc *compilation) compileKeyEquality(p *queryir.Plan, left, right queryir.Expr) (string, error) {
	lt, lok := left.(*queryir.Tuple)
	rt, rok := right.(*queryir.Tuple)
	if lok != rok {
		return "", fmt.Errorf("cannot compare a tuple with a scalar")
	}
	if !lok {
		return cc.compileBinary(p, "=", left, right)
	}
	if len(lt.Elements) != len(rt.Elements) {
		return "", fmt.Errorf("key arity mismatch: %d vs %d", len(lt.Elements), len(rt.Elements))
	}
	parts := make([]string, len(lt.Elements))
	for i := range lt.Elements {
		sql, err := cc.compileBinary(p, "=", lt.Elements[i], rt.Elements[i])
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (cc *compilation) compileBinary(p *queryir.Plan, op string, left, right queryir.Expr) (string, error) {
	l, err := cc.compileExpr(p, left)
	if err != nil {
		return "", err
	}
	r, err := cc.compileExpr(p, right)
	if err != nil {
		return "", err
	}
	return l + " " + op + " " + r, nil
}

// compileExpr compiles a scalar or boolean expression.
// CRITICAL: values are NEVER interpolated - always parameterized.
func (cc *compilation) compileExpr(p *queryir.Plan, e queryir.Expr) (string, error) {
	switch x := e.(type) {
	case *queryir.Property:
		return cc.compileProperty(p, x)
	case *queryir.NullSafe:
		// SQL NULL already propagates through column reads.
		return cc.compileExpr(p, x.Access)
	case *queryir.Convert:
		return cc.compileExpr(p, x.Operand)
	case *queryir.TupleField:
		return cc.compileTupleField(p, x)
	case *queryir.Constant:
		return cc.param(x.Value)
	case *queryir.Compare:
		sql, err := cc.compileBinary(p, string(x.Op), x.Left, x.Right)
		if err != nil {
			return "", err
		}
		return "(" + sql + ")", nil
	case *queryir.NullSafeEqual:
		return cc.compileKeyEquality(p, x.Outer, x.Inner)
	case *queryir.And:
		return cc.compileJunction(p, x.Terms, " AND ", "1 = 1")
	case *queryir.Or:
		return cc.compileJunction(p, x.Terms, " OR ", "1 = 0")
	case *queryir.IsNull:
		sql, err := cc.compileExpr(p, x.Operand)
		if err != nil {
			return "", err
		}
		return "(" + sql + " IS NULL)", nil
	case *queryir.Conditional:
		test, err := cc.compileExpr(p, x.Test)
		if err != nil {
			return "", err
		}
		then, err := cc.compileExpr(p, x.Then)
		if err != nil {
			return "", err
		}
		els, err := cc.compileExpr(p, x.Else)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)", test, then, els), nil
	case *queryir.SourceRef, *queryir.Tuple, *queryir.Record, *queryir.Param, *queryir.Lambda,
		*queryir.Subquery, *queryir.CorrelateCollection, *queryir.AsOrdered:
		return "", fmt.Errorf("%T cannot be compiled to SQL", e)
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (cc *compilation) compileJunction(p *queryir.Plan, terms []queryir.Expr, sep, empty string) (string, error) {
	if len(terms) == 0 {
		return empty, nil
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		sql, err := cc.compileExpr(p, t)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (cc *compilation) compileProperty(p *queryir.Plan, x *queryir.Property) (string, error) {
	ref, ok := queryir.Unwrap(x.Target).(*queryir.SourceRef)
	if !ok {
		return "", fmt.Errorf("property %s must be read directly off a row source", x.Property.Name)
	}
	if slices.Contains(p.Sources(), ref.Source) {
		return sourceAlias(ref.Source) + "." + quoteIdent(x.Property.Name), nil
	}
	row, ok := cc.c.Bound[ref.Source]
	if !ok {
		return "", fmt.Errorf("property %s reads source %d, which is not in scope", x.Property.Name, ref.Source)
	}
	if ir.IsNull(row) {
		return cc.param(ir.Null{})
	}
	ent, ok := row.(*ir.Entity)
	if !ok {
		return "", fmt.Errorf("property %s reads bound source %d, which is not an entity", x.Property.Name, ref.Source)
	}
	return cc.param(ent.Get(x.Property.Name))
}

func (cc *compilation) compileTupleField(p *queryir.Plan, x *queryir.TupleField) (string, error) {
	switch t := queryir.Unwrap(x.Tuple).(type) {
	case *queryir.Tuple:
		if x.Index >= len(t.Elements) {
			return "", fmt.Errorf("tuple field %d out of range", x.Index)
		}
		return cc.compileExpr(p, t.Elements[x.Index])
	case *queryir.SourceRef:
		if slices.Contains(p.Sources(), t.Source) {
			return sourceAlias(t.Source) + "." + fieldAlias(x.Index), nil
		}
		row, ok := cc.c.Bound[t.Source].(ir.Tuple)
		if !ok || x.Index >= len(row) {
			return "", fmt.Errorf("tuple field %d reads source %d, which is not in scope", x.Index, t.Source)
		}
		return cc.param(row[x.Index])
	default:
		return "", fmt.Errorf("tuple field of %T cannot be compiled to SQL", x.Tuple)
	}
}

func (cc *compilation) param(v ir.Value) (string, error) {
	val, err := irValueToParam(v)
	if err != nil {
		return "", fmt.Errorf("convert value: %w", err)
	}
	cc.params = append(cc.params, val)
	return "?", nil
}

// projection returns the selector elements of a plan used as a row source.
func projection(p *queryir.Plan) ([]queryir.Expr, error) {
	t, ok := p.Selector.(*queryir.Tuple)
	if !ok {
		return nil, fmt.Errorf("subquery selector must be a tuple, got %T", p.Selector)
	}
	return t.Elements, nil
}

func sourceAlias(id queryir.SourceID) string {
	return "t" + strconv.Itoa(int(id))
}

func fieldAlias(i int) string {
	return "c" + strconv.Itoa(i)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// irValueToParam converts an ir.Value to a Go native type for SQL parameter.
// Supports string, int, bool and null. Composite values are not valid SQL
// parameters.
func irValueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%T cannot be used as SQL parameter", v)
	}
}
