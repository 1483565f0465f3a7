package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/flatten/internal/ir"
)

// Format renders p as deterministic, indented text. It is the explain
// output of the CLI and the content of plan golden files.
//
// Example:
//
//	from b: Blog
//	order by b.Id asc
//	select {Name: b.Name, Posts: subquery #0 Blog.Posts (
//	  from p: Post
//	  where b?.Id ?= p?.BlogId
//	  select p
//	)}
func Format(p *Plan) string {
	pr := printer{a: p.Arena}
	return pr.plan(p, "")
}

// FormatExpr renders a single expression.
func FormatExpr(a *Arena, e Expr) string {
	pr := printer{a: a}
	return pr.expr(e, "")
}

type printer struct {
	a *Arena
}

func (pr printer) plan(p *Plan, ind string) string {
	var lines []string
	lines = append(lines, ind+"from "+pr.source(p.From, ind))
	for _, c := range p.Body {
		switch x := c.(type) {
		case *Join:
			lines = append(lines, fmt.Sprintf("%sjoin %s on %s = %s", ind, pr.source(x.Source, ind),
				pr.expr(x.OuterKey, ind), pr.expr(x.InnerKey, ind)))
		case *Where:
			lines = append(lines, ind+"where "+pr.expr(x.Predicate, ind))
		case *OrderBy:
			lines = append(lines, ind+"order by "+pr.orderings(x.Orderings, ind))
		}
	}
	lines = append(lines, ind+"select "+pr.expr(p.Selector, ind))
	return strings.Join(lines, "\n")
}

func (pr printer) source(id SourceID, ind string) string {
	if !pr.a.Has(id) {
		return fmt.Sprintf("<invalid %d>", id)
	}
	src := pr.a.Source(id)
	if src.Kind == SourceSubquery {
		return src.Name + ": (\n" + pr.plan(src.Plan, ind+"  ") + "\n" + ind + ")"
	}
	return src.Name + ": " + src.Entity.Name
}

func (pr printer) sourceName(id SourceID) string {
	if !pr.a.Has(id) {
		return fmt.Sprintf("<invalid %d>", id)
	}
	return pr.a.Source(id).Name
}

func (pr printer) orderings(os []Ordering, ind string) string {
	parts := make([]string, len(os))
	for i, o := range os {
		parts[i] = pr.expr(o.Expr, ind) + " " + o.Direction.String()
	}
	return strings.Join(parts, ", ")
}

func (pr printer) exprs(es []Expr, ind string) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = pr.expr(e, ind)
	}
	return out
}

func (pr printer) expr(e Expr, ind string) string {
	switch x := e.(type) {
	case nil:
		return "<nil>"
	case *SourceRef:
		return pr.sourceName(x.Source)
	case *Property:
		return pr.expr(x.Target, ind) + "." + x.Property.Name
	case *NullSafe:
		if p, ok := x.Access.(*Property); ok && Equal(p.Target, x.Caller) {
			return pr.expr(x.Caller, ind) + "?." + p.Property.Name
		}
		return "nullsafe(" + pr.expr(x.Caller, ind) + ", " + pr.expr(x.Access, ind) + ")"
	case *TupleField:
		return pr.expr(x.Tuple, ind) + "[" + strconv.Itoa(x.Index) + "]"
	case *Constant:
		if s, ok := x.Value.(ir.String); ok {
			return strconv.Quote(string(s))
		}
		if ir.IsNull(x.Value) {
			return "null"
		}
		return ir.Format(x.Value)
	case *Convert:
		return x.To.String() + "(" + pr.expr(x.Operand, ind) + ")"
	case *Tuple:
		return "(" + strings.Join(pr.exprs(x.Elements, ind), ", ") + ")"
	case *Record:
		parts := make([]string, len(x.Names))
		for i, n := range x.Names {
			parts[i] = n + ": " + pr.expr(x.Values[i], ind)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Param:
		return x.Name
	case *Compare:
		return pr.expr(x.Left, ind) + " " + string(x.Op) + " " + pr.expr(x.Right, ind)
	case *NullSafeEqual:
		return pr.expr(x.Outer, ind) + " ?= " + pr.expr(x.Inner, ind)
	case *And:
		return pr.junction(x.Terms, " && ", "true", ind)
	case *Or:
		return pr.junction(x.Terms, " || ", "false", ind)
	case *IsNull:
		return pr.expr(x.Operand, ind) + " is null"
	case *Conditional:
		return "(" + pr.expr(x.Test, ind) + " ? " + pr.expr(x.Then, ind) + " : " + pr.expr(x.Else, ind) + ")"
	case *Lambda:
		return "(" + strings.Join(x.Params, ", ") + ") => " + pr.expr(x.Body, ind)
	case *Subquery:
		head := "subquery"
		if c := x.Correlation; c != nil {
			head = fmt.Sprintf("subquery #%d %s", c.Index, c.Navigation)
			if c.Tracking {
				head += " tracking"
			}
		}
		return head + " (\n" + pr.plan(x.Plan, ind+"  ") + "\n" + ind + ")"
	case *CorrelateCollection:
		factory := "list"
		if x.NativeFactory {
			factory = string(x.Navigation.CollectionKind)
		}
		head := fmt.Sprintf("correlate #%d %s factory=%s", x.Index, x.Navigation, factory)
		if x.Tracking {
			head += " tracking"
		}
		return head + "\n" +
			ind + "  outer " + pr.expr(x.OuterKey, ind+"  ") + "\n" +
			ind + "  predicate " + pr.expr(x.Predicate, ind+"  ") + "\n" +
			ind + "  child (\n" + pr.plan(x.Child, ind+"    ") + "\n" + ind + "  )"
	case *AsOrdered:
		return "ordered(" + pr.expr(x.Operand, ind) + ")"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func (pr printer) junction(terms []Expr, sep, empty, ind string) string {
	switch len(terms) {
	case 0:
		return empty
	case 1:
		return pr.expr(terms[0], ind)
	default:
		return "(" + strings.Join(pr.exprs(terms, ind), sep) + ")"
	}
}
