package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/rewrite"
)

// Filter operators.
const (
	OpEq      = "="
	OpNe      = "<>"
	OpLt      = "<"
	OpLe      = "<="
	OpGt      = ">"
	OpGe      = ">="
	OpIsNull  = "is_null"
	OpNotNull = "not_null"
)

var filterOps = []string{OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIsNull, OpNotNull}

// QuerySpec is a declarative query: a scan of one entity type with
// filters, an ordering and a projection. Navigation items in the
// projection become correlated collections.
//
// Example:
//
//	from: Blog
//	order_by: [{field: Name}]
//	select:
//	  - field: Id
//	  - navigation: Posts
//	    order_by: [{field: Title, desc: true}]
type QuerySpec struct {
	From    string       `yaml:"from" json:"from"`
	As      string       `yaml:"as,omitempty" json:"as,omitempty"`
	Where   []Filter     `yaml:"where,omitempty" json:"where,omitempty"`
	OrderBy []OrderSpec  `yaml:"order_by,omitempty" json:"order_by,omitempty"`
	Select  []SelectItem `yaml:"select,omitempty" json:"select,omitempty"`
}

// Filter compares a property with a constant.
type Filter struct {
	Field string `yaml:"field" json:"field"`
	Op    string `yaml:"op" json:"op"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// OrderSpec orders by one property.
type OrderSpec struct {
	Field string `yaml:"field" json:"field"`
	Desc  bool   `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// SelectItem is one projected field: a property read or a navigation
// collection. An empty Select on a navigation yields the entities.
type SelectItem struct {
	Name       string       `yaml:"name,omitempty" json:"name,omitempty"`
	Field      string       `yaml:"field,omitempty" json:"field,omitempty"`
	Navigation string       `yaml:"navigation,omitempty" json:"navigation,omitempty"`
	As         string       `yaml:"as,omitempty" json:"as,omitempty"`
	OfType     string       `yaml:"of_type,omitempty" json:"of_type,omitempty"`
	Tracking   *bool        `yaml:"tracking,omitempty" json:"tracking,omitempty"`
	Where      []Filter     `yaml:"where,omitempty" json:"where,omitempty"`
	OrderBy    []OrderSpec  `yaml:"order_by,omitempty" json:"order_by,omitempty"`
	Select     []SelectItem `yaml:"select,omitempty" json:"select,omitempty"`
}

// ResultName is the record field name of the item: Name, else the field
// or navigation name.
func (s SelectItem) ResultName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Field != "":
		return s.Field
	default:
		return s.Navigation
	}
}

// LoadQuery reads a YAML query spec file.
func LoadQuery(path string) (*QuerySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query: %w", err)
	}
	return ParseQuery(data)
}

// ParseQuery decodes a YAML query spec. Unknown fields are rejected.
func ParseQuery(data []byte) (*QuerySpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec QuerySpec
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse query: empty document")
		}
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return &spec, nil
}

// queryCompilation is the state of one CompileQuery call.
type queryCompilation struct {
	a    *queryir.Arena
	next int
}

// CompileQuery expands spec into a plan over a fresh arena.
//
// Every navigation item becomes a *queryir.Subquery carrying a
// Correlation: a scan of the navigation target filtered by
//
//	NullSafeEqual(principal key of parent, foreign key of child)
//
// Collection indices are assigned depth first in select order and are
// unique across the whole plan.
func CompileQuery(m *model.Model, spec *QuerySpec) (*queryir.Plan, error) {
	if errs := ValidateQuery(m, spec); len(errs) > 0 {
		return nil, errs[0]
	}

	root := m.EntityType(spec.From)
	qc := &queryCompilation{a: queryir.NewArena()}
	src := qc.a.NewEntitySource(alias(spec.As, root), root)
	plan := queryir.NewPlan(qc.a, src)
	if err := qc.scope(plan, src, root, spec.Where, spec.OrderBy, spec.Select); err != nil {
		return nil, err
	}
	return plan, nil
}

// scope fills in the body and selector of a plan scanning src.
func (qc *queryCompilation) scope(p *queryir.Plan, src queryir.SourceID, t *model.EntityType,
	where []Filter, orderBy []OrderSpec, sel []SelectItem) error {
	for _, f := range where {
		pred, err := filterExpr(src, t, f)
		if err != nil {
			return err
		}
		p.Body = append(p.Body, &queryir.Where{Predicate: pred})
	}

	if len(orderBy) > 0 {
		ob := &queryir.OrderBy{}
		for _, o := range orderBy {
			dir := queryir.Asc
			if o.Desc {
				dir = queryir.Desc
			}
			ob.Orderings = append(ob.Orderings, queryir.Ordering{
				Expr:      queryir.Prop(src, t.Property(o.Field)),
				Direction: dir,
			})
		}
		p.Body = append(p.Body, ob)
	}

	if len(sel) == 0 {
		p.Selector = queryir.Ref(src)
		return nil
	}
	rec := &queryir.Record{}
	for _, item := range sel {
		var e queryir.Expr
		if item.Field != "" {
			e = queryir.Prop(src, t.Property(item.Field))
		} else {
			sq, err := qc.navigation(src, t, item)
			if err != nil {
				return err
			}
			e = sq
		}
		rec.Names = append(rec.Names, item.ResultName())
		rec.Values = append(rec.Values, e)
	}
	p.Selector = rec
	return nil
}

// navigation expands one navigation item into a correlated subquery.
func (qc *queryCompilation) navigation(parent queryir.SourceID, t *model.EntityType, item SelectItem) (*queryir.Subquery, error) {
	nav := t.Navigation(item.Navigation)
	target := nav.Target()
	if item.OfType != "" {
		target = findDerived(target, item.OfType)
	}

	index := qc.next
	qc.next++

	src := qc.a.NewEntitySource(alias(item.As, target), target)
	child := queryir.NewPlan(qc.a, src)
	fk := nav.ForeignKey
	child.Body = append(child.Body, &queryir.Where{Predicate: &queryir.NullSafeEqual{
		Outer: rewrite.BuildKeyAccess(fk.PrincipalKey.Properties, parent),
		Inner: rewrite.BuildKeyAccess(fk.Properties, src),
	}})
	if err := qc.scope(child, src, target, item.Where, item.OrderBy, item.Select); err != nil {
		return nil, err
	}

	tracking := true
	if item.Tracking != nil {
		tracking = *item.Tracking
	}
	return &queryir.Subquery{
		Plan: child,
		Correlation: &queryir.Correlation{
			Index:      index,
			Navigation: nav,
			Tracking:   tracking,
			Parent:     parent,
		},
	}, nil
}

func filterExpr(src queryir.SourceID, t *model.EntityType, f Filter) (queryir.Expr, error) {
	p := t.Property(f.Field)
	read := queryir.Prop(src, p)
	switch f.Op {
	case OpIsNull:
		return &queryir.IsNull{Operand: read}, nil
	case OpNotNull:
		return &queryir.Conditional{
			Test: &queryir.IsNull{Operand: read},
			Then: &queryir.Constant{Value: ir.Bool(false), Type: boolType},
			Else: &queryir.Constant{Value: ir.Bool(true), Type: boolType},
		}, nil
	}
	v, err := ir.FromGo(f.Value)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", f.Field, err)
	}
	return &queryir.Compare{
		Op:    queryir.CompareOp(f.Op),
		Left:  read,
		Right: &queryir.Constant{Value: v, Type: queryir.ScalarOf(p.Type)},
	}, nil
}

var boolType = queryir.ScalarOf(model.ScalarType{Kind: model.KindBool})

// alias returns as, or the lowercased initial of the entity name.
func alias(as string, t *model.EntityType) string {
	if as != "" {
		return as
	}
	return strings.ToLower(t.Name[:1])
}
