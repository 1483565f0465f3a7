package queryir

import (
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// Expr is a sealed interface for plan expressions.
//
// This is a sealed interface - only types in this package implement it.
// Every switch over Expr in this module lists all variants:
//
//   - Row access: *SourceRef, *Property, *NullSafe, *TupleField
//   - Values: *Constant, *Convert, *Tuple, *Record, *Param
//   - Predicates: *Compare, *NullSafeEqual, *And, *Or, *IsNull, *Conditional
//   - Functions: *Lambda
//   - Collections: *Subquery, *CorrelateCollection, *AsOrdered
type Expr interface {
	exprNode()
}

// SourceRef reads the current row of a row source: an entity for entity
// scans, the projected tuple for subquery sources.
type SourceRef struct {
	Source SourceID
}

// Property reads one scalar column off Target, which evaluates to an
// entity row.
type Property struct {
	Target   Expr
	Property *model.Property
}

// NullSafe evaluates Access unless Caller is null, in which case the
// result is null.
//
// Semantics:
//
//	Caller == null ? null : Access
type NullSafe struct {
	Caller Expr
	Access Expr
}

// TupleField reads positional element Index of a tuple-valued expression,
// typically a subquery row source or a lambda parameter.
type TupleField struct {
	Tuple Expr
	Index int
}

// Constant is a literal value of a declared type.
type Constant struct {
	Value ir.Value
	Type  Type
}

// Convert casts Operand to To. Converting to Any is the identity;
// converting null to a non-nullable scalar is a runtime error.
type Convert struct {
	Operand Expr
	To      Type
}

// Tuple builds a positional composite. Element positions are addressed by
// index elsewhere in the plan and must never be reordered.
type Tuple struct {
	Elements []Expr
}

// Record builds a named projection.
type Record struct {
	Names  []string
	Values []Expr
}

// Param references a Lambda parameter by name.
type Param struct {
	Name string
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Compare applies a comparison operator. Null operands make the result
// false, matching SQL filtering.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// NullSafeEqual is the correlation filter navigation expansion places in a
// child plan. Outer reads the parent row, Inner the child row; tuple keys
// compare element-wise and a null element never matches.
type NullSafeEqual struct {
	Outer Expr
	Inner Expr
}

// And is a conjunction. An empty And is true.
type And struct {
	Terms []Expr
}

// Or is a disjunction. An empty Or is false.
type Or struct {
	Terms []Expr
}

// IsNull tests Operand for null.
type IsNull struct {
	Operand Expr
}

// Conditional evaluates Then when Test holds, Else otherwise.
type Conditional struct {
	Test Expr
	Then Expr
	Else Expr
}

// Lambda is an anonymous function over named parameters. It is evaluated
// by the runtime, never compiled to SQL.
type Lambda struct {
	Params []string
	Body   Expr
}

// Correlation marks a Subquery as a correlated navigation collection.
// Index is unique among all collections of one compilation.
type Correlation struct {
	Index      int
	Navigation *model.Navigation
	Tracking   bool
	// Parent is the row source of the enclosing plan the navigation is
	// read from.
	Parent SourceID
}

// Subquery is a nested plan evaluated once per row of the enclosing plan.
// With a Correlation it is a navigation collection awaiting rewrite.
type Subquery struct {
	Plan        *Plan
	Correlation *Correlation
}

// CorrelateCollection is the rewritten form of a correlated collection: a
// call into the runtime correlator.
//
// Semantics (per parent row):
//
//	outer := eval(OuterKey)
//	for each (payload, current, origin) in Child, in order:
//	    stop when !Predicate(outer, current) or origin changes
//	    add payload to Factory()
//
// Child is deferred: the runtime opens it once per Index and streams it
// across parent rows.
type CorrelateCollection struct {
	Index      int
	Navigation *model.Navigation
	Factory    ir.Factory
	// NativeFactory is true when Factory is the navigation's own
	// collection factory rather than the generic list fallback.
	NativeFactory bool
	OuterKey      Expr
	Tracking      bool
	Child         *Plan
	Predicate     *Lambda
	ElementType   Type
}

// AsOrdered marks a collection-valued operand as ordered.
type AsOrdered struct {
	Operand Expr
}

func (*SourceRef) exprNode()           {}
func (*Property) exprNode()            {}
func (*NullSafe) exprNode()            {}
func (*TupleField) exprNode()          {}
func (*Constant) exprNode()            {}
func (*Convert) exprNode()             {}
func (*Tuple) exprNode()               {}
func (*Record) exprNode()              {}
func (*Param) exprNode()               {}
func (*Compare) exprNode()             {}
func (*NullSafeEqual) exprNode()       {}
func (*And) exprNode()                 {}
func (*Or) exprNode()                  {}
func (*IsNull) exprNode()              {}
func (*Conditional) exprNode()         {}
func (*Lambda) exprNode()              {}
func (*Subquery) exprNode()            {}
func (*CorrelateCollection) exprNode() {}
func (*AsOrdered) exprNode()           {}

// Ref is shorthand for &SourceRef{Source: id}.
func Ref(id SourceID) *SourceRef {
	return &SourceRef{Source: id}
}

// Prop is shorthand for a property read off a source.
func Prop(id SourceID, p *model.Property) *Property {
	return &Property{Target: Ref(id), Property: p}
}

// Null returns a null constant of type t.
func Null(t Type) *Constant {
	return &Constant{Value: ir.Null{}, Type: t}
}
