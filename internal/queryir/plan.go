package queryir

import (
	"fmt"

	"github.com/roach88/flatten/internal/model"
)

// SourceID is a handle to a row source in an Arena. The zero value is
// never a valid handle.
type SourceID int

// SourceKind distinguishes entity scans from subquery sources.
type SourceKind int

const (
	// SourceEntity scans the table of an entity type.
	SourceEntity SourceKind = iota
	// SourceSubquery reads the tuple projection of a nested plan.
	SourceSubquery
)

func (k SourceKind) String() string {
	if k == SourceSubquery {
		return "subquery"
	}
	return "entity"
}

// RowSource is one named origin of rows: an entity table or a subquery.
// Entity is set for SourceEntity, Plan for SourceSubquery.
type RowSource struct {
	ID     SourceID
	Name   string
	Kind   SourceKind
	Entity *model.EntityType
	Plan   *Plan
}

// Arena owns every row source of one compilation.
type Arena struct {
	sources []*RowSource
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// NewEntitySource allocates an entity scan.
func (a *Arena) NewEntitySource(name string, entity *model.EntityType) SourceID {
	return a.add(&RowSource{Name: name, Kind: SourceEntity, Entity: entity})
}

// NewSubquerySource allocates a source reading the projection of plan.
func (a *Arena) NewSubquerySource(name string, plan *Plan) SourceID {
	return a.add(&RowSource{Name: name, Kind: SourceSubquery, Plan: plan})
}

func (a *Arena) add(src *RowSource) SourceID {
	a.sources = append(a.sources, src)
	src.ID = SourceID(len(a.sources))
	return src.ID
}

// Source resolves a handle. It panics on a handle from another arena or the
// zero handle; Validate reports those as errors before execution.
func (a *Arena) Source(id SourceID) *RowSource {
	if id <= 0 || int(id) > len(a.sources) {
		panic(fmt.Sprintf("queryir: invalid source handle %d", id))
	}
	return a.sources[id-1]
}

// Has reports whether id resolves in a.
func (a *Arena) Has(id SourceID) bool {
	return id > 0 && int(id) <= len(a.sources)
}

// Len returns the number of allocated sources.
func (a *Arena) Len() int {
	return len(a.sources)
}

// Plan is one logical query.
//
// Semantics:
//
//	SELECT <Selector> FROM <From> <Body joins> WHERE <Body wheres> ORDER BY <last OrderBy>
//
// A plan is owned by exactly one scope: the parent plan, a Subquery node,
// or a subquery RowSource. Clone breaks aliasing when a copy is needed.
type Plan struct {
	Arena    *Arena
	From     SourceID
	Body     []Clause
	Selector Expr
	// Result is the declared shape of the plan's output sequence. The
	// rewrite sets it to an ordered sequence when the plan's ordering is
	// significant to consumers.
	Result Type
}

// NewPlan starts a plan over from with a SourceRef selector.
func NewPlan(a *Arena, from SourceID) *Plan {
	return &Plan{
		Arena:    a,
		From:     from,
		Selector: &SourceRef{Source: from},
		Result:   Type{Kind: TypeSequence},
	}
}

// Source resolves a handle in the plan's arena.
func (p *Plan) Source(id SourceID) *RowSource {
	return p.Arena.Source(id)
}

// LastOrderBy returns the effective ordering clause and its body index,
// or nil and -1 when the plan is unordered.
func (p *Plan) LastOrderBy() (*OrderBy, int) {
	for i := len(p.Body) - 1; i >= 0; i-- {
		if ob, ok := p.Body[i].(*OrderBy); ok {
			return ob, i
		}
	}
	return nil, -1
}

// HasOrdering reports whether the plan declares an explicit ordering.
func (p *Plan) HasOrdering() bool {
	ob, _ := p.LastOrderBy()
	return ob != nil && len(ob.Orderings) > 0
}

// RemoveClause deletes the body clause at index i.
func (p *Plan) RemoveClause(i int) {
	p.Body = append(p.Body[:i:i], p.Body[i+1:]...)
}

// Sources returns the plan's own row sources: From followed by join
// sources in body order. Sources of nested plans are not included.
func (p *Plan) Sources() []SourceID {
	out := []SourceID{p.From}
	for _, c := range p.Body {
		if j, ok := c.(*Join); ok {
			out = append(out, j.Source)
		}
	}
	return out
}

// Clause is a sealed interface for plan body clauses.
//
// Clause types:
//   - *Join: inner join against another row source
//   - *Where: row filter
//   - *OrderBy: ordering; the last one in the body is effective
type Clause interface {
	clauseNode()
}

// Join is an inner equi-join of the plan against Source.
//
// Semantics:
//
//	JOIN <Source> ON <OuterKey> = <InnerKey>
//
// OuterKey reads sources already in scope; InnerKey reads Source. Tuple
// keys compare element-wise.
type Join struct {
	Source   SourceID
	OuterKey Expr
	InnerKey Expr
}

func (*Join) clauseNode() {}

// Where filters rows by a boolean predicate.
type Where struct {
	Predicate Expr
}

func (*Where) clauseNode() {}

// OrderBy orders rows by its orderings, first ordering most significant.
type OrderBy struct {
	Orderings []Ordering
}

func (*OrderBy) clauseNode() {}

// Direction is an ordering direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Ordering is an (expression, direction) pair.
type Ordering struct {
	Expr      Expr
	Direction Direction
}
