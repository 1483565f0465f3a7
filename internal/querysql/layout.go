package querysql

import (
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
)

// Layout describes the result row of a compiled plan: which columns hold
// which row source's values, and how to decode each column.
type Layout struct {
	// Kinds holds the scalar kind of each column, "" when untyped.
	Kinds []model.ScalarKind

	sources map[queryir.SourceID]*SourceLayout
}

// SourceLayout locates one row source in a result row.
type SourceLayout struct {
	Source queryir.SourceID
	Kind   queryir.SourceKind

	// Entity, Props and Discriminator describe entity sources: the scanned
	// type, the column of each table property by name, and the column of
	// DiscriminatorColumn (-1 when the table has none).
	Entity        *model.EntityType
	Props         map[string]int
	Discriminator int

	// Fields holds the column of each projection element of a subquery
	// source.
	Fields []int
}

func newLayout() *Layout {
	return &Layout{sources: make(map[queryir.SourceID]*SourceLayout)}
}

// Columns returns the number of result columns.
func (l *Layout) Columns() int {
	return len(l.Kinds)
}

// Source returns the layout of a row source of the compiled plan.
func (l *Layout) Source(id queryir.SourceID) (*SourceLayout, bool) {
	s, ok := l.sources[id]
	return s, ok
}

func (l *Layout) add(kind model.ScalarKind) int {
	l.Kinds = append(l.Kinds, kind)
	return len(l.Kinds) - 1
}

// ConcreteType resolves the concrete entity type of a row from its
// discriminator value. Tables without a discriminator always hold s.Entity.
func (s *SourceLayout) ConcreteType(discriminator string) *model.EntityType {
	if s.Discriminator < 0 || discriminator == "" {
		return s.Entity
	}
	for _, t := range s.Entity.Root().Hierarchy() {
		if t.Name == discriminator {
			return t
		}
	}
	return s.Entity
}
