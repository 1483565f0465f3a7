package queryir

import (
	"strings"

	"github.com/roach88/flatten/internal/model"
)

// TypeKind classifies expression and plan result types.
type TypeKind int

const (
	// TypeAny is the untyped element type used by key accesses.
	TypeAny TypeKind = iota
	TypeScalar
	TypeEntity
	TypeTuple
	TypeRecord
	// TypeSequence is a plain enumerable plan result.
	TypeSequence
	// TypeOrderedSequence is an enumerable whose order is significant.
	TypeOrderedSequence
	// TypeCollection is a materialized navigation collection.
	TypeCollection
)

// Type is the static type of an expression or plan result. Only the
// fields relevant to Kind are set.
type Type struct {
	Kind   TypeKind
	Scalar model.ScalarType
	Entity *model.EntityType
	// Elems are tuple element types or record field types.
	Elems []Type
	// Names are record field names, parallel to Elems.
	Names []string
	// Elem is the element type of sequences and collections.
	Elem *Type
}

// Any is the untyped element type.
var Any = Type{Kind: TypeAny}

// ScalarOf returns the scalar type t.
func ScalarOf(t model.ScalarType) Type {
	return Type{Kind: TypeScalar, Scalar: t}
}

// EntityOf returns the entity type e.
func EntityOf(e *model.EntityType) Type {
	return Type{Kind: TypeEntity, Entity: e}
}

// SequenceOf returns a sequence of elem, ordered or not.
func SequenceOf(elem Type, ordered bool) Type {
	k := TypeSequence
	if ordered {
		k = TypeOrderedSequence
	}
	return Type{Kind: k, Elem: &elem}
}

// IsNullable reports whether values of t may be null. Only non-nullable
// scalars are guaranteed non-null.
func (t Type) IsNullable() bool {
	return t.Kind != TypeScalar || t.Scalar.Nullable
}

// Same reports type identity. Entity types compare by pointer, so a derived
// type is never the same as its base.
func (t Type) Same(o Type) bool {
	if t.Kind != o.Kind || t.Scalar != o.Scalar || t.Entity != o.Entity ||
		len(t.Elems) != len(o.Elems) || len(t.Names) != len(o.Names) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Same(o.Elems[i]) {
			return false
		}
	}
	for i := range t.Names {
		if t.Names[i] != o.Names[i] {
			return false
		}
	}
	if (t.Elem == nil) != (o.Elem == nil) {
		return false
	}
	return t.Elem == nil || t.Elem.Same(*o.Elem)
}

func (t Type) String() string {
	switch t.Kind {
	case TypeScalar:
		return t.Scalar.String()
	case TypeEntity:
		if t.Entity == nil {
			return "entity"
		}
		return t.Entity.Name
	case TypeTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case TypeRecord:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = t.Names[i] + ": " + e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeSequence, TypeOrderedSequence, TypeCollection:
		name := map[TypeKind]string{
			TypeSequence:        "seq",
			TypeOrderedSequence: "ordered",
			TypeCollection:      "collection",
		}[t.Kind]
		if t.Elem == nil {
			return name
		}
		return name + "<" + t.Elem.String() + ">"
	default:
		return "any"
	}
}
