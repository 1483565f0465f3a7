package model

import (
	"fmt"
	"sort"

	"github.com/roach88/flatten/internal/ir"
)

// ScalarKind is the storage kind of a property.
type ScalarKind string

const (
	KindInt    ScalarKind = "int"
	KindString ScalarKind = "string"
	KindBool   ScalarKind = "bool"
)

// ScalarType is a property type: a kind plus nullability.
type ScalarType struct {
	Kind     ScalarKind
	Nullable bool
}

// AsNullable returns the nullable variant of t.
func (t ScalarType) AsNullable() ScalarType {
	return ScalarType{Kind: t.Kind, Nullable: true}
}

func (t ScalarType) String() string {
	if t.Nullable {
		return string(t.Kind) + "?"
	}
	return string(t.Kind)
}

// Default is the value an unset t holds: null when t is nullable, the
// kind's zero value otherwise.
func (t ScalarType) Default() ir.Value {
	if t.Nullable {
		return ir.Null{}
	}
	switch t.Kind {
	case KindInt:
		return ir.Int(0)
	case KindString:
		return ir.String("")
	case KindBool:
		return ir.Bool(false)
	default:
		return ir.Null{}
	}
}

// ParseScalarType parses "int", "string?" and friends.
func ParseScalarType(s string) (ScalarType, error) {
	var t ScalarType
	if n := len(s); n > 0 && s[n-1] == '?' {
		t.Nullable = true
		s = s[:n-1]
	}
	switch ScalarKind(s) {
	case KindInt, KindString, KindBool:
		t.Kind = ScalarKind(s)
		return t, nil
	default:
		return ScalarType{}, fmt.Errorf("unknown scalar type %q", s)
	}
}

// Property is a scalar column of an entity type.
type Property struct {
	Name                string
	Type                ScalarType
	DeclaringEntityType *EntityType
}

// Key is an ordered, non-empty list of properties of one entity hierarchy.
type Key struct {
	Properties []*Property
}

// ForeignKey links dependent properties on DeclaringEntityType to the
// PrincipalKey of PrincipalEntityType. Properties and PrincipalKey have the
// same length and correspond positionally.
type ForeignKey struct {
	DeclaringEntityType *EntityType
	Properties          []*Property
	PrincipalEntityType *EntityType
	PrincipalKey        *Key
}

// Navigation is a collection-valued relationship from a principal entity to
// its dependents.
type Navigation struct {
	Name                string
	DeclaringEntityType *EntityType
	ForeignKey          *ForeignKey
	CollectionKind      ir.CollectionKind
}

// Target returns the entity type the navigation yields.
func (n *Navigation) Target() *EntityType {
	return n.ForeignKey.DeclaringEntityType
}

// NewCollection is the navigation's collection factory.
func (n *Navigation) NewCollection() ir.Collection {
	if n.CollectionKind == ir.KindSet {
		return ir.NewSet()
	}
	return ir.NewList()
}

func (n *Navigation) String() string {
	return n.DeclaringEntityType.Name + "." + n.Name
}

// EntityType describes one mapped entity. Derived types share their root's
// table and primary key.
type EntityType struct {
	Name        string
	Table       string
	BaseType    *EntityType
	Properties  []*Property
	PrimaryKey  *Key
	Navigations []*Navigation

	derived []*EntityType
}

// Root returns the top of the inheritance chain.
func (e *EntityType) Root() *EntityType {
	for e.BaseType != nil {
		e = e.BaseType
	}
	return e
}

// Property finds a property declared on e or inherited from a base type.
func (e *EntityType) Property(name string) *Property {
	for t := e; t != nil; t = t.BaseType {
		for _, p := range t.Properties {
			if p.Name == name {
				return p
			}
		}
	}
	return nil
}

// AllProperties returns inherited properties first, then e's own.
func (e *EntityType) AllProperties() []*Property {
	if e.BaseType == nil {
		return e.Properties
	}
	return append(append([]*Property{}, e.BaseType.AllProperties()...), e.Properties...)
}

// TableProperties returns every property stored in e's table: the
// properties of the whole hierarchy under e's root, root first.
func (e *EntityType) TableProperties() []*Property {
	var out []*Property
	for _, t := range e.Root().Hierarchy() {
		out = append(out, t.Properties...)
	}
	return out
}

// Navigation finds a navigation declared on e or inherited from a base type.
func (e *EntityType) Navigation(name string) *Navigation {
	for t := e; t != nil; t = t.BaseType {
		for _, n := range t.Navigations {
			if n.Name == name {
				return n
			}
		}
	}
	return nil
}

// Key returns the primary key, inherited from the root for derived types.
func (e *EntityType) Key() *Key {
	return e.Root().PrimaryKey
}

// Model is the read-only metadata model consumed by the rewrite and the
// execution engine.
type Model struct {
	entities map[string]*EntityType
}

// New builds a model from fully linked entity types.
func New(types ...*EntityType) *Model {
	m := &Model{entities: make(map[string]*EntityType, len(types))}
	for _, t := range types {
		m.entities[t.Name] = t
	}
	return m
}

// EntityType looks up an entity type by name.
func (m *Model) EntityType(name string) *EntityType {
	return m.entities[name]
}

// EntityTypes returns all entity types sorted by name.
func (m *Model) EntityTypes() []*EntityType {
	out := make([]*EntityType, 0, len(m.entities))
	for _, t := range m.entities {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
