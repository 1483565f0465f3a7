package model

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/flatten/internal/ir"
)

// DiscriminatorColumn holds the concrete entity type name in tables shared
// by an inheritance hierarchy.
const DiscriminatorColumn = "_type"

// NormalizeName NFC-normalizes an identifier and checks that it is a plain
// identifier (letter or underscore, then letters, digits, underscores).
func NormalizeName(s string) (string, error) {
	s = norm.NFC.String(s)
	if s == "" {
		return "", fmt.Errorf("empty identifier")
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return "", fmt.Errorf("invalid identifier %q", s)
		}
	}
	return s, nil
}

// NewEntityType creates an entity type. When table is empty the lowercased
// name is used; derived types always share the root's table.
func NewEntityType(name, table string, base *EntityType) *EntityType {
	e := &EntityType{Name: name, Table: table, BaseType: base}
	if base != nil {
		e.Table = base.Root().Table
		base.derived = append(base.derived, e)
	} else if e.Table == "" {
		e.Table = strings.ToLower(name)
	}
	return e
}

// AddProperty declares a scalar property on e.
func (e *EntityType) AddProperty(name string, t ScalarType) *Property {
	p := &Property{Name: name, Type: t, DeclaringEntityType: e}
	e.Properties = append(e.Properties, p)
	return p
}

// SetPrimaryKey declares the primary key from property names.
func (e *EntityType) SetPrimaryKey(names ...string) error {
	if e.BaseType != nil {
		return fmt.Errorf("entity %s: derived types inherit the key of %s", e.Name, e.Root().Name)
	}
	k, err := e.resolveKey(names)
	if err != nil {
		return err
	}
	e.PrimaryKey = k
	return nil
}

func (e *EntityType) resolveKey(names []string) (*Key, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("entity %s: key must have at least one property", e.Name)
	}
	k := &Key{Properties: make([]*Property, len(names))}
	for i, n := range names {
		p := e.Property(n)
		if p == nil {
			return nil, fmt.Errorf("entity %s: unknown key property %q", e.Name, n)
		}
		k.Properties[i] = p
	}
	return k, nil
}

// AddNavigation declares a collection navigation from e to target, where
// fk names properties of target and principal names properties of e.
// An empty principal list means e's primary key.
func (e *EntityType) AddNavigation(name string, target *EntityType, fk, principal []string, kind ir.CollectionKind) (*Navigation, error) {
	fkProps, err := target.resolveKey(fk)
	if err != nil {
		return nil, fmt.Errorf("navigation %s.%s: foreign key: %w", e.Name, name, err)
	}
	pk := e.Key()
	if len(principal) > 0 {
		if pk, err = e.resolveKey(principal); err != nil {
			return nil, fmt.Errorf("navigation %s.%s: principal key: %w", e.Name, name, err)
		}
	}
	if pk == nil {
		return nil, fmt.Errorf("navigation %s.%s: %s has no primary key", e.Name, name, e.Name)
	}
	if len(pk.Properties) != len(fkProps.Properties) {
		return nil, fmt.Errorf("navigation %s.%s: foreign key has %d properties, principal key has %d",
			e.Name, name, len(fkProps.Properties), len(pk.Properties))
	}
	for i, p := range fkProps.Properties {
		if p.Type.Kind != pk.Properties[i].Type.Kind {
			return nil, fmt.Errorf("navigation %s.%s: %s is %s but %s is %s", e.Name, name,
				p.Name, p.Type.Kind, pk.Properties[i].Name, pk.Properties[i].Type.Kind)
		}
	}
	if kind == "" {
		kind = ir.KindList
	}
	nav := &Navigation{
		Name:                name,
		DeclaringEntityType: e,
		ForeignKey: &ForeignKey{
			DeclaringEntityType: target,
			Properties:          fkProps.Properties,
			PrincipalEntityType: e,
			PrincipalKey:        pk,
		},
		CollectionKind: kind,
	}
	e.Navigations = append(e.Navigations, nav)
	return nav, nil
}

// Derived returns the types directly derived from e.
func (e *EntityType) Derived() []*EntityType {
	return e.derived
}

// Discriminated reports whether e's table is shared by a hierarchy and so
// carries DiscriminatorColumn.
func (e *EntityType) Discriminated() bool {
	return len(e.Root().derived) > 0
}

// Hierarchy returns e and every type derived from it, depth first.
func (e *EntityType) Hierarchy() []*EntityType {
	out := []*EntityType{e}
	for _, d := range e.derived {
		out = append(out, d.Hierarchy()...)
	}
	return out
}
