package ir

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface for runtime values produced by plan execution.
// Only Null, Int, String, Bool, Tuple, Record, *Entity and the collection
// types implement it. There is no float variant: SQLite columns declared
// by the model are int, string or bool only.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null is the absent value. Property reads on a null row source and
// nullable columns with no data yield Null.
type Null struct{}

func (Null) irValue() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) irValue() {}

// String is a string value.
type String string

func (String) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Tuple is a positional composite value. Key accesses, subquery
// projections and the per-child {payload, current key, origin key} triple
// are all tuples.
type Tuple []Value

func (Tuple) irValue() {}

// Record is a named projection. Field order is the declaration order of the
// selector that produced it and is preserved through marshaling.
type Record struct {
	Names  []string
	Values []Value
}

func (*Record) irValue() {}

// NewRecord builds a record from alternating name/value pairs.
func NewRecord(fields ...Field) *Record {
	r := &Record{
		Names:  make([]string, 0, len(fields)),
		Values: make([]Value, 0, len(fields)),
	}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Field is a name/value pair used to construct records.
type Field struct {
	Name  string
	Value Value
}

// F is a shorthand for Field.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (Value, bool) {
	i := slices.Index(r.Names, name)
	if i < 0 {
		return nil, false
	}
	return r.Values[i], true
}

// Set replaces the named field or appends it when absent.
func (r *Record) Set(name string, v Value) {
	if i := slices.Index(r.Names, name); i >= 0 {
		r.Values[i] = v
		return
	}
	r.Names = append(r.Names, name)
	r.Values = append(r.Values, v)
}

// Entity is a materialized entity instance. Identity is (Type, Key):
// the state manager hands out one *Entity per identity when tracking.
type Entity struct {
	Type   string
	Key    Tuple
	Fields map[string]Value
}

func (*Entity) irValue() {}

// Get returns the named field, or Null when the entity has no such field.
func (e *Entity) Get(name string) Value {
	if v, ok := e.Fields[name]; ok {
		return v
	}
	return Null{}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports structural equality. Entities compare by identity
// (type and key), collections by kind and element-wise equality.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Tuple:
		bv, ok := b.(Tuple)
		return ok && equalSlices(av, bv)
	case *Record:
		bv, ok := b.(*Record)
		return ok && slices.Equal(av.Names, bv.Names) && equalSlices(av.Values, bv.Values)
	case *Entity:
		bv, ok := b.(*Entity)
		return ok && av.Type == bv.Type && equalSlices(av.Key, bv.Key)
	case Collection:
		bv, ok := b.(Collection)
		return ok && av.Kind() == bv.Kind() && equalSlices(av.Items(), bv.Items())
	default:
		return false
	}
}

func equalSlices(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Format renders v for human-readable output (tables, logs).
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case String:
		return string(val)
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Tuple:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Format(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *Record:
		parts := make([]string, len(val.Names))
		for i, n := range val.Names {
			parts[i] = n + ": " + Format(val.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Entity:
		return val.Type + Format(val.Key)
	case Collection:
		parts := make([]string, 0, val.Len())
		for _, e := range val.Items() {
			parts = append(parts, Format(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// compareKeysRFC8785 orders object keys by UTF-16 code units as RFC 8785
// requires. Go's native string comparison is UTF-8 and differs for
// characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// sortedKeys returns the keys of m in RFC 8785 order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}
