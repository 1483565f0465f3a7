package ir

// Collection is a materialized navigation value: the children correlated to
// one parent row. Navigation metadata decides the concrete kind.
type Collection interface {
	Value
	// Add appends v. Sets ignore values whose identity is already present.
	Add(v Value)
	Items() []Value
	Len() int
	Kind() CollectionKind
}

// CollectionKind names the concrete collection type.
type CollectionKind string

const (
	KindList CollectionKind = "list"
	KindSet  CollectionKind = "set"
)

// List is an ordered collection that keeps duplicates.
type List struct {
	items []Value
}

// NewList returns an empty list. It is also the generic collection factory
// used when a navigation's own factory cannot hold the payload type.
func NewList() Collection {
	return &List{}
}

func (*List) irValue() {}

func (l *List) Add(v Value)          { l.items = append(l.items, v) }
func (l *List) Items() []Value       { return l.items }
func (l *List) Len() int             { return len(l.items) }
func (l *List) Kind() CollectionKind { return KindList }

// Set is an insertion-ordered collection deduplicated by IdentityKey.
type Set struct {
	items []Value
	seen  map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() Collection {
	return &Set{seen: make(map[string]struct{})}
}

func (*Set) irValue() {}

func (s *Set) Add(v Value) {
	k := IdentityKey(v)
	if _, dup := s.seen[k]; dup {
		return
	}
	s.seen[k] = struct{}{}
	s.items = append(s.items, v)
}

func (s *Set) Items() []Value       { return s.items }
func (s *Set) Len() int             { return len(s.items) }
func (s *Set) Kind() CollectionKind { return KindSet }

// Factory creates empty collections.
type Factory func() Collection

// Ordered marks a collection whose element order is significant because the
// child query declared an explicit ordering.
type Ordered struct {
	Collection
}

// AsOrdered wraps c. Wrapping an already ordered collection is a no-op.
func AsOrdered(c Collection) Ordered {
	if o, ok := c.(Ordered); ok {
		return o
	}
	return Ordered{Collection: c}
}

// IsOrdered reports whether v is an ordered collection.
func IsOrdered(v Value) bool {
	_, ok := v.(Ordered)
	return ok
}
