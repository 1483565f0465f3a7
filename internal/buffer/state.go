package buffer

import (
	"github.com/tidwall/btree"

	"github.com/roach88/flatten/internal/ir"
)

type tracked struct {
	key    string
	entity *ir.Entity
}

func byKey(a, b tracked) bool {
	return a.key < b.key
}

// StateManager is the identity map for tracked entities: at most one
// instance per entity type and key. Entries are kept ordered by identity
// key so Entities is deterministic.
type StateManager struct {
	entries *btree.BTreeG[tracked]
	hits    int
}

// NewStateManager creates an empty identity map.
func NewStateManager() *StateManager {
	return &StateManager{entries: btree.NewBTreeG(byKey)}
}

// Resolve returns the tracked instance with v's identity, registering v if
// none exists. Values other than entities are returned unchanged.
func (s *StateManager) Resolve(v ir.Value) ir.Value {
	e, ok := v.(*ir.Entity)
	if !ok {
		return v
	}
	k := tracked{key: ir.IdentityKey(e)}
	if prev, ok := s.entries.Get(k); ok {
		s.hits++
		return prev.entity
	}
	k.entity = e
	s.entries.Set(k)
	return e
}

// Len returns the number of tracked entities.
func (s *StateManager) Len() int {
	return s.entries.Len()
}

// Hits returns how many Resolve calls returned an already tracked instance.
func (s *StateManager) Hits() int {
	return s.hits
}

// Entities returns the tracked entities in identity-key order.
func (s *StateManager) Entities() []*ir.Entity {
	out := make([]*ir.Entity, 0, s.entries.Len())
	s.entries.Scan(func(t tracked) bool {
		out = append(out, t.entity)
		return true
	})
	return out
}
