package buffer

import (
	"sort"

	"github.com/axiomhq/hyperloglog"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// CollectionStats summarizes how one collection index was correlated.
type CollectionStats struct {
	Index      int
	Navigation string

	// Parents is the number of parent rows that read the collection.
	Parents int
	// Empty is the number of those that got no elements.
	Empty int
	// Elements is the total number of elements materialized.
	Elements int
	// Rejected is the number of child rows dropped because their key was
	// unset.
	Rejected int
	// DistinctOrigins estimates the number of distinct origin keys seen.
	DistinctOrigins uint64
}

type indexStats struct {
	CollectionStats
	origins *hyperloglog.Sketch
}

// Stats accumulates per-index correlation statistics.
type Stats struct {
	byIndex map[int]*indexStats
}

// NewStats creates empty statistics.
func NewStats() *Stats {
	return &Stats{byIndex: make(map[int]*indexStats)}
}

func (s *Stats) get(index int, nav *model.Navigation) *indexStats {
	st, ok := s.byIndex[index]
	if !ok {
		st = &indexStats{
			CollectionStats: CollectionStats{Index: index, Navigation: nav.String()},
			origins:         hyperloglog.New(),
		}
		s.byIndex[index] = st
	}
	return st
}

func (s *Stats) observe(index int, nav *model.Navigation, origin ir.Value) {
	b, err := ir.MarshalCanonical(origin)
	if err != nil {
		b = []byte(ir.Format(origin))
	}
	s.get(index, nav).origins.Insert(b)
}

func (s *Stats) collection(index int, nav *model.Navigation, n int) {
	st := s.get(index, nav)
	st.Parents++
	st.Elements += n
	if n == 0 {
		st.Empty++
	}
}

func (s *Stats) reject(index int, nav *model.Navigation) {
	s.get(index, nav).Rejected++
}

// Snapshot returns the statistics ordered by index.
func (s *Stats) Snapshot() []CollectionStats {
	out := make([]CollectionStats, 0, len(s.byIndex))
	for _, st := range s.byIndex {
		cs := st.CollectionStats
		cs.DistinctOrigins = st.origins.Estimate()
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
