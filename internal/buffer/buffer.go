package buffer

import (
	"fmt"
	"log/slog"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// Row is one decorrelated child row: the materialized payload, the
// dependent key read off the child (current key) and the parent key it was
// joined to (origin key).
type Row struct {
	Payload    ir.Value
	CurrentKey ir.Value
	OriginKey  ir.Value
}

// Iterator streams child rows in plan order.
type Iterator interface {
	// Next returns the next row. ok is false once the sequence is exhausted.
	Next() (row Row, ok bool, err error)
	Close() error
}

// Predicate decides whether a child's current key correlates to a parent's
// outer key.
type Predicate func(outer, inner ir.Value) (bool, error)

// Correlator materializes correlated collections at run time.
type Correlator interface {
	// CorrelateSubquery returns the collection of navigation nav for the
	// current parent row. children opens the child sequence; it is called at
	// most once per index. outerKey is the parent's principal key.
	CorrelateSubquery(index int, nav *model.Navigation, factory ir.Factory, outerKey ir.Value,
		tracking bool, children func() (Iterator, error), predicate Predicate) (ir.Collection, error)
}

// stream is the open child sequence of one collection index.
type stream struct {
	it      Iterator
	pending *Row
	done    bool
}

// QueryBuffer is the Correlator used by the engine. It is not safe for
// concurrent use: one QueryBuffer serves one query execution.
type QueryBuffer struct {
	logger  *slog.Logger
	state   *StateManager
	streams map[int]*stream
	frames  []map[int]ir.Collection
	stats   *Stats
}

// Option configures a QueryBuffer.
type Option func(*QueryBuffer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *QueryBuffer) {
		b.logger = l
	}
}

// WithStateManager shares an identity map across buffers.
func WithStateManager(s *StateManager) Option {
	return func(b *QueryBuffer) {
		b.state = s
	}
}

// New creates an empty QueryBuffer.
func New(opts ...Option) *QueryBuffer {
	b := &QueryBuffer{
		logger:  slog.Default(),
		streams: make(map[int]*stream),
		stats:   NewStats(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.state == nil {
		b.state = NewStateManager()
	}
	return b
}

// EnterRow opens a memo scope for one parent row and returns the function
// that closes it. Within a scope, repeated reads of the same collection
// index return the same collection instance.
func (b *QueryBuffer) EnterRow() (leave func()) {
	b.frames = append(b.frames, make(map[int]ir.Collection))
	depth := len(b.frames)
	return func() {
		b.frames = b.frames[:depth-1]
	}
}

// CorrelateSubquery implements Correlator.
func (b *QueryBuffer) CorrelateSubquery(index int, nav *model.Navigation, factory ir.Factory, outerKey ir.Value,
	tracking bool, children func() (Iterator, error), predicate Predicate) (ir.Collection, error) {
	var frame map[int]ir.Collection
	if n := len(b.frames); n > 0 {
		frame = b.frames[n-1]
		if c, ok := frame[index]; ok {
			return c, nil
		}
	}

	s, err := b.open(index, nav, children)
	if err != nil {
		return nil, err
	}

	coll := factory()
	var origin ir.Value
	for {
		row, ok, err := s.next()
		if err != nil {
			return nil, fmt.Errorf("collection #%d (%s): %w", index, nav, err)
		}
		if !ok {
			break
		}
		match, err := predicate(outerKey, row.CurrentKey)
		if err != nil {
			return nil, fmt.Errorf("collection #%d (%s): correlation predicate: %w", index, nav, err)
		}
		if !match {
			// A key that does not correlate with itself is unset; no parent
			// can claim the row.
			self, err := predicate(row.CurrentKey, row.CurrentKey)
			if err != nil {
				return nil, fmt.Errorf("collection #%d (%s): correlation predicate: %w", index, nav, err)
			}
			if !self {
				b.stats.reject(index, nav)
				continue
			}
		}
		if !match || (origin != nil && !ir.Equal(origin, row.OriginKey)) {
			s.pending = &row
			break
		}
		if origin == nil {
			origin = row.OriginKey
			b.stats.observe(index, nav, origin)
		}
		payload := row.Payload
		if tracking {
			payload = b.state.Resolve(payload)
		}
		coll.Add(payload)
	}
	b.stats.collection(index, nav, coll.Len())

	if frame != nil {
		frame[index] = coll
	}
	return coll, nil
}

// open returns the stream for index, opening it on first use.
func (b *QueryBuffer) open(index int, nav *model.Navigation, children func() (Iterator, error)) (*stream, error) {
	if s, ok := b.streams[index]; ok {
		return s, nil
	}
	it, err := children()
	if err != nil {
		return nil, fmt.Errorf("open collection #%d (%s): %w", index, nav, err)
	}
	s := &stream{it: it}
	b.streams[index] = s
	b.logger.Debug("opened child sequence", "index", index, "collection", nav.String())
	return s, nil
}

func (s *stream) next() (Row, bool, error) {
	if s.pending != nil {
		row := *s.pending
		s.pending = nil
		return row, true, nil
	}
	if s.done {
		return Row{}, false, nil
	}
	row, ok, err := s.it.Next()
	if err != nil {
		return Row{}, false, err
	}
	if !ok {
		s.done = true
	}
	return row, ok, nil
}

// Leftover reports the number of child rows buffered but never consumed.
// After a complete execution it is zero; a non-zero count means parent and
// child orderings disagreed.
func (b *QueryBuffer) Leftover() int {
	n := 0
	for _, s := range b.streams {
		if s.pending != nil {
			n++
		}
	}
	return n
}

// State returns the identity map used for tracked payloads.
func (b *QueryBuffer) State() *StateManager {
	return b.state
}

// Stats returns correlation statistics gathered so far.
func (b *QueryBuffer) Stats() []CollectionStats {
	return b.stats.Snapshot()
}

// Close closes every opened child sequence. The first error is returned.
func (b *QueryBuffer) Close() error {
	var first error
	for idx, s := range b.streams {
		if err := s.it.Close(); err != nil && first == nil {
			first = fmt.Errorf("close collection #%d: %w", idx, err)
		}
		delete(b.streams, idx)
	}
	return first
}
