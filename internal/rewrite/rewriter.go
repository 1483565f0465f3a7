package rewrite

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/queryir"
)

// Rewriter flattens correlated collection subqueries.
//
// Rewrite makes a single pass over a parent plan's selector. Every
// *queryir.Subquery carrying a Correlation is replaced by a
// *queryir.CorrelateCollection (wrapped in *queryir.AsOrdered when the
// child declared an ordering) whose child plan is joined to a clone of the
// parent and ordered so that one streaming pass over the child rows can be
// zipped onto the parent rows.
//
// Rewriter holds no per-plan state and may be reused; a single Rewrite
// call is single-threaded and owns the plan it is given.
type Rewriter struct {
	logger *slog.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLogger sets the logger. Rewrites are logged at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rewriter) {
		r.logger = l
	}
}

// New creates a Rewriter.
func New(opts ...Option) *Rewriter {
	r := &Rewriter{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result describes a completed rewrite.
type Result struct {
	// Collections is the number of collections rewritten, nested ones
	// included.
	Collections int

	// ParentOrderings is the ordering accumulated for the parent plan and
	// applied to its last ordering clause. Empty when the selector held no
	// correlated collection.
	ParentOrderings []queryir.Ordering
}

// pass is the state of one parent-plan rewrite.
type pass struct {
	r         *Rewriter
	parent    *queryir.Plan
	orderings OrderingSet
	nested    int
}

// Rewrite rewrites every correlated collection in parent's selector, then
// applies the accumulated parent orderings to parent. On error the plan
// must be discarded: the rewrite aborts without producing a result.
func (r *Rewriter) Rewrite(parent *queryir.Plan) (*Result, error) {
	p := &pass{r: r, parent: parent}

	var rewritten int
	var firstErr error
	selector := queryir.Transform(parent.Selector, func(e queryir.Expr) queryir.Expr {
		sq, ok := e.(*queryir.Subquery)
		if !ok || sq.Correlation == nil || firstErr != nil {
			return e
		}
		out, err := p.rewriteCollection(sq)
		if err != nil {
			firstErr = err
			return e
		}
		rewritten++
		return out
	})
	if firstErr != nil {
		return nil, firstErr
	}
	parent.Selector = selector

	orderings := p.orderings.List()
	if len(orderings) > 0 {
		if ob, _ := parent.LastOrderBy(); ob != nil {
			ob.Orderings = orderings
		} else {
			parent.Body = append(parent.Body, &queryir.OrderBy{Orderings: orderings})
		}
	}

	return &Result{
		Collections:     rewritten + p.nested,
		ParentOrderings: orderings,
	}, nil
}

// rewriteCollection replaces one correlated subquery.
func (p *pass) rewriteCollection(sq *queryir.Subquery) (queryir.Expr, error) {
	c := sq.Correlation
	child := sq.Plan
	nav := c.Navigation
	fk := nav.ForeignKey
	a := p.parent.Arena

	wrap := func(err error) error { return withCollection(err, c) }

	// The result shape follows the ordering the child declared, before
	// lifted parent orderings are added.
	ordered := child.HasOrdering()

	filter, err := takeCorrelationFilter(child)
	if err != nil {
		return nil, wrap(err)
	}
	outerSrc, err := singleSource(filter.Outer, "outer")
	if err != nil {
		return nil, wrap(err)
	}
	innerSrc, err := singleSource(filter.Inner, "inner")
	if err != nil {
		return nil, wrap(err)
	}

	originSrc := p.parent.From
	origin := a.Source(originSrc)
	if origin.Kind != queryir.SourceEntity {
		return nil, wrap(&InvariantError{
			Code:    ErrCodeOriginNotEntity,
			Message: fmt.Sprintf("parent source %s is a %s", origin.Name, origin.Kind),
		})
	}
	originKeyProps := origin.Entity.Key().Properties

	originKey := BuildKeyAccess(originKeyProps, originSrc)
	outerKey := BuildKeyAccess(fk.PrincipalKey.Properties, outerSrc)
	currentKey := BuildKeyAccess(fk.Properties, innerSrc)

	var existing []queryir.Ordering
	if ob, _ := p.parent.LastOrderBy(); ob != nil {
		existing = ob.Orderings
	}
	p.orderings.AddAll(SynthesizeOrderings(existing, originKeyProps, originSrc, fk.PrincipalKey.Properties, outerSrc))
	parentOrderings := p.orderings.List()

	clone, mapping := CloneParent(p.parent, parentOrderings)
	join, err := SynthesizeJoin(child, clone, fk, innerSrc, origin.Name)
	if err != nil {
		return nil, wrap(err)
	}
	projection := clone.Selector.(*queryir.Tuple).Elements
	LiftOrderBy(clone, child, join)

	remapped, err := remapOriginKey(originKey, mapping, projection, join)
	if err != nil {
		return nil, wrap(err)
	}

	payload := child.Selector
	payloadType := queryir.TypeOf(a, payload)
	child.Selector = &queryir.Tuple{Elements: []queryir.Expr{payload, currentKey, remapped}}

	// Only the navigation's own element type may go through its native
	// collection; anything else is materialized untracked into a list.
	native := payloadType.Kind == queryir.TypeEntity && payloadType.Entity == fk.DeclaringEntityType
	factory := ir.NewList
	if native {
		factory = nav.NewCollection
	}
	tracking := c.Tracking && native

	child.Result = queryir.SequenceOf(queryir.TypeOf(a, child.Selector), ordered)

	nested, err := p.r.Rewrite(child)
	if err != nil {
		return nil, fmt.Errorf("collection #%d (%s): %w", c.Index, nav, err)
	}
	p.nested += nested.Collections

	p.r.logger.Debug("rewrote correlated collection",
		"collection", nav.String(),
		"index", c.Index,
		"orderings", len(parentOrderings),
		"native_factory", native,
		"tracking", tracking,
		"ordered", ordered,
	)

	var out queryir.Expr = &queryir.CorrelateCollection{
		Index:         c.Index,
		Navigation:    nav,
		Factory:       factory,
		NativeFactory: native,
		OuterKey:      outerKey,
		Tracking:      tracking,
		Child:         child,
		Predicate:     BuildCorrelationPredicate(fk),
		ElementType:   payloadType,
	}
	if ordered {
		out = &queryir.AsOrdered{Operand: out}
	}
	return out, nil
}

// takeCorrelationFilter removes and returns the child's single correlation
// filter.
func takeCorrelationFilter(child *queryir.Plan) (*queryir.NullSafeEqual, error) {
	idx := -1
	var filter *queryir.NullSafeEqual
	for i, c := range child.Body {
		w, ok := c.(*queryir.Where)
		if !ok {
			continue
		}
		f, ok := w.Predicate.(*queryir.NullSafeEqual)
		if !ok {
			continue
		}
		if idx >= 0 {
			return nil, NewMissingCorrelationFilterError("child plan has more than one correlation filter")
		}
		idx, filter = i, f
	}
	if idx < 0 {
		return nil, NewMissingCorrelationFilterError("child plan has no correlation filter")
	}
	child.RemoveClause(idx)
	return filter, nil
}

func singleSource(e queryir.Expr, side string) (queryir.SourceID, error) {
	refs := queryir.SourceRefs(e)
	if len(refs) != 1 {
		return 0, NewMissingCorrelationFilterError(
			fmt.Sprintf("correlation filter %s side reads %d row sources, want 1", side, len(refs)))
	}
	return refs[0], nil
}

// remapOriginKey rewrites each origin-key element, a read off the parent's
// origin source, into a read of the joined projection column holding the
// same value.
func remapOriginKey(originKey *queryir.Tuple, mapping queryir.Mapping, projection []queryir.Expr, join queryir.SourceID) (*queryir.Tuple, error) {
	adjusted := queryir.AdjustAfterCloning(originKey, mapping).(*queryir.Tuple)
	out := &queryir.Tuple{Elements: make([]queryir.Expr, len(adjusted.Elements))}
	for i, el := range adjusted.Elements {
		idx := -1
		for j, col := range projection {
			if Equivalent(el, col) {
				idx = j
				break
			}
		}
		if idx < 0 {
			name := fmt.Sprintf("element %d", i)
			if _, p, ok := queryir.PropertyRead(el); ok {
				name = p.Property.Name
			}
			return nil, NewOriginKeyNotFoundError(name)
		}
		out.Elements[i] = &queryir.TupleField{Tuple: queryir.Ref(join), Index: idx}
	}
	return out, nil
}

// withCollection records the collection being rewritten on an
// InvariantError anywhere in err's chain.
func withCollection(err error, c *queryir.Correlation) error {
	var ie *InvariantError
	if errors.As(err, &ie) {
		ie.Collection = c.Index
		ie.Navigation = c.Navigation.String()
	}
	return err
}
