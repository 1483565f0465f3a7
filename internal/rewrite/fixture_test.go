package rewrite

import (
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/testutil"
)

// fixture is a parent plan over Blog whose selector is a record that tests
// extend with scalar fields and correlated collections.
type fixture struct {
	m      *testutil.Blogs
	a      *queryir.Arena
	parent *queryir.Plan
	blog   queryir.SourceID
	record *queryir.Record
}

func newFixture() *fixture {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	parent := queryir.NewPlan(a, b)
	rec := &queryir.Record{}
	parent.Selector = rec
	return &fixture{m: m, a: a, parent: parent, blog: b, record: rec}
}

func (f *fixture) field(name string, e queryir.Expr) {
	f.record.Names = append(f.record.Names, name)
	f.record.Values = append(f.record.Values, e)
}

func (f *fixture) prop(src queryir.SourceID, e *model.EntityType, name string) *queryir.Property {
	return queryir.Prop(src, testutil.Prop(e, name))
}

// correlated builds the subquery a query builder produces for nav read off
// parentSrc: a scan of the target filtered by the correlation predicate.
func correlated(a *queryir.Arena, nav *model.Navigation, parentSrc queryir.SourceID, alias string, index int) (*queryir.Subquery, queryir.SourceID) {
	src := a.NewEntitySource(alias, nav.Target())
	child := queryir.NewPlan(a, src)
	fk := nav.ForeignKey
	child.Body = []queryir.Clause{&queryir.Where{Predicate: &queryir.NullSafeEqual{
		Outer: BuildKeyAccess(fk.PrincipalKey.Properties, parentSrc),
		Inner: BuildKeyAccess(fk.Properties, src),
	}}}
	return &queryir.Subquery{
		Plan: child,
		Correlation: &queryir.Correlation{
			Index:      index,
			Navigation: nav,
			Tracking:   true,
			Parent:     parentSrc,
		},
	}, src
}

// selected returns field i of the parent's current selector record. The
// rewrite rebuilds the selector, so f.record is stale afterwards.
func (f *fixture) selected(i int) queryir.Expr {
	return f.parent.Selector.(*queryir.Record).Values[i]
}
