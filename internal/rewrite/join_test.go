package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/queryir"
)

func TestCloneParent(t *testing.T) {
	f := newFixture()
	f.field("Name", f.prop(f.blog, f.m.Blog, "Name"))
	f.parent.Body = []queryir.Clause{
		&queryir.Where{Predicate: &queryir.IsNull{Operand: f.prop(f.blog, f.m.Blog, "Name")}},
		&queryir.OrderBy{Orderings: []queryir.Ordering{{Expr: f.prop(f.blog, f.m.Blog, "Name"), Direction: queryir.Desc}}},
	}
	key := f.m.Blog.Key().Properties
	orderings := SynthesizeOrderings([]queryir.Ordering{{Expr: f.prop(f.blog, f.m.Blog, "Name"), Direction: queryir.Desc}}, key, f.blog, key, f.blog)

	clone, mapping := CloneParent(f.parent, orderings)

	assert.Same(t, f.record, f.parent.Selector, "parent selector is restored")
	assert.Len(t, f.parent.Body, 2, "parent body is untouched")

	require.Contains(t, mapping, f.blog)
	assert.NotEqual(t, f.blog, clone.From)
	assert.Equal(t, mapping[f.blog], clone.From)

	assert.Equal(t, `from b: Blog
where b.Name is null
order by b.Name desc, int(b?.Id) asc
select (b.Name, int(b?.Id))`, queryir.Format(clone))
	assert.Equal(t, queryir.TypeSequence, clone.Result.Kind)

	// The clone reads only its own sources.
	for _, id := range queryir.SourceRefs(clone.Selector) {
		assert.Equal(t, clone.From, id)
	}
}

func TestSynthesizeJoin(t *testing.T) {
	f := newFixture()
	sq, p := correlated(f.a, f.m.Posts, f.blog, "p", 0)
	key := f.m.Blog.Key().Properties
	clone, _ := CloneParent(f.parent, SynthesizeOrderings(nil, key, f.blog, key, f.blog))

	join, err := SynthesizeJoin(sq.Plan, clone, f.m.Posts.ForeignKey, p, "b")
	require.NoError(t, err)

	src := f.a.Source(join)
	assert.Equal(t, "_b", src.Name)
	assert.Equal(t, queryir.SourceSubquery, src.Kind)
	assert.Same(t, clone, src.Plan)

	first, ok := sq.Plan.Body[0].(*queryir.Join)
	require.True(t, ok, "join is the first clause")
	assert.Equal(t, join, first.Source)
	assert.Equal(t, "p?.BlogId", queryir.FormatExpr(f.a, first.OuterKey))
	assert.Equal(t, "int?(_b[0])", queryir.FormatExpr(f.a, first.InnerKey))
}

func TestSynthesizeJoinCompositeKey(t *testing.T) {
	f := newFixture()
	au := f.a.NewEntitySource("a", f.m.Author)
	authors := queryir.NewPlan(f.a, au)
	sq, k := correlated(f.a, f.m.Books, au, "k", 0)
	key := f.m.Author.Key().Properties
	clone, _ := CloneParent(authors, SynthesizeOrderings(nil, key, au, key, au))

	join, err := SynthesizeJoin(sq.Plan, clone, f.m.Books.ForeignKey, k, "a")
	require.NoError(t, err)

	j := sq.Plan.Body[0].(*queryir.Join)
	assert.Equal(t, join, j.Source)
	assert.Equal(t, "(k?.AuthorRegion, k?.AuthorNumber)", queryir.FormatExpr(f.a, j.OuterKey))
	assert.Equal(t, "(string?(_a[0]), int?(_a[1]))", queryir.FormatExpr(f.a, j.InnerKey))
}

func TestSynthesizeJoinKeyNotFound(t *testing.T) {
	f := newFixture()
	sq, p := correlated(f.a, f.m.Posts, f.blog, "p", 0)
	clone, _ := CloneParent(f.parent, []queryir.Ordering{{Expr: f.prop(f.blog, f.m.Blog, "Name")}})

	_, err := SynthesizeJoin(sq.Plan, clone, f.m.Posts.ForeignKey, p, "b")
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))
	assert.Equal(t, ErrCodeJoinKeyNotFound, InvariantCodeOf(err))

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Blog", ie.Details["entity"])
	assert.Equal(t, "Id", ie.Details["property"])
}

func TestLiftOrderBy(t *testing.T) {
	f := newFixture()
	sq, p := correlated(f.a, f.m.Posts, f.blog, "p", 0)
	child := sq.Plan
	child.Body = append(child.Body, &queryir.OrderBy{Orderings: []queryir.Ordering{
		{Expr: f.prop(p, f.m.Post, "Title")},
	}})

	from := queryir.NewPlan(f.a, f.a.NewEntitySource("c", f.m.Blog))
	where := &queryir.Where{Predicate: &queryir.IsNull{Operand: f.prop(from.From, f.m.Blog, "Name")}}
	from.Body = []queryir.Clause{
		where,
		&queryir.OrderBy{Orderings: []queryir.Ordering{
			{Expr: f.prop(from.From, f.m.Blog, "Name"), Direction: queryir.Desc},
			{Expr: f.prop(from.From, f.m.Blog, "Id")},
		}},
	}
	join := f.a.NewSubquerySource("_c", from)

	LiftOrderBy(from, child, join)

	assert.Equal(t, []queryir.Clause{where}, from.Body, "orderings are moved, not copied")

	ob, idx := child.LastOrderBy()
	require.NotNil(t, ob)
	assert.Equal(t, len(child.Body)-1, idx)
	assert.Equal(t, []string{"_c[0] desc", "_c[1] asc", "p.Title asc"}, formatOrderings(f.a, ob.Orderings))

	orderBys := 0
	for _, c := range child.Body {
		if _, ok := c.(*queryir.OrderBy); ok {
			orderBys++
		}
	}
	assert.Equal(t, 1, orderBys, "previous child ordering is folded into the lifted clause")
}

func TestLiftOrderByWithoutChildOrdering(t *testing.T) {
	f := newFixture()
	sq, _ := correlated(f.a, f.m.Posts, f.blog, "p", 0)
	key := f.m.Blog.Key().Properties
	clone, _ := CloneParent(f.parent, SynthesizeOrderings(nil, key, f.blog, key, f.blog))
	join := f.a.NewSubquerySource("_b", clone)

	LiftOrderBy(clone, sq.Plan, join)

	assert.False(t, clone.HasOrdering())
	ob, _ := sq.Plan.LastOrderBy()
	require.NotNil(t, ob)
	assert.Equal(t, []string{"_b[0] asc"}, formatOrderings(f.a, ob.Orderings))
}
