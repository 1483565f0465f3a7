package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/rewrite"
	"github.com/roach88/flatten/internal/testutil"
)

func TestCompile_SimpleSelect(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	p := queryir.NewPlan(a, b)
	name := queryir.Prop(b, testutil.Prop(m.Blog, "Name"))
	p.Body = []queryir.Clause{
		&queryir.Where{Predicate: &queryir.Compare{
			Op:    queryir.OpEq,
			Left:  name,
			Right: &queryir.Constant{Value: ir.String("widgets"), Type: queryir.ScalarOf(model.ScalarType{Kind: model.KindString})},
		}},
		&queryir.OrderBy{Orderings: []queryir.Ordering{{Expr: name, Direction: queryir.Desc}}},
	}

	compiled, err := NewSQLCompiler().Compile(p)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT t1."Id", t1."Name" FROM "blogs" AS t1 WHERE (t1."Name" = ?) ORDER BY t1."Name" DESC, t1."Id" COLLATE BINARY ASC`,
		compiled.SQL)

	// Verify parameterized query (no interpolation)
	assert.NotContains(t, compiled.SQL, "widgets")
	assert.Equal(t, []any{"widgets"}, compiled.Params)

	src, ok := compiled.Layout.Source(b)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Id": 0, "Name": 1}, src.Props)
	assert.Equal(t, -1, src.Discriminator)
	assert.Equal(t, []model.ScalarKind{model.KindInt, model.KindString}, compiled.Layout.Kinds)
}

func TestCompile_OrderByMandatory(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	au := a.NewEntitySource("a", m.Author)

	compiled, err := NewSQLCompiler().Compile(queryir.NewPlan(a, au))
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL,
		`ORDER BY t1."Region" COLLATE BINARY ASC, t1."Number" COLLATE BINARY ASC`,
		"every part of a composite key breaks ties")
	assert.Empty(t, compiled.Params)
}

func TestCompile_TiebreakSkipsOrderedKeyParts(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	au := a.NewEntitySource("a", m.Author)
	p := queryir.NewPlan(a, au)
	p.Body = []queryir.Clause{&queryir.OrderBy{Orderings: []queryir.Ordering{
		{Expr: queryir.Prop(au, testutil.Prop(m.Author, "Region")), Direction: queryir.Desc},
	}}}

	compiled, err := NewSQLCompiler().Compile(p)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(compiled.SQL,
		`ORDER BY t1."Region" DESC, t1."Number" COLLATE BINARY ASC`), compiled.SQL)
	assert.NotContains(t, compiled.SQL, `t1."Region" COLLATE`)
}

func TestCompile_RewrittenChild(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	parent := queryir.NewPlan(a, b)
	p := a.NewEntitySource("p", m.Post)
	child := queryir.NewPlan(a, p)
	fk := m.Posts.ForeignKey
	child.Body = []queryir.Clause{
		&queryir.Where{Predicate: &queryir.NullSafeEqual{
			Outer: rewrite.BuildKeyAccess(fk.PrincipalKey.Properties, b),
			Inner: rewrite.BuildKeyAccess(fk.Properties, p),
		}},
		&queryir.OrderBy{Orderings: []queryir.Ordering{{Expr: queryir.Prop(p, testutil.Prop(m.Post, "Title"))}}},
	}
	parent.Selector = &queryir.Record{
		Names: []string{"Posts"},
		Values: []queryir.Expr{&queryir.Subquery{Plan: child, Correlation: &queryir.Correlation{
			Navigation: m.Posts, Tracking: true, Parent: b,
		}}},
	}

	_, err := rewrite.New().Rewrite(parent)
	require.NoError(t, err)

	// Sources: b=1, p=2, clone of b=3, join _b=4.
	compiled, err := NewSQLCompiler().Compile(child)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t2."Id", t2."BlogId", t2."Title", t2."Rank", t2."Badge", t2."_type", t4.c0 `+
			`FROM "posts" AS t2 INNER JOIN (SELECT t3."Id" AS c0 FROM "blogs" AS t3) AS t4 ON t2."BlogId" = t4.c0 `+
			`ORDER BY t4.c0 ASC, t2."Title" ASC, t2."Id" COLLATE BINARY ASC`,
		compiled.SQL)

	src, ok := compiled.Layout.Source(p)
	require.True(t, ok)
	assert.Equal(t, 5, src.Discriminator)
	join, ok := compiled.Layout.Source(4)
	require.True(t, ok)
	assert.Equal(t, queryir.SourceSubquery, join.Kind)
	assert.Equal(t, []int{6}, join.Fields)
	assert.Equal(t, 7, compiled.Layout.Columns())
	assert.Equal(t, model.KindInt, compiled.Layout.Kinds[6])

	parentSQL, err := NewSQLCompiler().Compile(parent)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t1."Id", t1."Name" FROM "blogs" AS t1 ORDER BY t1."Id" ASC`,
		parentSQL.SQL)
}

func TestCompile_BoundOuterReferences(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	p := a.NewEntitySource("p", m.Post)
	child := queryir.NewPlan(a, p)
	fk := m.Posts.ForeignKey
	child.Body = []queryir.Clause{&queryir.Where{Predicate: &queryir.NullSafeEqual{
		Outer: rewrite.BuildKeyAccess(fk.PrincipalKey.Properties, b),
		Inner: rewrite.BuildKeyAccess(fk.Properties, p),
	}}}

	c := NewSQLCompiler()
	c.Bound[b] = &ir.Entity{Type: "Blog", Key: ir.Tuple{ir.Int(7)}, Fields: map[string]ir.Value{"Id": ir.Int(7)}}
	compiled, err := c.Compile(child)
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, `WHERE ? = t2."BlogId" ORDER BY t2."Id" COLLATE BINARY ASC`)
	assert.Equal(t, []any{int64(7)}, compiled.Params)

	_, err = NewSQLCompiler().Compile(child)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in scope")
}

func TestCompile_CompositeKeyJoin(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	au := a.NewEntitySource("a", m.Author)
	authors := queryir.NewPlan(a, au)
	k := a.NewEntitySource("k", m.Book)
	books := queryir.NewPlan(a, k)
	fk := m.Books.ForeignKey
	books.Body = []queryir.Clause{&queryir.Where{Predicate: &queryir.NullSafeEqual{
		Outer: rewrite.BuildKeyAccess(fk.PrincipalKey.Properties, au),
		Inner: rewrite.BuildKeyAccess(fk.Properties, k),
	}}}
	authors.Selector = &queryir.Subquery{Plan: books, Correlation: &queryir.Correlation{Navigation: m.Books, Parent: au}}

	_, err := rewrite.New().Rewrite(authors)
	require.NoError(t, err)

	compiled, err := NewSQLCompiler().Compile(books)
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL,
		`INNER JOIN (SELECT t3."Region" AS c0, t3."Number" AS c1 FROM "authors" AS t3) AS t4 `+
			`ON (t2."AuthorRegion" = t4.c0 AND t2."AuthorNumber" = t4.c1)`)
	assert.Contains(t, compiled.SQL, `ORDER BY t4.c0 ASC, t4.c1 ASC, t2."Id" COLLATE BINARY ASC`)
}

func TestCompile_DerivedTypeScan(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	f := a.NewEntitySource("f", m.FeaturedPost)

	compiled, err := NewSQLCompiler().Compile(queryir.NewPlan(a, f))
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, `FROM "posts" AS t1 WHERE t1."_type" IN (?)`)
	assert.Equal(t, []any{"FeaturedPost"}, compiled.Params)

	src, _ := compiled.Layout.Source(f)
	assert.Same(t, m.FeaturedPost, src.ConcreteType("FeaturedPost"))
	assert.Same(t, m.FeaturedPost, src.ConcreteType(""))

	base := queryir.NewPlan(a, a.NewEntitySource("p", m.Post))
	compiled, err = NewSQLCompiler().Compile(base)
	require.NoError(t, err)
	assert.NotContains(t, compiled.SQL, "IN (", "base type scans read the whole table")
	src, _ = compiled.Layout.Source(base.From)
	assert.Same(t, m.FeaturedPost, src.ConcreteType("FeaturedPost"))
	assert.Same(t, m.Post, src.ConcreteType("Post"))
}

func TestCompile_PredicateExpressions(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	p := a.NewEntitySource("p", m.Post)
	plan := queryir.NewPlan(a, p)
	rank := queryir.Prop(p, testutil.Prop(m.Post, "Rank"))
	intT := queryir.ScalarOf(model.ScalarType{Kind: model.KindInt})
	boolT := queryir.ScalarOf(model.ScalarType{Kind: model.KindBool})
	plan.Body = []queryir.Clause{&queryir.Where{Predicate: &queryir.Or{Terms: []queryir.Expr{
		&queryir.IsNull{Operand: queryir.Prop(p, testutil.Prop(m.Post, "BlogId"))},
		&queryir.And{Terms: []queryir.Expr{
			&queryir.Compare{Op: queryir.OpGe, Left: rank, Right: &queryir.Constant{Value: ir.Int(2), Type: intT}},
			&queryir.Conditional{
				Test: &queryir.Compare{Op: queryir.OpNe, Left: rank, Right: &queryir.Constant{Value: ir.Int(5), Type: intT}},
				Then: &queryir.Constant{Value: ir.Bool(true), Type: boolT},
				Else: &queryir.Constant{Value: ir.Bool(false), Type: boolT},
			},
		}},
	}}}}

	compiled, err := NewSQLCompiler().Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL,
		`WHERE ((t1."BlogId" IS NULL) OR ((t1."Rank" >= ?) AND (CASE WHEN (t1."Rank" <> ?) THEN ? ELSE ? END)))`)
	assert.Equal(t, []any{int64(2), int64(5), true, false}, compiled.Params)
}

func TestCompile_Unsupported(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)

	tests := []struct {
		name string
		pred queryir.Expr
	}{
		{"param", &queryir.Param{Name: "o"}},
		{"lambda", &queryir.Lambda{Params: []string{"o"}, Body: &queryir.And{}}},
		{"bare source", queryir.Ref(b)},
		{"tuple vs scalar", &queryir.NullSafeEqual{Outer: &queryir.Tuple{}, Inner: queryir.Ref(b)}},
		{"record constant", &queryir.Constant{Value: ir.NewRecord(), Type: queryir.Any}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := queryir.NewPlan(a, b)
			p.Body = []queryir.Clause{&queryir.Where{Predicate: tt.pred}}
			_, err := NewSQLCompiler().Compile(p)
			assert.Error(t, err)
		})
	}

	_, err := NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}
