package engine

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/rewrite"
	"github.com/roach88/flatten/internal/store"
	"github.com/roach88/flatten/internal/testutil"
)

// setupTestStore opens a store with the blog schema and fixture rows:
//
//	Blog 1 Alpha: Posts 10, 11 (Comments 100, 101 on 10); Tags go, db
//	Blog 2 Beta:  Posts 12, 13 (FeaturedPost; Comment 102 on 12)
//	Blog 3 Gamma: no posts; Tag sql
//	Post 14 has no blog, Comment 103 has no post.
//	Authors (eu,1) and (us,1) with Books 1 and 2; Book 3 has a partial key.
func setupTestStore(t *testing.T) (*store.Store, *testutil.Blogs) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := testutil.BlogModel()
	ctx := context.Background()
	require.NoError(t, s.ApplySchema(ctx, m.Model))

	insert := func(e *model.EntityType, fields ...ir.Field) {
		t.Helper()
		require.NoError(t, s.Insert(ctx, e, ir.NewRecord(fields...)))
	}

	insert(m.Blog, ir.F("Id", ir.Int(1)), ir.F("Name", ir.String("Alpha")))
	insert(m.Blog, ir.F("Id", ir.Int(2)), ir.F("Name", ir.String("Beta")))
	insert(m.Blog, ir.F("Id", ir.Int(3)), ir.F("Name", ir.String("Gamma")))

	post := func(id int64, blog ir.Value, title string, rank int64) []ir.Field {
		return []ir.Field{
			ir.F("Id", ir.Int(id)), ir.F("BlogId", blog),
			ir.F("Title", ir.String(title)), ir.F("Rank", ir.Int(rank)),
		}
	}
	insert(m.Post, post(10, ir.Int(1), "b-second", 2)...)
	insert(m.Post, post(11, ir.Int(1), "a-first", 1)...)
	insert(m.Post, post(12, ir.Int(2), "c-plain", 1)...)
	insert(m.FeaturedPost, append(post(13, ir.Int(2), "d-featured", 2), ir.F("Badge", ir.String("gold")))...)
	insert(m.Post, post(14, ir.Null{}, "orphan", 1)...)

	comment := func(id int64, postID ir.Value, body string) {
		insert(m.Comment, ir.F("Id", ir.Int(id)), ir.F("PostId", postID), ir.F("Body", ir.String(body)))
	}
	comment(100, ir.Int(10), "first!")
	comment(101, ir.Int(10), "nice")
	comment(102, ir.Int(12), "hello")
	comment(103, ir.Null{}, "lost")

	insert(m.Tag, ir.F("Id", ir.Int(1)), ir.F("BlogId", ir.Int(1)), ir.F("Label", ir.String("go")))
	insert(m.Tag, ir.F("Id", ir.Int(2)), ir.F("BlogId", ir.Int(3)), ir.F("Label", ir.String("sql")))
	insert(m.Tag, ir.F("Id", ir.Int(3)), ir.F("BlogId", ir.Int(1)), ir.F("Label", ir.String("db")))

	insert(m.Author, ir.F("Region", ir.String("eu")), ir.F("Number", ir.Int(1)), ir.F("Name", ir.String("Ann")))
	insert(m.Author, ir.F("Region", ir.String("us")), ir.F("Number", ir.Int(1)), ir.F("Name", ir.String("Bob")))
	book := func(id int64, region, number ir.Value, title string) {
		insert(m.Book, ir.F("Id", ir.Int(id)), ir.F("AuthorRegion", region),
			ir.F("AuthorNumber", number), ir.F("Title", ir.String(title)))
	}
	book(1, ir.String("eu"), ir.Int(1), "Dune")
	book(2, ir.String("us"), ir.Int(1), "Emma")
	book(3, ir.String("eu"), ir.Null{}, "Draft")

	return s, m
}

// query is a plan over one root entity whose selector is a record.
type query struct {
	a      *queryir.Arena
	plan   *queryir.Plan
	root   queryir.SourceID
	record *queryir.Record
}

func newQuery(e *model.EntityType, alias string) *query {
	a := queryir.NewArena()
	root := a.NewEntitySource(alias, e)
	plan := queryir.NewPlan(a, root)
	rec := &queryir.Record{}
	plan.Selector = rec
	return &query{a: a, plan: plan, root: root, record: rec}
}

func (q *query) field(name string, e queryir.Expr) *query {
	q.record.Names = append(q.record.Names, name)
	q.record.Values = append(q.record.Values, e)
	return q
}

func (q *query) prop(e *model.EntityType, name string) *queryir.Property {
	return queryir.Prop(q.root, testutil.Prop(e, name))
}

// correlated builds the navigation subquery for nav read off parentSrc.
func correlated(a *queryir.Arena, nav *model.Navigation, parentSrc queryir.SourceID, alias string, index int) (*queryir.Subquery, queryir.SourceID) {
	src := a.NewEntitySource(alias, nav.Target())
	child := queryir.NewPlan(a, src)
	fk := nav.ForeignKey
	child.Body = []queryir.Clause{&queryir.Where{Predicate: &queryir.NullSafeEqual{
		Outer: rewrite.BuildKeyAccess(fk.PrincipalKey.Properties, parentSrc),
		Inner: rewrite.BuildKeyAccess(fk.Properties, src),
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

// newTestEngine creates an engine with a fixed pass id and a discarded log.
func newTestEngine(s *store.Store, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithPassIDGenerator(testutil.NewFixedPassIDGenerator("test-pass")),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}
	return New(s, append(base, opts...)...)
}

func field(t *testing.T, v ir.Value, name string) ir.Value {
	t.Helper()
	rec, ok := v.(*ir.Record)
	require.True(t, ok, "row is %T, want *ir.Record", v)
	f, ok := rec.Get(name)
	require.True(t, ok, "row has no field %s", name)
	return f
}

// keys returns the formatted key of every entity in a collection.
func keys(t *testing.T, v ir.Value) []string {
	t.Helper()
	coll, ok := v.(ir.Collection)
	require.True(t, ok, "value is %T, want ir.Collection", v)
	out := []string{}
	for _, item := range coll.Items() {
		out = append(out, ir.Format(item))
	}
	return out
}
