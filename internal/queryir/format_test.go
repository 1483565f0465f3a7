package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/testutil"
)

func TestFormatCorrelatedSubquery(t *testing.T) {
	fx := newBlogPosts()
	title := testutil.Prop(fx.m.Post, "Title")
	fx.child.Body = append(fx.child.Body, &OrderBy{Orderings: []Ordering{{Expr: Prop(fx.post, title), Direction: Desc}}})

	want := `from b: Blog
select {Name: b.Name, Posts: subquery #0 Blog.Posts tracking (
  from p: Post
  where b?.Id ?= p?.BlogId
  order by p.Title desc
  select p
)}`
	assert.Equal(t, want, Format(fx.parent))
}

func TestFormatJoinAgainstSubquerySource(t *testing.T) {
	fx := newBlogPosts()
	a := fx.parent.Arena
	id := testutil.Prop(fx.m.Blog, "Id")

	inner := NewPlan(a, a.NewEntitySource("b", fx.m.Blog))
	inner.Selector = &Tuple{Elements: []Expr{Prop(inner.From, id)}}
	sub := a.NewSubquerySource("_b", inner)

	plan := NewPlan(a, fx.post)
	plan.Body = []Clause{&Join{
		Source:   sub,
		OuterKey: Prop(fx.post, testutil.Prop(fx.m.Post, "BlogId")),
		InnerKey: &Convert{Operand: &TupleField{Tuple: Ref(sub), Index: 0}, To: ScalarOf(id.Type.AsNullable())},
	}}

	want := `from p: Post
join _b: (
  from b: Blog
  select (b.Id)
) on p.BlogId = int?(_b[0])
select p`
	assert.Equal(t, want, Format(plan))
}

func TestFormatExpr(t *testing.T) {
	fx := newBlogPosts()
	a := fx.parent.Arena

	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"string constant", &Constant{Value: ir.String("a\"b"), Type: Any}, `"a\"b"`},
		{"null constant", Null(Any), "null"},
		{"int constant", &Constant{Value: ir.Int(3), Type: Any}, "3"},
		{"empty and", &And{}, "true"},
		{"single or", &Or{Terms: []Expr{&IsNull{Operand: &Param{Name: "o"}}}}, "o is null"},
		{"conditional", &Conditional{Test: &Param{Name: "t"}, Then: Null(Any), Else: &Param{Name: "e"}}, "(t ? null : e)"},
		{"lambda", &Lambda{Params: []string{"o", "i"}, Body: &Compare{Op: OpEq, Left: &TupleField{Tuple: &Param{Name: "o"}, Index: 0}, Right: &TupleField{Tuple: &Param{Name: "i"}, Index: 0}}}, "(o, i) => o[0] = i[0]"},
		{"ordered", &AsOrdered{Operand: Ref(fx.blog)}, "ordered(b)"},
		{"nullsafe non-property", &NullSafe{Caller: Ref(fx.blog), Access: Ref(fx.post)}, "nullsafe(b, p)"},
		{"invalid handle", Ref(99), "<invalid 99>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatExpr(a, tt.expr))
		})
	}
}
