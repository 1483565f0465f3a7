package queryir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/testutil"
)

func TestValidateWellFormedPlan(t *testing.T) {
	fx := newBlogPosts()

	result := Validate(fx.parent)
	assert.True(t, result.IsValid, "problems: %v", result.Problems)
	assert.Empty(t, result.Problems)
}

func TestValidateProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(fx *blogPosts)
		want   string
	}{
		{
			name: "empty order by",
			mutate: func(fx *blogPosts) {
				fx.parent.Body = append(fx.parent.Body, &OrderBy{})
			},
			want: "empty order by",
		},
		{
			name: "reference out of scope",
			mutate: func(fx *blogPosts) {
				fx.parent.Body = append(fx.parent.Body, &Where{Predicate: &IsNull{Operand: Ref(fx.post)}})
			},
			want: "out of scope",
		},
		{
			name: "missing correlation filter",
			mutate: func(fx *blogPosts) {
				fx.child.Body = nil
			},
			want: "0 correlation filters",
		},
		{
			name: "two correlation filters",
			mutate: func(fx *blogPosts) {
				fx.child.Body = append(fx.child.Body, fx.child.Body[0])
			},
			want: "2 correlation filters",
		},
		{
			name: "property of other entity",
			mutate: func(fx *blogPosts) {
				fx.parent.Selector.(*Record).Values[0] = Prop(fx.blog, testutil.Prop(fx.m.Post, "Title"))
			},
			want: "Blog has no property Title",
		},
		{
			name: "duplicate index",
			mutate: func(fx *blogPosts) {
				rec := fx.parent.Selector.(*Record)
				sq := rec.Values[1].(*Subquery)
				rec.Names = append(rec.Names, "Again")
				rec.Values = append(rec.Values, &Subquery{Plan: sq.Plan, Correlation: &Correlation{Index: 0, Navigation: sq.Correlation.Navigation, Parent: fx.blog}})
			},
			want: "duplicate collection index 0",
		},
		{
			name: "nil selector",
			mutate: func(fx *blogPosts) {
				fx.parent.Selector = nil
			},
			want: "nil selector",
		},
		{
			name: "correlate without factory",
			mutate: func(fx *blogPosts) {
				fx.parent.Selector = &CorrelateCollection{
					Index:      3,
					Navigation: fx.m.Posts,
					OuterKey:   Ref(fx.blog),
					Child:      NewPlan(fx.parent.Arena, fx.post),
					Predicate:  &Lambda{Params: []string{"o", "i"}, Body: &Constant{Value: ir.Bool(true), Type: Any}},
				}
			},
			want: "correlate #3 has no collection factory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newBlogPosts()
			tt.mutate(fx)

			result := Validate(fx.parent)
			assert.False(t, result.IsValid)
			assert.Contains(t, strings.Join(result.Problems, "\n"), tt.want)
		})
	}
}
