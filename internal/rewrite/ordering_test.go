package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/testutil"
)

func formatOrderings(a *queryir.Arena, os []queryir.Ordering) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = queryir.FormatExpr(a, o.Expr) + " " + o.Direction.String()
	}
	return out
}

func TestSynthesizeOrderingsPriority(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)

	existing := []queryir.Ordering{
		{Expr: queryir.Prop(b, testutil.Prop(m.Blog, "Name")), Direction: queryir.Desc},
	}
	key := m.Blog.Key().Properties

	got := SynthesizeOrderings(existing, key, b, key, b)
	assert.Equal(t, []string{"b.Name desc", "int(b?.Id) asc"}, formatOrderings(a, got))

	// existing is not modified
	assert.Len(t, existing, 1)
}

func TestSynthesizeOrderingsSkipsCoveredKeys(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	id := testutil.Prop(m.Blog, "Id")

	// A user ordering on the key, however it is wrapped, already aligns rows.
	existing := []queryir.Ordering{
		{Expr: &queryir.Convert{Operand: queryir.Prop(b, id), To: queryir.Any}, Direction: queryir.Desc},
	}
	got := SynthesizeOrderings(existing, m.Blog.Key().Properties, b, m.Blog.Key().Properties, b)
	require.Len(t, got, 1)
	assert.Equal(t, queryir.Desc, got[0].Direction)
}

func TestSynthesizeOrderingsCompositeKey(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	src := a.NewEntitySource("a", m.Author)
	key := m.Author.Key().Properties

	got := SynthesizeOrderings(nil, key, src, key, src)
	assert.Equal(t, []string{"string(a?.Region) asc", "int(a?.Number) asc"}, formatOrderings(a, got))
}

func TestSynthesizeOrderingsIdempotent(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	key := m.Blog.Key().Properties

	once := SynthesizeOrderings(nil, key, b, key, b)
	twice := SynthesizeOrderings(once, key, b, key, b)
	assert.Equal(t, formatOrderings(a, once), formatOrderings(a, twice))
}

func TestOrderingSet(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	id := testutil.Prop(m.Blog, "Id")
	name := testutil.Prop(m.Blog, "Name")

	var s OrderingSet
	assert.True(t, s.Add(queryir.Ordering{Expr: queryir.Prop(b, id)}))
	assert.False(t, s.Add(queryir.Ordering{Expr: orderingExpr(id, b)}), "equivalent ordering is not added twice")
	assert.True(t, s.Add(queryir.Ordering{Expr: queryir.Prop(b, name), Direction: queryir.Desc}))

	s.AddAll([]queryir.Ordering{{Expr: queryir.Prop(b, name)}, {Expr: queryir.Prop(b, id)}})
	assert.Equal(t, 2, s.Len())

	list := s.List()
	list[0] = queryir.Ordering{}
	assert.NotNil(t, s.List()[0].Expr, "List returns a copy")
}

func TestEquivalent(t *testing.T) {
	m := testutil.BlogModel()
	a := queryir.NewArena()
	b := a.NewEntitySource("b", m.Blog)
	other := a.NewEntitySource("b2", m.Blog)
	id := testutil.Prop(m.Blog, "Id")
	name := testutil.Prop(m.Blog, "Name")
	key := BuildKeyAccess(m.Blog.Key().Properties, b)

	tests := []struct {
		name string
		x, y queryir.Expr
		want bool
	}{
		{"same read", queryir.Prop(b, id), queryir.Prop(b, id), true},
		{"wrapped read", queryir.Prop(b, id), orderingExpr(id, b), true},
		{"key access element", key.Elements[0], queryir.Prop(b, id), true},
		{"other property", queryir.Prop(b, id), queryir.Prop(b, name), false},
		{"other source", queryir.Prop(b, id), queryir.Prop(other, id), false},
		{"read vs tuple field", queryir.Prop(b, id), &queryir.TupleField{Tuple: queryir.Ref(b), Index: 0}, false},
		{"tuple fields", &queryir.TupleField{Tuple: queryir.Ref(b), Index: 1},
			&queryir.Convert{Operand: &queryir.TupleField{Tuple: queryir.Ref(b), Index: 1}, To: queryir.Any}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equivalent(tt.x, tt.y))
			assert.Equal(t, tt.want, Equivalent(tt.y, tt.x))
		})
	}
}
