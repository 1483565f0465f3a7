package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/ir"
)

func buildBlogs(t *testing.T) (*EntityType, *EntityType, *EntityType) {
	t.Helper()

	blog := NewEntityType("Blog", "", nil)
	blog.AddProperty("Id", ScalarType{Kind: KindInt})
	blog.AddProperty("Name", ScalarType{Kind: KindString, Nullable: true})
	require.NoError(t, blog.SetPrimaryKey("Id"))

	post := NewEntityType("Post", "posts", nil)
	post.AddProperty("Id", ScalarType{Kind: KindInt})
	post.AddProperty("BlogId", ScalarType{Kind: KindInt, Nullable: true})
	require.NoError(t, post.SetPrimaryKey("Id"))

	featured := NewEntityType("FeaturedPost", "ignored", post)
	featured.AddProperty("Badge", ScalarType{Kind: KindString, Nullable: true})

	return blog, post, featured
}

func TestParseScalarType(t *testing.T) {
	tests := []struct {
		in      string
		want    ScalarType
		wantErr bool
	}{
		{"int", ScalarType{Kind: KindInt}, false},
		{"string?", ScalarType{Kind: KindString, Nullable: true}, false},
		{"bool", ScalarType{Kind: KindBool}, false},
		{"float", ScalarType{}, true},
		{"?", ScalarType{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScalarType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestScalarTypeDefault(t *testing.T) {
	assert.Equal(t, ir.Int(0), ScalarType{Kind: KindInt}.Default())
	assert.Equal(t, ir.String(""), ScalarType{Kind: KindString}.Default())
	assert.Equal(t, ir.Bool(false), ScalarType{Kind: KindBool}.Default())
	assert.True(t, ir.IsNull(ScalarType{Kind: KindInt, Nullable: true}.Default()))
}

func TestEntityTypeHierarchy(t *testing.T) {
	_, post, featured := buildBlogs(t)

	assert.Equal(t, "posts", featured.Table)
	assert.Same(t, post, featured.Root())
	assert.Same(t, post.PrimaryKey, featured.Key())
	assert.NotNil(t, featured.Property("BlogId"))
	assert.Nil(t, post.Property("Badge"))
	assert.True(t, post.Discriminated())
	assert.True(t, featured.Discriminated())
	assert.Equal(t, []*EntityType{post, featured}, post.Hierarchy())

	names := func(ps []*Property) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return out
	}
	assert.Equal(t, []string{"Id", "BlogId", "Badge"}, names(featured.AllProperties()))
	assert.Equal(t, []string{"Id", "BlogId", "Badge"}, names(post.TableProperties()))

	require.Error(t, featured.SetPrimaryKey("Id"))
}

func TestAddNavigation(t *testing.T) {
	blog, post, _ := buildBlogs(t)

	nav, err := blog.AddNavigation("Posts", post, []string{"BlogId"}, nil, ir.KindSet)
	require.NoError(t, err)

	assert.Same(t, post, nav.Target())
	assert.Same(t, blog, nav.ForeignKey.PrincipalEntityType)
	assert.Same(t, blog.PrimaryKey, nav.ForeignKey.PrincipalKey)
	assert.Equal(t, "Blog.Posts", nav.String())
	assert.Same(t, nav, blog.Navigation("Posts"))
	assert.Equal(t, ir.KindSet, nav.NewCollection().Kind())

	m := New(blog, post)
	assert.Same(t, blog, m.EntityType("Blog"))
	assert.Nil(t, m.EntityType("Nope"))
	assert.Equal(t, []*EntityType{blog, post}, m.EntityTypes())
}

func TestAddNavigationErrors(t *testing.T) {
	blog, post, _ := buildBlogs(t)

	tests := []struct {
		name      string
		fk        []string
		principal []string
		errMsg    string
	}{
		{"unknown fk", []string{"Missing"}, nil, "unknown key property"},
		{"empty fk", nil, nil, "at least one property"},
		{"arity mismatch", []string{"BlogId", "Id"}, nil, "principal key has 1"},
		{"kind mismatch", []string{"BlogId"}, []string{"Name"}, "is int but Name is string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := blog.AddNavigation("Posts", post, tt.fk, tt.principal, ir.KindList)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName("Café")
	require.NoError(t, err)
	assert.Equal(t, "Café", got)

	for _, bad := range []string{"", "1abc", "a-b", "a b"} {
		_, err := NormalizeName(bad)
		assert.Error(t, err, bad)
	}
}
