package testutil

import (
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// Blogs is the shared test model:
//
//	Blog(Id)           Posts    -> Post.BlogId (set)
//	                   Tags     -> Tag.BlogId  (list)
//	Post(Id)           Comments -> Comment.PostId (list)
//	FeaturedPost : Post
//	Author(Region, Number)  Books -> Book.(AuthorRegion, AuthorNumber) (list)
//
// Post.BlogId is nullable while Blog.Id is not; Tag.BlogId is not.
type Blogs struct {
	Model *model.Model

	Blog, Post, FeaturedPost, Comment, Tag, Author, Book *model.EntityType

	Posts, Tags, Comments, Books *model.Navigation
}

// Prop returns the named property of e, panicking when absent.
func Prop(e *model.EntityType, name string) *model.Property {
	p := e.Property(name)
	if p == nil {
		panic("testutil: " + e.Name + " has no property " + name)
	}
	return p
}

// BlogModel builds the shared test model. Every call returns fresh,
// unshared metadata.
func BlogModel() *Blogs {
	intT := model.ScalarType{Kind: model.KindInt}
	strT := model.ScalarType{Kind: model.KindString}

	b := &Blogs{}

	b.Blog = model.NewEntityType("Blog", "blogs", nil)
	b.Blog.AddProperty("Id", intT)
	b.Blog.AddProperty("Name", strT.AsNullable())
	must(b.Blog.SetPrimaryKey("Id"))

	b.Post = model.NewEntityType("Post", "posts", nil)
	b.Post.AddProperty("Id", intT)
	b.Post.AddProperty("BlogId", intT.AsNullable())
	b.Post.AddProperty("Title", strT)
	b.Post.AddProperty("Rank", intT)
	must(b.Post.SetPrimaryKey("Id"))

	b.FeaturedPost = model.NewEntityType("FeaturedPost", "", b.Post)
	b.FeaturedPost.AddProperty("Badge", strT.AsNullable())

	b.Comment = model.NewEntityType("Comment", "comments", nil)
	b.Comment.AddProperty("Id", intT)
	b.Comment.AddProperty("PostId", intT.AsNullable())
	b.Comment.AddProperty("Body", strT)
	must(b.Comment.SetPrimaryKey("Id"))

	b.Tag = model.NewEntityType("Tag", "tags", nil)
	b.Tag.AddProperty("Id", intT)
	b.Tag.AddProperty("BlogId", intT)
	b.Tag.AddProperty("Label", strT)
	must(b.Tag.SetPrimaryKey("Id"))

	b.Author = model.NewEntityType("Author", "authors", nil)
	b.Author.AddProperty("Region", strT)
	b.Author.AddProperty("Number", intT)
	b.Author.AddProperty("Name", strT)
	must(b.Author.SetPrimaryKey("Region", "Number"))

	b.Book = model.NewEntityType("Book", "books", nil)
	b.Book.AddProperty("Id", intT)
	b.Book.AddProperty("AuthorRegion", strT.AsNullable())
	b.Book.AddProperty("AuthorNumber", intT.AsNullable())
	b.Book.AddProperty("Title", strT)
	must(b.Book.SetPrimaryKey("Id"))

	b.Posts = mustNav(b.Blog.AddNavigation("Posts", b.Post, []string{"BlogId"}, nil, ir.KindSet))
	b.Tags = mustNav(b.Blog.AddNavigation("Tags", b.Tag, []string{"BlogId"}, nil, ir.KindList))
	b.Comments = mustNav(b.Post.AddNavigation("Comments", b.Comment, []string{"PostId"}, nil, ir.KindList))
	b.Books = mustNav(b.Author.AddNavigation("Books", b.Book, []string{"AuthorRegion", "AuthorNumber"}, nil, ir.KindList))

	b.Model = model.New(b.Blog, b.Post, b.FeaturedPost, b.Comment, b.Tag, b.Author, b.Book)
	return b
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustNav(n *model.Navigation, err error) *model.Navigation {
	must(err)
	return n
}
