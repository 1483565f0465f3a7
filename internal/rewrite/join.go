package rewrite

import (
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
)

// CloneParent clones parent without its selector. The selector is swapped
// for a null constant while cloning so the clone never depends on the
// projection that sibling rewrites are about to replace; the original is
// restored before returning.
//
// The clone's ordering clauses are replaced by a single clause holding
// orderings adjusted onto the cloned sources, and its selector becomes the
// tuple of those ordering expressions. Projection column i therefore holds
// the value of ordering i.
func CloneParent(parent *queryir.Plan, orderings []queryir.Ordering) (*queryir.Plan, queryir.Mapping) {
	selector := parent.Selector
	parent.Selector = queryir.Null(queryir.Any)
	clone, mapping := queryir.Clone(parent)
	parent.Selector = selector

	body := clone.Body[:0]
	for _, c := range clone.Body {
		if _, ok := c.(*queryir.OrderBy); !ok {
			body = append(body, c)
		}
	}
	adjusted := queryir.AdjustOrderings(orderings, mapping)
	clone.Body = append(body, &queryir.OrderBy{Orderings: adjusted})

	projection := &queryir.Tuple{Elements: make([]queryir.Expr, len(adjusted))}
	for i, o := range adjusted {
		projection.Elements[i] = queryir.Copy(o.Expr)
	}
	clone.Selector = projection
	clone.Result = queryir.SequenceOf(queryir.TypeOf(clone.Arena, projection), false)
	return clone, mapping
}

// SynthesizeJoin joins child against a new subquery row source wrapping
// clone, named "_" + name. The outer key reads the foreign key off the
// child's row source; the inner key reads the clone's projection columns
// holding the principal key. The join is placed first in the child body.
func SynthesizeJoin(child, clone *queryir.Plan, fk *model.ForeignKey, childSrc queryir.SourceID, name string) (queryir.SourceID, error) {
	a := child.Arena
	projection := clone.Selector.(*queryir.Tuple).Elements
	join := a.NewSubquerySource("_"+name, clone)

	outer := make([]queryir.Expr, len(fk.Properties))
	inner := make([]queryir.Expr, len(fk.Properties))
	for i, pk := range fk.PrincipalKey.Properties {
		idx := principalColumn(a, projection, pk)
		if idx < 0 {
			return 0, NewJoinKeyNotFoundError(pk.DeclaringEntityType.Name, pk.Name)
		}
		outer[i] = nullSafeRead(childSrc, fk.Properties[i])
		inner[i] = &queryir.Convert{
			Operand: &queryir.TupleField{Tuple: queryir.Ref(join), Index: idx},
			To:      queryir.ScalarOf(pk.Type.AsNullable()),
		}
	}

	clause := &queryir.Join{Source: join}
	if len(outer) == 1 {
		clause.OuterKey, clause.InnerKey = outer[0], inner[0]
	} else {
		clause.OuterKey = &queryir.Tuple{Elements: outer}
		clause.InnerKey = &queryir.Tuple{Elements: inner}
	}
	child.Body = append([]queryir.Clause{clause}, child.Body...)
	return join, nil
}

// principalColumn finds the projection column reading pk: a property read
// of the same name off a source whose entity shares pk's root type.
func principalColumn(a *queryir.Arena, projection []queryir.Expr, pk *model.Property) int {
	root := pk.DeclaringEntityType.Root()
	for i, e := range projection {
		src, p, ok := queryir.PropertyRead(e)
		if !ok || p.Property.Name != pk.Name {
			continue
		}
		rs := a.Source(src)
		if rs.Kind == queryir.SourceEntity && rs.Entity.Root() == root {
			return i
		}
	}
	return -1
}
