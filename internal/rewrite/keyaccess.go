package rewrite

import (
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
)

// BuildKeyAccess builds the composite key read of key off src: a tuple
// whose element i is
//
//	any(src?.key[i])
//
// A null row source yields a tuple of nulls rather than an error. Two builds
// from the same inputs are queryir.Equal.
func BuildKeyAccess(key []*model.Property, src queryir.SourceID) *queryir.Tuple {
	t := &queryir.Tuple{Elements: make([]queryir.Expr, len(key))}
	for i, p := range key {
		t.Elements[i] = &queryir.Convert{
			Operand: nullSafeRead(src, p),
			To:      queryir.Any,
		}
	}
	return t
}

func nullSafeRead(src queryir.SourceID, p *model.Property) *queryir.NullSafe {
	return &queryir.NullSafe{
		Caller: queryir.Ref(src),
		Access: queryir.Prop(src, p),
	}
}
