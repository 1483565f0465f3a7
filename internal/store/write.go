package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// Insert writes one row of entity type e. Fields not present in rec are
// stored as NULL; fields e does not declare are an error. Rows of
// discriminated tables are stamped with e's name.
func (s *Store) Insert(ctx context.Context, e *model.EntityType, rec *ir.Record) error {
	var cols, marks []string
	var args []any
	for i, name := range rec.Names {
		p := e.Property(name)
		if p == nil {
			return fmt.Errorf("insert %s: unknown property %q", e.Name, name)
		}
		arg, err := encodeValue(rec.Values[i])
		if err != nil {
			return fmt.Errorf("insert %s.%s: %w", e.Name, name, err)
		}
		cols = append(cols, quoteIdent(name))
		marks = append(marks, "?")
		args = append(args, arg)
	}
	if e.Discriminated() {
		cols = append(cols, quoteIdent(model.DiscriminatorColumn))
		marks = append(marks, "?")
		args = append(args, e.Name)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(e.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %s: %w", e.Name, err)
	}
	return nil
}
