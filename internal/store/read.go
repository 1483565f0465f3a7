package store

import (
	"context"
	"fmt"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/querysql"
)

// Row is one decoded result row, laid out as the compiled plan's Layout.
type Row []ir.Value

// Query runs a compiled plan and returns every result row.
//
// The result set is drained and closed before Query returns, so the single
// connection is free for the next query: the engine opens child sequences
// while parent rows are still being evaluated.
//
// Returns an empty slice (not nil) when no rows match.
func (s *Store) Query(ctx context.Context, c *querysql.Compiled) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, c.SQL, c.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	if n := c.Layout.Columns(); len(cols) != n {
		return nil, fmt.Errorf("query returned %d columns, layout expects %d", len(cols), n)
	}

	out := []Row{}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(raw))
		for i, v := range raw {
			if row[i], err = decodeColumn(v, c.Layout.Kinds[i]); err != nil {
				return nil, fmt.Errorf("column %d: %w", i, err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Count returns the number of rows of entity type e, including rows of
// types derived from it.
func (s *Store) Count(ctx context.Context, e *model.EntityType) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(e.Table))
	var args []any
	if e.BaseType != nil {
		types := e.Hierarchy()
		marks := ""
		for i, t := range types {
			if i > 0 {
				marks += ", "
			}
			marks += "?"
			args = append(args, t.Name)
		}
		query += fmt.Sprintf(" WHERE %s IN (%s)", quoteIdent(model.DiscriminatorColumn), marks)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", e.Name, err)
	}
	return n, nil
}
