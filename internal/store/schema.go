package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/flatten/internal/model"
)

// ApplySchema creates one table per entity hierarchy in m, plus an index
// on every navigation foreign key. It is idempotent.
func (s *Store) ApplySchema(ctx context.Context, m *model.Model) error {
	for _, stmt := range SchemaDDL(m) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// SchemaDDL returns the statements ApplySchema runs, in order.
//
// Properties declared below the root of a hierarchy are nullable columns,
// since rows of other types in the shared table have no value for them.
func SchemaDDL(m *model.Model) []string {
	var tables, indexes []string
	for _, e := range m.EntityTypes() {
		if e.BaseType == nil {
			tables = append(tables, createTable(e))
		}
		for _, nav := range e.Navigations {
			indexes = append(indexes, createIndex(nav.ForeignKey))
		}
	}
	return append(tables, indexes...)
}

func createTable(root *model.EntityType) string {
	var cols []string
	for _, p := range root.TableProperties() {
		col := quoteIdent(p.Name) + " " + columnType(p.Type.Kind)
		if !p.Type.Nullable && p.DeclaringEntityType == root {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if root.Discriminated() {
		cols = append(cols, quoteIdent(model.DiscriminatorColumn)+" TEXT NOT NULL")
	}
	if k := root.PrimaryKey; k != nil {
		names := make([]string, len(k.Properties))
		for i, p := range k.Properties {
			names[i] = quoteIdent(p.Name)
		}
		cols = append(cols, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(root.Table), strings.Join(cols, ", "))
}

func createIndex(fk *model.ForeignKey) string {
	table := fk.DeclaringEntityType.Table
	names := make([]string, len(fk.Properties))
	cols := make([]string, len(fk.Properties))
	for i, p := range fk.Properties {
		names[i] = p.Name
		cols[i] = quoteIdent(p.Name)
	}
	index := "idx_" + table + "_" + strings.Join(names, "_")
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", quoteIdent(index), quoteIdent(table), strings.Join(cols, ", "))
}

func columnType(k model.ScalarKind) string {
	if k == model.KindString {
		return "TEXT"
	}
	// SQLite has no boolean type; bools are stored as 0/1.
	return "INTEGER"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
