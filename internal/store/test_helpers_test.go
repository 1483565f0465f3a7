package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/testutil"
)

// createTestStore creates a new file-backed store with the blog schema.
func createTestStore(t *testing.T) (*Store, *testutil.Blogs) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	m := testutil.BlogModel()
	if err := s.ApplySchema(context.Background(), m.Model); err != nil {
		t.Fatalf("ApplySchema() failed: %v", err)
	}
	return s, m
}

func rec(fields ...ir.Field) *ir.Record {
	return ir.NewRecord(fields...)
}
