package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/buffer"
	"github.com/roach88/flatten/internal/engine"
	"github.com/roach88/flatten/internal/ir"
)

func intp(n int) *int { return &n }

// sampleRun is a rewritten run with one row holding a two-element list.
func sampleRun() *ModeRun {
	posts := ir.NewList()
	posts.Add(&ir.Entity{Type: "Post", Key: ir.Tuple{ir.Int(10)}, Fields: map[string]ir.Value{"Id": ir.Int(10)}})
	posts.Add(&ir.Entity{Type: "Post", Key: ir.Tuple{ir.Int(11)}, Fields: map[string]ir.Value{"Id": ir.Int(11)}})
	return &ModeRun{
		Mode:       ModeRewritten,
		Rows:       []ir.Value{ir.NewRecord(ir.F("Id", ir.Int(1)), ir.F("Posts", posts))},
		Statements: 2,
		Stats: []buffer.CollectionStats{
			{Index: 0, Navigation: "Blog.Posts", Parents: 1, Elements: 2, DistinctOrigins: 1},
		},
		Explain: &engine.Explanation{Statements: []engine.Statement{
			{Label: "parent", SQL: "SELECT t0.Id FROM blogs AS t0"},
			{Label: "collection #0 (Blog.Posts)", SQL: "SELECT t1.Id FROM posts AS t1 INNER JOIN (SELECT ...) AS t2"},
		}},
	}
}

func TestAssertResults(t *testing.T) {
	run := sampleRun()

	ok := Assertion{Type: AssertResults, Rows: []any{
		map[string]any{"Id": 1, "Posts": []any{map[string]any{"Id": 10}, map[string]any{"Id": 11}}},
	}}
	assert.NoError(t, assertResults(run, ok))

	wrong := Assertion{Type: AssertResults, Rows: []any{
		map[string]any{"Id": 1, "Posts": []any{map[string]any{"Id": 11}, map[string]any{"Id": 10}}},
	}}
	err := assertResults(run, wrong)
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertResults, aerr.Type)
	assert.Contains(t, aerr.Actual, `{"Id":1,"Posts":[{"Id":10},{"Id":11}]}`)

	err = assertResults(run, Assertion{Type: AssertResults})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 rows")
}

func TestAssertFormatted(t *testing.T) {
	run := sampleRun()
	assert.NoError(t, assertFormatted(run, Assertion{Rows: []any{"{Id: 1, Posts: [Post(10), Post(11)]}"}}))

	err := assertFormatted(run, Assertion{Rows: []any{"{Id: 1, Posts: [Post(10)]}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Post(11)")

	assert.Error(t, assertFormatted(run, Assertion{}))
}

func TestAssertCounts(t *testing.T) {
	run := sampleRun()
	assert.NoError(t, assertRowCount(run, Assertion{Count: 1}))
	assert.Error(t, assertRowCount(run, Assertion{Count: 2}))
	assert.NoError(t, assertStatementCount(run, Assertion{Count: 2}))

	err := assertStatementCount(run, Assertion{Count: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 5 statements")
	assert.Contains(t, err.Error(), "Actual: 2 statements")
}

func TestAssertCollectionStats(t *testing.T) {
	run := sampleRun()
	assert.NoError(t, assertCollectionStats(run, Assertion{Index: 0, Parents: intp(1), Elements: intp(2), DistinctOrigins: intp(1)}))

	err := assertCollectionStats(run, Assertion{Index: 0, Empty: intp(1), DistinctOrigins: intp(3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty=0 (want 1)")
	assert.Contains(t, err.Error(), "distinct_origins=1 (want 3)")

	err = assertCollectionStats(run, Assertion{Index: 4, Parents: intp(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 collections reported")
}

func TestAssertSQLContains(t *testing.T) {
	run := sampleRun()
	assert.NoError(t, assertSQLContains(run, Assertion{Index: 1, Fragment: "INNER JOIN"}))
	assert.Error(t, assertSQLContains(run, Assertion{Index: 0, Fragment: "INNER JOIN"}))

	err := assertSQLContains(run, Assertion{Index: 2, Fragment: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 statements explained")
}

func TestAssertEquivalent(t *testing.T) {
	a, b := sampleRun(), sampleRun()
	b.Mode = ModeNaive
	assert.NoError(t, assertEquivalent(a, b))

	b.Rows = []ir.Value{ir.NewRecord(ir.F("Id", ir.Int(2)), ir.F("Posts", ir.NewList()))}
	err := assertEquivalent(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0")

	b.Rows = nil
	assert.Contains(t, assertEquivalent(a, b).Error(), "1 rewritten rows, 0 naive rows")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Runs[ModeRewritten] = sampleRun()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertRowCount, Count: 1},
		{Type: AssertRowCount, Count: 3},
		{Type: AssertRowCount, Mode: ModeNaive, Count: 1},
		{Type: AssertEquivalent},
	})
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "assertion 1")
	assert.Contains(t, errs[1], "mode naive did not run")
	assert.Contains(t, errs[2], "equivalent needs both modes")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRowCount,
		Mode:     ModeNaive,
		Expected: "2 rows",
		Actual:   "1 rows",
		Rows:     []ir.Value{ir.Int(7)},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: row_count (naive)")
	assert.Contains(t, msg, "Expected: 2 rows")
	assert.Contains(t, msg, "Actual: 1 rows")
	assert.Contains(t, msg, "[1] 7")
}
