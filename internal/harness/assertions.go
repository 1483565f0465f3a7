package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/flatten/internal/buffer"
	"github.com/roach88/flatten/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Mode     string     // Run the assertion read
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Rows     []ir.Value // Rows of the run for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Mode)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Rows) > 0 {
		fmt.Fprintf(&buf, "\nRows:\n")
		for i, row := range e.Rows {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, ir.Format(row))
		}
	}

	return buf.String()
}

// assertResults compares rows with the expected plain data as canonical
// JSON, row by row.
func assertResults(run *ModeRun, assertion Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertResults, Mode: run.Mode, Expected: expected, Actual: actual, Rows: run.Rows}
	}
	if len(run.Rows) != len(assertion.Rows) {
		return fail(fmt.Sprintf("%d rows", len(assertion.Rows)), fmt.Sprintf("%d rows", len(run.Rows)))
	}
	for i, want := range assertion.Rows {
		wantJSON, err := canonicalExpected(want)
		if err != nil {
			return fail(fmt.Sprintf("row %d: %v", i, err), "invalid expectation")
		}
		gotJSON, err := ir.MarshalCanonical(run.Rows[i])
		if err != nil {
			return fail(string(wantJSON), fmt.Sprintf("row %d: %v", i, err))
		}
		if string(wantJSON) != string(gotJSON) {
			return fail(fmt.Sprintf("row %d = %s", i, wantJSON), string(gotJSON))
		}
	}
	return nil
}

// canonicalExpected converts YAML data to canonical JSON. Lists become
// arrays and maps become objects, matching how results marshal.
func canonicalExpected(v any) ([]byte, error) {
	return ir.MarshalCanonical(v)
}

// assertFormatted compares rows with expected ir.Format strings, in order.
func assertFormatted(run *ModeRun, assertion Assertion) error {
	got := make([]string, len(run.Rows))
	for i, row := range run.Rows {
		got[i] = ir.Format(row)
	}
	want := make([]string, len(assertion.Rows))
	for i, r := range assertion.Rows {
		want[i], _ = r.(string)
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFormatted,
		Mode:     run.Mode,
		Expected: strings.Join(want, "; "),
		Actual:   strings.Join(got, "; "),
	}
}

// assertRowCount checks the number of rows.
func assertRowCount(run *ModeRun, assertion Assertion) error {
	if len(run.Rows) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Mode:     run.Mode,
		Expected: fmt.Sprintf("%d rows", assertion.Count),
		Actual:   fmt.Sprintf("%d rows", len(run.Rows)),
		Rows:     run.Rows,
	}
}

// assertStatementCount checks the number of SQL statements issued.
func assertStatementCount(run *ModeRun, assertion Assertion) error {
	if run.Statements == int64(assertion.Count) {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatementCount,
		Mode:     run.Mode,
		Expected: fmt.Sprintf("%d statements", assertion.Count),
		Actual:   fmt.Sprintf("%d statements", run.Statements),
	}
}

// assertCollectionStats checks the buffer counters of one collection.
func assertCollectionStats(run *ModeRun, assertion Assertion) error {
	var stats *buffer.CollectionStats
	for i := range run.Stats {
		if run.Stats[i].Index == assertion.Index {
			stats = &run.Stats[i]
			break
		}
	}
	if stats == nil {
		return &AssertionError{
			Type:     AssertCollectionStats,
			Mode:     run.Mode,
			Expected: fmt.Sprintf("stats for collection #%d", assertion.Index),
			Actual:   fmt.Sprintf("%d collections reported", len(run.Stats)),
		}
	}

	var diffs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", name, got, *want))
		}
	}
	check("parents", assertion.Parents, stats.Parents)
	check("empty", assertion.Empty, stats.Empty)
	check("elements", assertion.Elements, stats.Elements)
	check("distinct_origins", assertion.DistinctOrigins, int(stats.DistinctOrigins))
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertCollectionStats,
		Mode:     run.Mode,
		Expected: fmt.Sprintf("collection #%d (%s) counters", stats.Index, stats.Navigation),
		Actual:   strings.Join(diffs, ", "),
	}
}

// assertSQLContains checks one explained statement for a fragment.
func assertSQLContains(run *ModeRun, assertion Assertion) error {
	if run.Explain == nil || assertion.Index < 0 || assertion.Index >= len(run.Explain.Statements) {
		n := 0
		if run.Explain != nil {
			n = len(run.Explain.Statements)
		}
		return &AssertionError{
			Type:     AssertSQLContains,
			Mode:     run.Mode,
			Expected: fmt.Sprintf("statement %d", assertion.Index),
			Actual:   fmt.Sprintf("%d statements explained", n),
		}
	}
	stmt := run.Explain.Statements[assertion.Index]
	if strings.Contains(stmt.SQL, assertion.Fragment) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSQLContains,
		Mode:     run.Mode,
		Expected: fmt.Sprintf("%s statement containing %q", stmt.Label, assertion.Fragment),
		Actual:   stmt.SQL,
	}
}

// assertEquivalent checks that both modes produced identical rows.
func assertEquivalent(rewritten, naive *ModeRun) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertEquivalent,
			Mode:     ModeRewritten,
			Expected: "rewritten rows equal naive rows",
			Actual:   actual,
			Rows:     rewritten.Rows,
		}
	}
	if len(rewritten.Rows) != len(naive.Rows) {
		return fail(fmt.Sprintf("%d rewritten rows, %d naive rows", len(rewritten.Rows), len(naive.Rows)))
	}
	for i := range rewritten.Rows {
		r, n := ir.Format(rewritten.Rows[i]), ir.Format(naive.Rows[i])
		if r != n || !ir.Equal(rewritten.Rows[i], naive.Rows[i]) {
			return fail(fmt.Sprintf("row %d: rewritten %s, naive %s", i, r, n))
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and returns their failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		run := result.Runs[a.mode()]
		if run == nil {
			errs = append(errs, fmt.Sprintf("assertion %d: mode %s did not run", i, a.mode()))
			continue
		}

		var err error
		switch a.Type {
		case AssertResults:
			err = assertResults(run, a)
		case AssertFormatted:
			err = assertFormatted(run, a)
		case AssertRowCount:
			err = assertRowCount(run, a)
		case AssertStatementCount:
			err = assertStatementCount(run, a)
		case AssertCollectionStats:
			err = assertCollectionStats(run, a)
		case AssertSQLContains:
			err = assertSQLContains(run, a)
		case AssertEquivalent:
			if result.Rewritten() == nil || result.Naive() == nil {
				err = fmt.Errorf("equivalent needs both modes")
			} else {
				err = assertEquivalent(result.Rewritten(), result.Naive())
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
