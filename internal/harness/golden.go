package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flatten/internal/ir"
)

// Snapshot captures the observable outcome of a scenario execution:
// the canonical rows and the statement count of each mode.
type Snapshot struct {
	ScenarioName string
	Runs         map[string]*ModeRun
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. Rows are taken from the rewritten run when present.
func (s *Snapshot) toCanonicalMap() map[string]any {
	statements := make(map[string]any, len(s.Runs))
	var rows []ir.Value
	for mode, run := range s.Runs {
		statements[mode] = run.Statements
		if mode == ModeRewritten || rows == nil {
			rows = run.Rows
		}
	}
	list := make([]any, len(rows))
	for i, r := range rows {
		list[i] = r
	}
	return map[string]any{
		"scenario":   s.ScenarioName,
		"statements": statements,
		"rows":       list,
	}
}

// Marshal returns the snapshot as canonical JSON followed by a newline.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := ir.MarshalCanonical(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario fails to run or fails its assertions.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		return fmt.Errorf("scenario %s failed: %v", scenario.Name, result.Errors)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Runs: result.Runs}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
