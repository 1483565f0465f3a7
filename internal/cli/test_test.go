package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenario copies one scenario from the shared testdata into dir,
// pointing its model at the shared blog model.
func copyScenario(t *testing.T, dir, name string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, name+".yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), data, 0644))
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(textOpts()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(textOpts()), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(textOpts()), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(jsonOpts()), t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommandSharedScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(textOpts()), scenariosDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ blogs_with_posts")
	assert.Contains(t, out, "✓ blogs_with_tags")
	assert.Contains(t, out, "✓ unknown_field")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(jsonOpts()), scenariosDir, "--filter", "blogs_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "blogs_with_posts", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "blogs_with_tags", resp.Data.Scenarios[1].Name)
}

func TestTestCommandGoldenUpdateAndMismatch(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "blogs_with_tags")
	models := filepath.Join("..", "..", "testdata", "scenarios")

	// Without a golden file, assertions alone decide.
	out, err := execute(t, NewTestCommand(textOpts()), dir, "--models", models)
	require.NoError(t, err, out)

	out, err = execute(t, NewTestCommand(textOpts()), dir, "--models", models, "--update")
	require.NoError(t, err, out)
	goldenPath := filepath.Join(dir, "golden", "blogs_with_tags.golden")
	written, err := os.ReadFile(goldenPath)
	require.NoError(t, err)

	shared, err := os.ReadFile(filepath.Join(scenariosDir, "golden", "blogs_with_tags.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(shared), string(written))

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"rows":[]}`+"\n"), 0644))
	out, err = execute(t, NewTestCommand(textOpts()), dir, "--models", models)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ blogs_with_tags")
	assert.Contains(t, out, "does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong_count
description: "Asserts a row count the data cannot produce"
model: ../models/blog.cue
fixtures:
  - entity: Blog
    rows:
      - {Id: 1, Name: Alpha}
query:
  from: Blog
  select:
    - field: Name
assertions:
  - type: row_count
    count: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_count.yaml"), []byte(scenario), 0644))

	out, err := execute(t, NewTestCommand(jsonOpts()), dir, "--models", filepath.Join("..", "..", "testdata", "scenarios"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "row_count")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := execute(t, NewTestCommand(textOpts()), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "blogs_with_tags.golden"),
		goldenFilePath(filepath.Join("scenarios", "blogs_with_tags.yaml")))
}

func TestTestHelpText(t *testing.T) {
	cmd := NewTestCommand(textOpts())
	assert.Equal(t, "test <scenarios-dir>", cmd.Use)
	assert.Contains(t, cmd.Long, "golden")
}
