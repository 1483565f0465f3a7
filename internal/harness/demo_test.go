package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

// TestDemoScenarios runs every scenario shipped in testdata/scenarios.
// They serve as end-to-end checks of the compiler, the rewrite and both
// execution modes, and as reference examples of the scenario format.
func TestDemoScenarios(t *testing.T) {
	files, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario from %s", path)
			assert.NotEmpty(t, scenario.Description, "scenario should have description")

			result, err := Run(scenario)
			require.NoError(t, err, "scenario setup failed")
			require.NotNil(t, result)
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

// TestDemoScenariosDeterministic runs the same scenario twice and compares
// the snapshots byte for byte.
func TestDemoScenariosDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenariosDir, "posts_with_comments.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := (&Snapshot{ScenarioName: scenario.Name, Runs: first.Runs}).Marshal()
	require.NoError(t, err)
	b, err := (&Snapshot{ScenarioName: scenario.Name, Runs: second.Runs}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestFindScenarios_Filter(t *testing.T) {
	files, err := FindScenarios(scenariosDir, "blogs_*")
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"blogs_with_posts.yaml", "blogs_with_tags.yaml"}, names)

	_, err = FindScenarios(scenariosDir, "[")
	require.Error(t, err)
}
