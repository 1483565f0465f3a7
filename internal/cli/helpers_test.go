package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var (
	blogModel     = filepath.Join("..", "..", "testdata", "models", "blog.cue")
	tagsQuery     = filepath.Join("..", "..", "testdata", "queries", "blog_tags.yaml")
	badQuery      = filepath.Join("..", "..", "testdata", "queries", "unknown_field.yaml")
	tagsFixtures  = filepath.Join("..", "..", "testdata", "fixtures", "blog_tags.yaml")
	scenariosDir  = filepath.Join("..", "..", "testdata", "scenarios")
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeModel writes a single-file CUE package into a fresh directory and
// returns the directory.
func writeModel(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.cue"), []byte(src), 0644))
	return dir
}

// textOpts returns uncolored text output options.
func textOpts() *RootOptions {
	return &RootOptions{Format: "text", NoColor: true}
}

func jsonOpts() *RootOptions {
	return &RootOptions{Format: "json", NoColor: true}
}
