package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatten/internal/compiler"
	"github.com/roach88/flatten/internal/testutil"
)

type explainResponse struct {
	Status string        `json:"status"`
	Data   ExplainResult `json:"data"`
	PassID string        `json:"pass_id"`
}

func explainJSON(t *testing.T, naive bool) explainResponse {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	opts := &ExplainOptions{
		RootOptions: jsonOpts(),
		Naive:       naive,
		PassIDs:     testutil.NewFixedPassIDGenerator("explain-pass"),
	}
	require.NoError(t, runExplain(opts, blogModel, tagsQuery, cmd))

	var resp explainResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestExplainRewrittenJSON(t *testing.T) {
	resp := explainJSON(t, false)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "explain-pass", resp.PassID)
	assert.Equal(t, "rewritten", resp.Data.Mode)
	assert.Equal(t, 1, resp.Data.Collections)
	assert.NotEmpty(t, resp.Data.Plan)

	require.Len(t, resp.Data.Statements, 2)
	assert.Equal(t, "parent", resp.Data.Statements[0].Label)
	assert.Equal(t, "collection #0 (Blog.Tags)", resp.Data.Statements[1].Label)
	assert.Contains(t, resp.Data.Statements[1].SQL, "INNER JOIN")
}

func TestExplainNaiveJSON(t *testing.T) {
	resp := explainJSON(t, true)

	assert.Equal(t, "naive", resp.Data.Mode)
	assert.Equal(t, 0, resp.Data.Collections)
	require.Len(t, resp.Data.Statements, 1)
	assert.Equal(t, "parent", resp.Data.Statements[0].Label)
	assert.NotContains(t, resp.Data.Statements[0].SQL, "JOIN")
}

func TestExplainText(t *testing.T) {
	out, err := execute(t, NewExplainCommand(textOpts()), blogModel, tagsQuery)
	require.NoError(t, err)

	assert.Contains(t, out, "Plan (rewritten, 1 collection(s) flattened)")
	assert.Contains(t, out, "-- parent\nSELECT")
	assert.Contains(t, out, "-- collection #0 (Blog.Tags)\nSELECT")
}

func TestExplainInvalidQuery(t *testing.T) {
	out, err := execute(t, NewExplainCommand(textOpts()), blogModel, badQuery)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+compiler.ErrUnknownField+"]")
}

func TestExplainMissingArgs(t *testing.T) {
	_, err := execute(t, NewExplainCommand(textOpts()), blogModel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestQueryErrorCode(t *testing.T) {
	verr := compiler.ValidationError{Code: compiler.ErrUnknownEntity, Field: "from", Message: "unknown"}
	assert.Equal(t, compiler.ErrUnknownEntity, queryErrorCode(verr))
	assert.Equal(t, ErrCodeExecution, queryErrorCode(assert.AnError))
}
