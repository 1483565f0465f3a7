package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/flatten/internal/compiler"
	"github.com/roach88/flatten/internal/engine"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/rewrite"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Naive bool

	// PassIDs overrides the pass id generator (for testing).
	// If nil, defaults to engine.UUIDv7Generator.
	PassIDs engine.PassIDGenerator
}

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	Mode        string             `json:"mode"`
	Collections int                `json:"collections"`
	Plan        string             `json:"plan"`
	Statements  []ExplainStatement `json:"statements"`
}

// ExplainStatement is one compiled SQL statement.
type ExplainStatement struct {
	Label  string `json:"label"`
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <model> <query>",
		Short: "Show the rewritten plan and its SQL statements",
		Long: `Compile a query against a model, flatten its correlated collections
and print the resulting plan with one SQL statement per plan.

With --naive the rewrite is skipped and only the parent statement is
shown: naive child statements depend on parent rows.

Example:
  flatten explain ./models/blog.cue ./queries/blogs.yaml
  flatten explain ./models/blog.cue ./queries/blogs.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Naive, "naive", false, "skip the rewrite")

	return cmd
}

func runExplain(opts *ExplainOptions, modelPath, queryPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	_, plan, err := compilePlan(formatter, modelPath, queryPath)
	if err != nil {
		return err
	}

	passIDs := opts.PassIDs
	if passIDs == nil {
		passIDs = engine.UUIDv7Generator{}
	}
	eng := engine.New(nil,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithPassIDGenerator(passIDs),
		engine.WithRewrite(!opts.Naive),
	)

	ex, err := eng.Explain(plan)
	if err != nil {
		return outputQueryError(formatter, err)
	}

	result := ExplainResult{
		Mode:        modeName(opts.Naive),
		Collections: ex.Collections,
		Plan:        ex.Plan,
		Statements:  make([]ExplainStatement, len(ex.Statements)),
	}
	for i, s := range ex.Statements {
		result.Statements[i] = ExplainStatement{Label: s.Label, SQL: s.SQL, Params: s.Params}
	}

	if formatter.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, PassID: ex.PassID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s (%s, %d collection(s) flattened)\n",
		formatter.Colorize("Plan", color.Bold), result.Mode, result.Collections)
	fmt.Fprintln(w, result.Plan)
	for _, s := range result.Statements {
		fmt.Fprintln(w)
		fmt.Fprintln(w, formatter.Colorize("-- "+s.Label, color.FgCyan))
		fmt.Fprintln(w, s.SQL)
		if len(s.Params) > 0 {
			fmt.Fprintf(w, "%s %v\n", formatter.Colorize("-- params:", color.FgCyan), s.Params)
		}
	}
	return nil
}

// compilePlan loads the model and query and compiles the query. Failures
// are reported through formatter and returned as exit errors.
func compilePlan(formatter *OutputFormatter, modelPath, queryPath string) (*model.Model, *queryir.Plan, error) {
	loaded, err := LoadModel(modelPath)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), loadErrorMessage(err), nil)
		return nil, nil, WrapExitError(ExitCommandError, "failed to load model", err)
	}
	q, err := LoadQuery(queryPath)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), loadErrorMessage(err), nil)
		return nil, nil, WrapExitError(ExitCommandError, "failed to load query", err)
	}
	formatter.VerboseLog("Compiling query over %s", q.From)

	plan, err := compiler.CompileQuery(loaded.Model, q)
	if err != nil {
		return nil, nil, outputQueryError(formatter, err)
	}
	return loaded.Model, plan, nil
}

// outputQueryError reports a query that failed validation, rewriting or
// execution. All of these exit with code 1.
func outputQueryError(formatter *OutputFormatter, err error) error {
	code := queryErrorCode(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}

// queryErrorCode returns the most specific code err carries.
func queryErrorCode(err error) string {
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	var xerr *engine.ExecutionError
	if errors.As(err, &xerr) {
		return string(xerr.Code)
	}
	if c := rewrite.InvariantCodeOf(err); c != "" {
		return string(c)
	}
	return ErrCodeExecution
}

func modeName(naive bool) string {
	if naive {
		return "naive"
	}
	return "rewritten"
}
