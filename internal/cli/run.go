package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/flatten/internal/buffer"
	"github.com/roach88/flatten/internal/engine"
	"github.com/roach88/flatten/internal/harness"
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Fixtures string
	Naive    bool

	// PassIDs overrides the pass id generator (for testing).
	// If nil, defaults to engine.UUIDv7Generator.
	PassIDs engine.PassIDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Mode        string          `json:"mode"`
	Rows        json.RawMessage `json:"rows"`
	RowCount    int             `json:"row_count"`
	Statements  int64           `json:"statements"`
	Collections int             `json:"collections"`
	Stats       []StatsResult   `json:"stats,omitempty"`
}

// StatsResult reports how one flattened collection correlated.
type StatsResult struct {
	Index           int    `json:"index"`
	Navigation      string `json:"navigation"`
	Parents         int    `json:"parents"`
	Empty           int    `json:"empty"`
	Elements        int    `json:"elements"`
	DistinctOrigins uint64 `json:"distinct_origins"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <model> <query>",
		Short: "Execute a query against a SQLite database",
		Long: `Execute a query against a SQLite database and print the result rows.

The model's tables are created if missing. Fixture rows from --fixtures
are inserted before the query runs. Without --db an in-memory database
is used, so --fixtures is the only source of data.

Example:
  flatten run ./models/blog.cue ./queries/blogs.yaml --fixtures ./fixtures.yaml
  flatten run --db ./blog.db ./models/blog.cue ./queries/blogs.yaml --naive`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Fixtures, "fixtures", "", "YAML file of rows to insert before running")
	cmd.Flags().BoolVar(&opts.Naive, "naive", false, "run one child statement per parent row instead of rewriting")

	return cmd
}

func runQuery(opts *RunOptions, modelPath, queryPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	m, plan, err := compilePlan(formatter, modelPath, queryPath)
	if err != nil {
		return err
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return storeError(formatter, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := st.ApplySchema(ctx, m); err != nil {
		return storeError(formatter, "failed to apply schema", err)
	}

	if opts.Fixtures != "" {
		fixtures, err := harness.LoadFixtures(opts.Fixtures)
		if err != nil {
			return storeError(formatter, "failed to load fixtures", err)
		}
		if err := harness.InsertFixtures(ctx, st, m, fixtures); err != nil {
			return storeError(formatter, "failed to insert fixtures", err)
		}
		formatter.VerboseLog("Inserted %d fixture batch(es) from %s", len(fixtures), opts.Fixtures)
	}

	passIDs := opts.PassIDs
	if passIDs == nil {
		passIDs = engine.UUIDv7Generator{}
	}
	eng := engine.New(st,
		engine.WithLogger(logger),
		engine.WithPassIDGenerator(passIDs),
		engine.WithRewrite(!opts.Naive),
	)

	res, err := eng.Execute(ctx, plan)
	if err != nil {
		return outputQueryError(formatter, err)
	}

	if formatter.Format == "json" {
		return outputRunJSON(formatter, opts, res)
	}
	return outputRunText(formatter, opts, res)
}

func storeError(formatter *OutputFormatter, message string, err error) error {
	_ = formatter.Error(ErrCodeStore, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}

func outputRunJSON(formatter *OutputFormatter, opts *RunOptions, res *engine.Result) error {
	rows := make([]any, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = r
	}
	data, err := ir.MarshalCanonical(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}

	return formatter.encode(CLIResponse{
		Status: "ok",
		Data: RunResult{
			Mode:        modeName(opts.Naive),
			Rows:        data,
			RowCount:    len(res.Rows),
			Statements:  res.Statements,
			Collections: res.Collections,
			Stats:       statsResults(res.Stats),
		},
		PassID: res.PassID,
	})
}

func outputRunText(formatter *OutputFormatter, opts *RunOptions, res *engine.Result) error {
	w := formatter.Writer
	if err := ResultTable(w, res.Rows); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintf(w, "\n%d row(s), %d statement(s) (%s)\n", len(res.Rows), res.Statements, modeName(opts.Naive))

	formatter.VerboseLog("pass %s", res.PassID)
	for _, s := range statsResults(res.Stats) {
		formatter.VerboseLog("collection #%d %s: parents=%d empty=%d elements=%d distinct_origins~%d",
			s.Index, s.Navigation, s.Parents, s.Empty, s.Elements, s.DistinctOrigins)
	}
	return nil
}

func statsResults(stats []buffer.CollectionStats) []StatsResult {
	out := make([]StatsResult, len(stats))
	for i, s := range stats {
		out[i] = StatsResult{
			Index:           s.Index,
			Navigation:      s.Navigation,
			Parents:         s.Parents,
			Empty:           s.Empty,
			Elements:        s.Elements,
			DistinctOrigins: s.DistinctOrigins,
		}
	}
	return out
}
