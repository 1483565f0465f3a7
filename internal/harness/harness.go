package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/flatten/internal/compiler"
	"github.com/roach88/flatten/internal/engine"
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
	"github.com/roach88/flatten/internal/rewrite"
	"github.com/roach88/flatten/internal/store"
	"github.com/roach88/flatten/internal/testutil"
)

// DefaultPassID is the pass ID used when a scenario sets none.
const DefaultPassID = "test-pass-default"

// Harness is the scenario execution engine.
// It runs one scenario against a private in-memory database.
type Harness struct {
	store  *store.Store
	model  *model.Model
	passID string
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the model and create its schema
// 2. Insert fixtures
// 3. Compile and execute the query in each mode, then explain it
// 4. Check expect_error, or evaluate assertions
//
// The returned error covers setup failures only; query failures are
// recorded on the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	m, err := compiler.LoadModel(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.ApplySchema(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	passID := scenario.PassID
	if passID == "" {
		passID = DefaultPassID
	}
	h := &Harness{
		store:  st,
		model:  m,
		passID: passID,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // engine logs are dropped; failures surface on the Result
	}

	if err := h.insertFixtures(ctx, scenario.Fixtures); err != nil {
		return nil, fmt.Errorf("failed to insert fixtures: %w", err)
	}

	result := NewResult()
	for _, mode := range scenario.modes() {
		result.Runs[mode] = h.execute(ctx, mode, &scenario.Query)
	}

	if scenario.ExpectError != "" {
		for _, mode := range scenario.modes() {
			run := result.Runs[mode]
			switch {
			case run.Err == nil:
				result.AddError(fmt.Sprintf("%s: expected error %s, query succeeded", mode, scenario.ExpectError))
			case !HasErrorCode(run.Err, scenario.ExpectError):
				result.AddError(fmt.Sprintf("%s: expected error %s, got: %v", mode, scenario.ExpectError, run.Err))
			}
		}
		return result, nil
	}

	for _, mode := range scenario.modes() {
		if run := result.Runs[mode]; run.Err != nil {
			result.AddError(fmt.Sprintf("%s: %v", mode, run.Err))
		}
	}
	if !result.Pass {
		return result, nil
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// insertFixtures writes fixture rows in order.
func (h *Harness) insertFixtures(ctx context.Context, fixtures []Fixture) error {
	if err := InsertFixtures(ctx, h.store, h.model, fixtures); err != nil {
		return err
	}
	h.logger.Info("fixtures inserted", "batches", len(fixtures))
	return nil
}

// InsertFixtures writes fixture rows into st in order.
func InsertFixtures(ctx context.Context, st *store.Store, m *model.Model, fixtures []Fixture) error {
	for i, f := range fixtures {
		t := m.EntityType(f.Entity)
		if t == nil {
			return fmt.Errorf("fixtures[%d]: unknown entity type %q", i, f.Entity)
		}
		for j, row := range f.Rows {
			rec, err := toRecord(row)
			if err != nil {
				return fmt.Errorf("fixtures[%d].rows[%d]: %w", i, j, err)
			}
			if err := st.Insert(ctx, t, rec); err != nil {
				return fmt.Errorf("fixtures[%d].rows[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// execute compiles the query afresh for one mode (execution consumes the
// plan), runs it, and explains it.
func (h *Harness) execute(ctx context.Context, mode string, q *compiler.QuerySpec) *ModeRun {
	run := &ModeRun{Mode: mode}
	eng := engine.New(h.store,
		engine.WithLogger(h.logger),
		engine.WithPassIDGenerator(testutil.NewFixedPassIDGenerator(h.passID)),
		engine.WithRewrite(mode == ModeRewritten),
	)

	plan, err := compiler.CompileQuery(h.model, q)
	if err != nil {
		run.Err = err
		return run
	}
	res, err := eng.Execute(ctx, plan)
	if err != nil {
		run.Err = err
		return run
	}
	run.Rows = res.Rows
	run.Statements = res.Statements
	run.Stats = res.Stats

	plan, err = compiler.CompileQuery(h.model, q)
	if err != nil {
		run.Err = err
		return run
	}
	if run.Explain, err = eng.Explain(plan); err != nil {
		run.Err = err
	}

	h.logger.Info("query executed",
		"mode", mode,
		"rows", len(run.Rows),
		"statements", run.Statements,
	)
	return run
}

// HasErrorCode reports whether err carries code: an execution error code,
// a rewrite invariant code, or a query validation code. Other errors match
// when their message contains code.
func HasErrorCode(err error, code string) bool {
	var xerr *engine.ExecutionError
	if errors.As(err, &xerr) {
		return string(xerr.Code) == code
	}
	if c := rewrite.InvariantCodeOf(err); c != "" {
		return string(c) == code
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code == code
	}
	return strings.Contains(err.Error(), code)
}

// toRecord converts a YAML-decoded fixture row into a record.
func toRecord(row map[string]any) (*ir.Record, error) {
	v, err := ir.FromGo(row)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(*ir.Record)
	if !ok {
		return nil, fmt.Errorf("row is %T, not a record", v)
	}
	return rec, nil
}
