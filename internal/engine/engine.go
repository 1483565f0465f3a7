package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/flatten/internal/buffer"
	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/queryir"
	"github.com/roach88/flatten/internal/querysql"
	"github.com/roach88/flatten/internal/rewrite"
	"github.com/roach88/flatten/internal/store"
)

// Engine executes query plans against a store.
//
// Thread-safety model:
//   - Execute() and Explain() may be called from any goroutine; each call
//     owns the plan it is given and its own QueryBuffer
//   - the underlying store serializes statements on its single connection
//   - a StateManager shared through WithStateManager is NOT safe for
//     concurrent executions
type Engine struct {
	store   *store.Store
	logger  *slog.Logger
	passIDs PassIDGenerator
	rewrite bool
	state   *buffer.StateManager
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Statements and rewrites are logged at Debug.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPassIDGenerator sets the pass id generator.
//
// Default: UUIDv7Generator.
func WithPassIDGenerator(g PassIDGenerator) EngineOption {
	return func(e *Engine) {
		e.passIDs = g
	}
}

// WithRewrite enables or disables collection decorrelation.
//
// Default: enabled. Disabled means naive execution, one child statement per
// parent row and collection.
func WithRewrite(enabled bool) EngineOption {
	return func(e *Engine) {
		e.rewrite = enabled
	}
}

// WithStateManager shares one identity map across executions, so tracked
// entities keep their identity between queries. By default every execution
// starts with an empty identity map.
func WithStateManager(s *buffer.StateManager) EngineOption {
	return func(e *Engine) {
		e.state = s
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   s,
		logger:  slog.Default(),
		passIDs: UUIDv7Generator{},
		rewrite: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one execution.
type Result struct {
	// PassID identifies the execution in logs.
	PassID string

	// Rows holds the selector value of every parent row, in parent order.
	Rows []ir.Value

	// Collections is the number of collections the rewrite flattened.
	// Zero in naive mode.
	Collections int

	// Statements is the number of SQL statements issued.
	Statements int64

	// Stats holds per-collection correlation statistics. Empty in naive
	// mode.
	Stats []buffer.CollectionStats

	// Tracked is the number of entities in the identity map afterwards.
	Tracked int
}

// Execute runs plan and returns the selector value of every parent row.
//
// Execute takes ownership of plan: with the rewrite enabled the plan is
// modified in place. Callers that need the original must queryir.Clone it
// first.
func (e *Engine) Execute(ctx context.Context, plan *queryir.Plan) (res *Result, err error) {
	passID := e.passIDs.Generate()
	logger := e.logger.With("pass", passID)

	collections, err := e.prepare(plan, passID, logger)
	if err != nil {
		return nil, err
	}

	opts := []buffer.Option{buffer.WithLogger(logger)}
	if e.state != nil {
		opts = append(opts, buffer.WithStateManager(e.state))
	}
	buf := buffer.New(opts...)
	defer func() {
		if cerr := buf.Close(); cerr != nil && err == nil {
			res, err = nil, fmt.Errorf("close child sequences: %w", cerr)
		}
	}()

	x := &execution{
		ctx:    ctx,
		store:  e.store,
		buf:    buf,
		clock:  NewClock(),
		logger: logger,
		passID: passID,
	}
	rows, err := x.run(plan, nil)
	if err != nil {
		return nil, err
	}
	if n := buf.Leftover(); n > 0 {
		merr := NewMisalignedChildrenError(n)
		merr.PassID = passID
		return nil, merr
	}

	logger.Debug("execution complete",
		"rows", len(rows),
		"collections", collections,
		"statements", x.clock.Current(),
		"tracked", buf.State().Len(),
	)
	return &Result{
		PassID:      passID,
		Rows:        rows,
		Collections: collections,
		Statements:  x.clock.Current(),
		Stats:       buf.Stats(),
		Tracked:     buf.State().Len(),
	}, nil
}

// prepare validates plan and, when enabled, rewrites it. It returns the
// number of collections rewritten.
func (e *Engine) prepare(plan *queryir.Plan, passID string, logger *slog.Logger) (int, error) {
	if plan == nil {
		return 0, fmt.Errorf("execute: nil plan")
	}
	if v := queryir.Validate(plan); !v.IsValid {
		verr := NewInvalidPlanError(v.Problems)
		verr.PassID = passID
		return 0, verr
	}
	if !e.rewrite {
		return 0, nil
	}
	res, err := rewrite.New(rewrite.WithLogger(logger)).Rewrite(plan)
	if err != nil {
		return 0, fmt.Errorf("rewrite: %w", err)
	}
	return res.Collections, nil
}

// Statement is one compiled SQL statement of an explained plan.
type Statement struct {
	// Label names the plan the statement reads: "parent" or the
	// collection it feeds.
	Label  string
	SQL    string
	Params []any
}

// Explanation describes how a plan would execute.
type Explanation struct {
	PassID      string
	Collections int
	// Plan is the plan text after the rewrite.
	Plan string
	// Statements lists the parent statement followed by one statement per
	// flattened collection, depth first. In naive mode only the parent
	// statement is listed: child statements depend on parent rows.
	Statements []Statement
}

// Explain rewrites plan (unless naive) and compiles its statements without
// running them. Like Execute it takes ownership of plan.
func (e *Engine) Explain(plan *queryir.Plan) (*Explanation, error) {
	passID := e.passIDs.Generate()
	collections, err := e.prepare(plan, passID, e.logger.With("pass", passID))
	if err != nil {
		return nil, err
	}

	ex := &Explanation{
		PassID:      passID,
		Collections: collections,
		Plan:        queryir.Format(plan),
	}
	if err := ex.add("parent", plan); err != nil {
		return nil, err
	}
	return ex, nil
}

func (ex *Explanation) add(label string, p *queryir.Plan) error {
	c, err := querysql.NewSQLCompiler().Compile(p)
	if err != nil {
		return fmt.Errorf("compile %s: %w", label, err)
	}
	ex.Statements = append(ex.Statements, Statement{Label: label, SQL: c.SQL, Params: c.Params})

	var firstErr error
	queryir.Walk(p.Selector, func(x queryir.Expr) bool {
		cc, ok := x.(*queryir.CorrelateCollection)
		if !ok || firstErr != nil {
			return firstErr == nil
		}
		firstErr = ex.add(fmt.Sprintf("collection #%d (%s)", cc.Index, cc.Navigation), cc.Child)
		return true
	})
	return firstErr
}
