package harness

import (
	"github.com/roach88/flatten/internal/buffer"
	"github.com/roach88/flatten/internal/engine"
	"github.com/roach88/flatten/internal/ir"
)

// Execution modes.
const (
	ModeRewritten = "rewritten"
	ModeNaive     = "naive"
)

// ModeRun is the outcome of executing the scenario query in one mode.
type ModeRun struct {
	Mode       string                   `json:"mode"`
	Rows       []ir.Value               `json:"-"`
	Statements int64                    `json:"statements"`
	Stats      []buffer.CollectionStats `json:"stats,omitempty"`
	Explain    *engine.Explanation      `json:"-"`
	Err        error                    `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Runs holds one entry per mode, keyed by mode name.
	Runs map[string]*ModeRun `json:"runs"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   make(map[string]*ModeRun),
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Rewritten returns the rewritten run, or nil when it did not execute.
func (r *Result) Rewritten() *ModeRun { return r.Runs[ModeRewritten] }

// Naive returns the naive run, or nil when it did not execute.
func (r *Result) Naive() *ModeRun { return r.Runs[ModeNaive] }
