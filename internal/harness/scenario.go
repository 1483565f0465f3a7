package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flatten/internal/compiler"
)

// Scenario defines a query scenario: a model, fixture rows, a query, and
// assertions over the results of running it.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path to the CUE model file.
	Model string `yaml:"model"`

	// Fixtures are inserted in order before the query runs.
	Fixtures []Fixture `yaml:"fixtures,omitempty"`

	// Query is the query to execute.
	Query compiler.QuerySpec `yaml:"query"`

	// Modes lists the execution modes to run. Defaults to both.
	Modes []string `yaml:"modes,omitempty"`

	// ExpectError, when set, is the code the query must fail with: an
	// execution error code, a rewrite invariant code, or a query validation
	// code. Assertions are not evaluated for failing scenarios.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the results.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// PassID is a fixed pass ID for deterministic logs.
	// If empty, defaults to "test-pass-default".
	PassID string `yaml:"pass_id,omitempty"`
}

// Fixture is a batch of rows of one entity type.
type Fixture struct {
	// Entity is the entity type name. Rows of derived types are stamped
	// with their discriminator.
	Entity string `yaml:"entity"`

	// Rows map property names to values. Missing properties are NULL.
	Rows []map[string]any `yaml:"rows"`
}

// Assertion validates the results of one run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "results": rows equal Rows as canonical JSON
	// - "formatted": rows render to Rows via ir.Format
	// - "row_count": Count rows
	// - "statement_count": Count SQL statements
	// - "collection_stats": buffer counters of collection Index
	// - "sql_contains": statement Index of the explanation contains Fragment
	// - "equivalent": rewritten and naive rows are identical
	Type string `yaml:"type"`

	// Mode selects the run. Defaults to rewritten.
	Mode string `yaml:"mode,omitempty"`

	// Rows are the expected rows (results, formatted).
	Rows []any `yaml:"rows,omitempty"`

	// Count is the expected count (row_count, statement_count).
	Count int `yaml:"count,omitempty"`

	// Index selects a collection (collection_stats) or a statement
	// (sql_contains).
	Index int `yaml:"index,omitempty"`

	// Expected counters (collection_stats). Unset counters are not checked.
	Parents         *int `yaml:"parents,omitempty"`
	Empty           *int `yaml:"empty,omitempty"`
	Elements        *int `yaml:"elements,omitempty"`
	DistinctOrigins *int `yaml:"distinct_origins,omitempty"`

	// Fragment is the expected SQL fragment (sql_contains).
	Fragment string `yaml:"fragment,omitempty"`
}

// Assertion type constants.
const (
	AssertResults         = "results"
	AssertFormatted       = "formatted"
	AssertRowCount        = "row_count"
	AssertStatementCount  = "statement_count"
	AssertCollectionStats = "collection_stats"
	AssertSQLContains     = "sql_contains"
	AssertEquivalent      = "equivalent"
)

// LoadScenario reads and parses a scenario YAML file, resolving the model
// path relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the model path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the model path BEFORE validation
	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}

	if s.Query.From == "" {
		return fmt.Errorf("query.from is required")
	}

	for i, m := range s.Modes {
		if m != ModeRewritten && m != ModeNaive {
			return fmt.Errorf("modes[%d]: unknown mode %q", i, m)
		}
	}

	for i, f := range s.Fixtures {
		if f.Entity == "" {
			return fmt.Errorf("fixtures[%d]: entity is required", i)
		}
	}

	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.modes()); err != nil {
			return err
		}
	}

	return nil
}

// modes returns the modes to run, defaulting to both.
func (s *Scenario) modes() []string {
	if len(s.Modes) == 0 {
		return []string{ModeRewritten, ModeNaive}
	}
	return s.Modes
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, modes []string) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	mode := a.mode()
	if mode != ModeRewritten && mode != ModeNaive {
		return fmt.Errorf("assertions[%d]: unknown mode %q", index, a.Mode)
	}
	if !slices.Contains(modes, mode) {
		return fmt.Errorf("assertions[%d]: mode %q is not run by this scenario", index, mode)
	}

	switch a.Type {
	case AssertResults:
	case AssertFormatted:
		for j, r := range a.Rows {
			if _, ok := r.(string); !ok {
				return fmt.Errorf("assertions[%d]: formatted rows[%d] must be a string", index, j)
			}
		}
	case AssertRowCount, AssertStatementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertCollectionStats:
		if mode != ModeRewritten {
			return fmt.Errorf("assertions[%d]: collection_stats applies to the rewritten run only", index)
		}
		if a.Parents == nil && a.Empty == nil && a.Elements == nil && a.DistinctOrigins == nil {
			return fmt.Errorf("assertions[%d]: collection_stats needs at least one counter", index)
		}
	case AssertSQLContains:
		if a.Fragment == "" {
			return fmt.Errorf("assertions[%d]: fragment is required for sql_contains", index)
		}
	case AssertEquivalent:
		if len(modes) != 2 {
			return fmt.Errorf("assertions[%d]: equivalent needs both modes", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func (a *Assertion) mode() string {
	if a.Mode == "" {
		return ModeRewritten
	}
	return a.Mode
}

// LoadFixtures reads a YAML file holding a list of fixtures, in the same
// shape as a scenario's fixtures section.
func LoadFixtures(path string) ([]Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}

	var fixtures []Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, f := range fixtures {
		if f.Entity == "" {
			return nil, fmt.Errorf("fixtures[%d]: entity is required", i)
		}
	}
	return fixtures, nil
}

// FindScenarios returns the YAML files under dir in lexical order,
// keeping only those whose base name (without extension) matches filter
// when it is non-empty.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := filepath.Base(path)
			matched, err := filepath.Match(filter, name[:len(name)-len(ext)])
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
