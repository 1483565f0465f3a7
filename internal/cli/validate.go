package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/flatten/internal/compiler"
	"github.com/roach88/flatten/internal/model"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Query string // optional query file checked against the model
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a model and optionally a query",
		Long: `Validate an entity model against the table mapping rules.

With --query, the query is also checked against the model: unknown
entities, fields and navigations, filter types and select shapes.
Navigation cycles are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "query file to validate against the model")

	return cmd
}

func runValidate(opts *ValidateOptions, modelPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, err := LoadModel(modelPath)
	if err != nil {
		return outputValidateError(formatter, loadErrorCode(err), loadErrorMessage(err))
	}
	formatter.VerboseLog("Loaded %d entity type(s) from %d CUE file(s)", len(loaded.Model.EntityTypes()), loaded.FileCount)

	validationErrors := compiler.Validate(loaded.Model)

	if opts.Query != "" {
		q, err := LoadQuery(opts.Query)
		if err != nil {
			return outputValidateError(formatter, loadErrorCode(err), loadErrorMessage(err))
		}
		formatter.VerboseLog("Validating query %s", opts.Query)
		validationErrors = append(validationErrors, compiler.ValidateQuery(loaded.Model, q)...)
	}

	warnings := compiler.AnalyzeNavigationCycles(loaded.Model)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors, warnings)
	}
	return outputValidateSuccess(formatter, loaded.Model, warnings)
}

func outputValidateSuccess(formatter *OutputFormatter, m *model.Model, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	writeWarnings(formatter, warnings)
	fmt.Fprintf(formatter.Writer, "%s Model valid (%d entity types)\n", formatter.Pass(), len(m.EntityTypes()))
	return nil
}

// outputValidateError outputs a load error. Load errors are command-level
// errors (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs validation errors. Validation failures
// exit with code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError, warnings []compiler.CycleWarning) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs, Warnings: warnings},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return failure
	}

	writeWarnings(formatter, warnings)
	fmt.Fprintf(formatter.Writer, "%s Validation failed\n\n", formatter.Fail())
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n",
			formatter.Colorize(err.Code, color.FgRed), err.Field, err.Message)
	}
	return failure
}

func writeWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "%s %s\n", formatter.Colorize("warning:", color.FgYellow), w.Message)
	}
}
