package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mixsync/internal/schema"
	"github.com/roach88/mixsync/internal/value"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Collection string
	Fields     string
}

// ValidationIssue is one schema problem with its source position.
type ValidationIssue struct {
	Collection string `json:"collection,omitempty"`
	Message    string `json:"message"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Collections []string          `json:"collections,omitempty"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
}

// Text implements Texter.
func (r ValidationResult) Text(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ Schema valid (%d collection(s): %s)\n", len(r.Collections), strings.Join(r.Collections, ", "))
		return
	}
	for _, e := range r.Errors {
		if e.File != "" {
			fmt.Fprintf(w, "%s:%d:%d: ", e.File, e.Line, e.Column)
		}
		fmt.Fprintln(w, e.Message)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <schema.cue>",
		Short: "Check a field schema, optionally against sample fields",
		Long: `Compile a CUE field schema and list the collections it constrains.

With --collection and --fields, also check a JSON object of fields the way
the store checks them on every create and patch.

Example:
  mixsync validate schema.cue
  mixsync validate schema.cue --collection objects --fields '{"pass_index": 2}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "collection to check --fields against")
	cmd.Flags().StringVar(&opts.Fields, "fields", "", "JSON object of fields to check")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if (opts.Collection == "") != (opts.Fields == "") {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--collection and --fields must be given together", nil)
	}

	v, err := schema.Load(path)
	if err != nil {
		return outputValidationFailure(formatter, err)
	}
	collections, err := v.Collections()
	if err != nil {
		return outputValidationFailure(formatter, err)
	}
	formatter.VerboseLog("Schema %s constrains %d collection(s)", path, len(collections))

	if opts.Fields != "" {
		fields, err := value.UnmarshalObject([]byte(opts.Fields))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--fields is not a JSON object", err)
		}
		if err := v.Validate(opts.Collection, fields); err != nil {
			return outputValidationFailure(formatter, err)
		}
	}

	return formatter.Success(ValidationResult{Valid: true, Collections: collections})
}

func outputValidationFailure(formatter *OutputFormatter, err error) error {
	issue := ValidationIssue{Message: err.Error()}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		issue.Collection = verr.Collection
		issue.Message = verr.Message
		if verr.Pos.IsValid() {
			issue.File = verr.Pos.Filename()
			issue.Line = verr.Pos.Line()
			issue.Column = verr.Pos.Column()
		}
	}
	result := ValidationResult{Valid: false, Errors: []ValidationIssue{issue}}

	if formatter.Format == "json" {
		if outErr := formatter.Error(ErrCodeSchema, "validation failed", result); outErr != nil {
			return outErr
		}
	} else {
		result.Text(formatter.Writer)
	}
	return WrapExitError(ExitFailure, "validation failed", err)
}
