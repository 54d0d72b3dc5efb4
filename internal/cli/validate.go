package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	// Types restricts type_tag values when non-empty.
	Types []string
}

// ValidationIssue is one problem found in an entry.
type ValidationIssue struct {
	Key     string `json:"key"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	File    string            `json:"file"`
	Valid   bool              `json:"valid"`
	Entries int               `json:"entries"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// RenderText lists the issues, or confirms the file is valid.
func (r *ValidationResult) RenderText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "\u2713 %d entries valid\n", r.Entries)
		return err
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "\u2717 %q %s: %s\n", issue.Key, issue.Field, issue.Message)
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check the entries of a collection file",
		Long: `Check every entry of a collection file: keys must be non-empty and must
not contain "undefined", each entry must carry a type_tag, and an entry's key
field must match the key it is stored under. With --types, type tags outside
the list are reported too.

Exits with status 1 when any entry has an issue.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, store.NewOSBackend(), args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "allowed type tags (comma separated)")

	return cmd
}

func runValidate(opts *ValidateOptions, backend store.Backend, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	file, err := readCollectionFile(cmd.Context(), formatter, backend, path)
	if err != nil {
		return err
	}

	result := &ValidationResult{File: path, Entries: len(file.entries)}
	for _, e := range file.entries {
		result.Issues = append(result.Issues, validateEntry(e, opts.Types)...)
	}
	result.Valid = len(result.Issues) == 0

	if !result.Valid {
		message := fmt.Sprintf("%d issue(s) in %s", len(result.Issues), path)
		if err := formatter.Error(ErrCodeValidation, message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}
	return formatter.Success(result)
}

func validateEntry(e doc.Entry, types []string) []ValidationIssue {
	var issues []ValidationIssue
	add := func(field, message string) {
		issues = append(issues, ValidationIssue{Key: e.Key, Field: field, Message: message})
	}

	switch {
	case e.Key == "":
		add(doc.FieldKey, "empty key")
	case strings.Contains(e.Key, "undefined"):
		add(doc.FieldKey, "key derived from missing fields")
	}
	if v, ok := e.Data[doc.FieldKey]; ok && v != e.Key {
		add(doc.FieldKey, fmt.Sprintf("key field %v does not match entry key", v))
	}

	tag, ok := doc.String(e.Data, doc.FieldTypeTag)
	switch {
	case !ok:
		add(doc.FieldTypeTag, "missing type_tag")
	case len(types) > 0 && !slices.Contains(types, tag):
		add(doc.FieldTypeTag, fmt.Sprintf("unknown type_tag %q", tag))
	}
	return issues
}
