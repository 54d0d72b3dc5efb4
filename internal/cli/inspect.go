package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
	"github.com/roach88/ajstore/internal/store"
)

// untagged counts entries without a type_tag in InspectResult.TypeTags.
const untagged = "(untagged)"

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	HeavyField string
}

// InspectResult summarizes a collection file.
type InspectResult struct {
	File       string         `json:"file"`
	Size       int64          `json:"size"`
	Entries    int            `json:"entries"`
	Keys       []string       `json:"keys"`
	TypeTags   map[string]int `json:"type_tags"`
	HeavyField string         `json:"heavy_field"`
	Heavy      int            `json:"heavy"`
	Backup     bool           `json:"backup"`
	Failed     []string       `json:"failed,omitempty"`
}

// RenderText writes the summary for humans.
func (r *InspectResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%s: %d entries, %d bytes\n", r.File, r.Entries, r.Size)
	fmt.Fprintf(w, "  with %s: %d\n", r.HeavyField, r.Heavy)
	tags := make([]string, 0, len(r.TypeTags))
	for tag := range r.TypeTags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for _, tag := range tags {
		fmt.Fprintf(w, "  %s: %d\n", tag, r.TypeTags[tag])
	}
	if r.Backup {
		fmt.Fprintln(w, "  backup present")
	}
	for _, failed := range r.Failed {
		fmt.Fprintf(w, "  failed artifact: %s\n", failed)
	}
	return nil
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Summarize a collection file",
		Long: `Parse a collection file and report its entry count, keys and type tags,
how many entries carry the heavy field, and whether a backup or failure
artifacts sit next to it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, store.NewOSBackend(), args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HeavyField, "heavy-field", persist.DefaultHeavyField, "field that marks entries persisted by partial engines")

	return cmd
}

func runInspect(opts *InspectOptions, backend store.Backend, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	file, err := readCollectionFile(ctx, formatter, backend, path)
	if err != nil {
		return err
	}

	result := &InspectResult{
		File:       path,
		Size:       file.size,
		Entries:    len(file.entries),
		Keys:       make([]string, 0, len(file.entries)),
		TypeTags:   map[string]int{},
		HeavyField: opts.HeavyField,
	}
	for _, e := range file.entries {
		result.Keys = append(result.Keys, e.Key)
		tag, ok := doc.String(e.Data, doc.FieldTypeTag)
		if !ok {
			tag = untagged
		}
		result.TypeTags[tag]++
		if persist.Heavy(e.Data, opts.HeavyField) {
			result.Heavy++
		}
	}

	result.Backup, err = backend.Exists(ctx, persist.BackupPath(file.folder, file.name))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeIO, "check backup", err)
	}
	failed, err := persist.ListFailed(ctx, backend, file.folder, file.name)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeIO, "list failure artifacts", err)
	}
	for _, a := range failed {
		result.Failed = append(result.Failed, a.Path)
	}

	return formatter.Success(result)
}
