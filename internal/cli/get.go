package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/store"
)

// GetEntry is one entry printed by get.
type GetEntry struct {
	Key  string   `json:"key"`
	Data doc.Data `json:"data"`
}

// GetResult holds the entries found by get.
type GetResult struct {
	File    string     `json:"file"`
	Entries []GetEntry `json:"entries"`
	Missing []string   `json:"missing,omitempty"`
}

// RenderText writes the entries in fragment form.
func (r *GetResult) RenderText(w io.Writer) error {
	for _, e := range r.Entries {
		line, err := doc.EncodeEntry(e.Key, e.Data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <file> <key>...",
		Short: "Print entries of a collection file",
		Long: `Print the named entries of a collection file. Exits with status 1 if any
key is absent; the entries that were found are still printed.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, store.NewOSBackend(), args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runGet(opts *RootOptions, backend store.Backend, path string, keys []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	file, err := readCollectionFile(cmd.Context(), formatter, backend, path)
	if err != nil {
		return err
	}

	byKey := make(map[string]doc.Data, len(file.entries))
	for _, e := range file.entries {
		byKey[e.Key] = e.Data
	}

	result := &GetResult{File: path, Entries: []GetEntry{}}
	for _, key := range keys {
		data, ok := byKey[key]
		if !ok {
			result.Missing = append(result.Missing, key)
			continue
		}
		result.Entries = append(result.Entries, GetEntry{Key: key, Data: data})
	}

	if len(result.Missing) > 0 {
		message := fmt.Sprintf("keys not found: %s", strings.Join(result.Missing, ", "))
		if err := formatter.Error(ErrCodeMissingKey, message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}
	return formatter.Success(result)
}
