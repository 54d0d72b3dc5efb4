package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ajstore/internal/persist"
	"github.com/roach88/ajstore/internal/store"
)

// RecoverResult reports what recover did. Failed is the artifact created by
// this run, if any; Artifacts lists every failure artifact, oldest first.
type RecoverResult struct {
	File      string                 `json:"file"`
	Action    persist.RecoveryAction `json:"action"`
	Failed    string                 `json:"failed,omitempty"`
	Artifacts []string               `json:"artifacts,omitempty"`
}

// RenderText describes the outcome.
func (r *RecoverResult) RenderText(w io.Writer) error {
	switch r.Action {
	case persist.RecoveryNone:
		fmt.Fprintf(w, "%s: no backup, nothing to recover\n", r.File)
	case persist.RecoveryPromoted:
		fmt.Fprintf(w, "%s: restored from backup (live file was missing)\n", r.File)
	case persist.RecoveryKeptLive:
		fmt.Fprintf(w, "%s: live file is readable, backup kept until the next flush\n", r.File)
	case persist.RecoveryRestored:
		fmt.Fprintf(w, "%s: restored from backup, unreadable file moved to %s\n", r.File, r.Failed)
	}
	if len(r.Artifacts) > 0 {
		fmt.Fprintln(w, "failure artifacts to inspect:")
		for _, a := range r.Artifacts {
			fmt.Fprintf(w, "  %s\n", a)
		}
	}
	return nil
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <file>",
		Short: "Restore a collection file after an interrupted flush",
		Long: `Bring a collection file back to a loadable state after a flush that did
not finish. A backup (.old) with no live file is promoted; a backup next to a
live file that does not parse replaces it and the unreadable file is kept as
a .failed artifact. Failure artifacts are listed for manual inspection.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(rootOpts, store.NewOSBackend(), time.Now, args[0], cmd)
		},
	}

	return cmd
}

func runRecover(opts *RootOptions, backend store.Backend, now func() time.Time, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts, cmd)

	folder, name, err := splitCollectionFile(path)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, "invalid collection file", err)
	}

	logger := opts.Logger(formatter.GetErrWriter())
	res, err := persist.Recover(ctx, backend, folder, name, now(), logger)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeIO, "recover", err)
	}
	artifacts, err := persist.ListFailed(ctx, backend, folder, name)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeIO, "list failure artifacts", err)
	}

	result := &RecoverResult{File: path, Action: res.Action, Failed: res.Failed}
	for _, a := range artifacts {
		result.Artifacts = append(result.Artifacts, a.Path)
	}
	return formatter.Success(result)
}
