package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
	"github.com/roach88/ajstore/internal/store"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// fail reports an error through the formatter and returns it with an exit
// code.
func fail(f *OutputFormatter, exit int, code, message string, err error) error {
	detail := message
	if err != nil {
		detail = fmt.Sprintf("%s: %v", message, err)
	}
	if outErr := f.Error(code, detail, nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, message, err)
}

// splitCollectionFile splits a live collection file path into its folder
// and collection file name.
func splitCollectionFile(path string) (folder, name string, err error) {
	base := filepath.Base(path)
	name, ok := strings.CutSuffix(base, persist.Ext)
	if !ok || name == "" {
		return "", "", fmt.Errorf("%s is not a %s collection file", path, persist.Ext)
	}
	return filepath.Dir(path), name, nil
}

// collectionFile is a decoded collection file.
type collectionFile struct {
	path    string
	folder  string
	name    string
	size    int64
	entries []doc.Entry
}

// readCollectionFile reads and decodes path, reporting failures through f.
func readCollectionFile(ctx context.Context, f *OutputFormatter, backend store.Backend, path string) (*collectionFile, error) {
	folder, name, err := splitCollectionFile(path)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeNotFound, "invalid collection file", err)
	}

	raw, err := backend.Read(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fail(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("collection file not found: %s", path), nil)
	}
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeIO, "read collection file", err)
	}
	f.VerboseLog("Read %d bytes from %s", len(raw), path)

	entries, err := doc.DecodeFragment(raw)
	if err != nil {
		return nil, fail(f, ExitFailure, ErrCodeParse, fmt.Sprintf("collection file does not parse: %s", path), err)
	}
	return &collectionFile{
		path:    path,
		folder:  folder,
		name:    name,
		size:    int64(len(raw)),
		entries: entries,
	}, nil
}
