package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/store"
)

// RecoveryAction names what Recover did.
type RecoveryAction string

const (
	// RecoveryNone means there was no backup to act on.
	RecoveryNone RecoveryAction = "none"
	// RecoveryPromoted means the live file was missing and the backup
	// became the live file.
	RecoveryPromoted RecoveryAction = "promoted_backup"
	// RecoveryKeptLive means both files exist and the live file parses.
	// The next flush removes the backup.
	RecoveryKeptLive RecoveryAction = "kept_live"
	// RecoveryRestored means the live file did not parse; it was moved to a
	// failure artifact and the backup restored.
	RecoveryRestored RecoveryAction = "restored_backup"
)

// RecoveryResult reports the outcome of Recover.
type RecoveryResult struct {
	Action RecoveryAction
	// Failed is the failure artifact created, if any.
	Failed string
}

// Recover brings a collection's files back to a loadable state after a
// flush that did not finish. A backup with no live file is promoted. A
// backup next to a live file that does not parse replaces it, and the
// unreadable file is kept as a failure artifact stamped with now.
func Recover(ctx context.Context, backend store.Backend, folder, name string, now time.Time, logger *slog.Logger) (RecoveryResult, error) {
	live, backup := LivePath(folder, name), BackupPath(folder, name)

	hasBackup, err := backend.Exists(ctx, backup)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("recover %s: %w", live, err)
	}
	if !hasBackup {
		return RecoveryResult{Action: RecoveryNone}, nil
	}

	raw, err := backend.Read(ctx, live)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("live file missing, restoring backup", "backup", backup)
		if err := backend.Rename(ctx, backup, live); err != nil {
			return RecoveryResult{}, fmt.Errorf("recover %s: %w", live, err)
		}
		return RecoveryResult{Action: RecoveryPromoted}, nil
	case err != nil:
		return RecoveryResult{}, fmt.Errorf("recover %s: %w", live, err)
	}

	if _, err := doc.DecodeFragment(raw); err == nil {
		return RecoveryResult{Action: RecoveryKeptLive}, nil
	}

	failed := FailedPath(folder, name, now)
	logger.Warn("live file unreadable, restoring backup", "backup", backup, "failed_artifact", failed)
	if err := backend.Rename(ctx, live, failed); err != nil {
		return RecoveryResult{}, fmt.Errorf("recover %s: %w", live, err)
	}
	if err := backend.Rename(ctx, backup, live); err != nil {
		return RecoveryResult{}, fmt.Errorf("recover %s: %w", live, err)
	}
	return RecoveryResult{Action: RecoveryRestored, Failed: failed}, nil
}

// FailedArtifact is a failure artifact found next to a collection file.
type FailedArtifact struct {
	Path string
	At   time.Time
}

// ListFailed returns the failure artifacts of collection name in folder,
// oldest first.
func ListFailed(ctx context.Context, backend store.Backend, folder, name string) ([]FailedArtifact, error) {
	entries, err := backend.List(ctx, folder)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}

	var out []FailedArtifact
	for _, base := range entries {
		got, at, ok := ParseFailedName(base)
		if !ok || got != name {
			continue
		}
		out = append(out, FailedArtifact{Path: path.Join(folder, base), At: at})
	}
	slices.SortFunc(out, func(a, b FailedArtifact) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return out, nil
}
