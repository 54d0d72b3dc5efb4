package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ajstore/internal/brain"
	"github.com/roach88/ajstore/internal/config"
	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
	"github.com/roach88/ajstore/internal/store"
)

// rootTag is the item type of every collection compact registers. The tags
// found in storage become its children.
const rootTag = "ajstore.Record"

// CompactStat reports one compacted collection. Before counts distinct keys
// in storage; After counts records written.
type CompactStat struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// CompactResult holds the per-collection outcome.
type CompactResult struct {
	Collections []CompactStat `json:"collections"`
}

// RenderText prints one line per collection.
func (r *CompactResult) RenderText(w io.Writer) error {
	for _, s := range r.Collections {
		line := fmt.Sprintf("%s (%s): %d -> %d", s.Name, s.Engine, s.Before, s.After)
		if dropped := s.Before - s.After; dropped > 0 {
			line += fmt.Sprintf(" (%d dropped)", dropped)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact [collection...]",
		Short: "Rewrite collections in compact form",
		Long: `Load each collection through its configured engine and force a full
write. Fragment files lose superseded and deleted entries; key-value
collections drop entries that no longer pass validation.

With no arguments every collection in the config is compacted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(rootOpts, store.NewOSBackend(), args, cmd)
		},
	}

	return cmd
}

func runCompact(opts *RootOptions, backend store.Backend, names []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts, cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "load config", err)
	}
	if len(names) == 0 {
		names = slices.Sorted(maps.Keys(cfg.Collections))
	}
	if len(names) == 0 {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "no collections to compact", nil)
	}

	var kv store.KV
	for _, name := range names {
		if cfg.Collection(name).Engine == persist.StrategyKV {
			if kv, err = brain.OpenKV(cfg); err != nil {
				return fail(formatter, ExitCommandError, ErrCodeIO, "open kv", err)
			}
			defer kv.Close()
			break
		}
	}

	result := &CompactResult{}
	for _, name := range names {
		stat, err := compactCollection(ctx, opts, formatter, cfg, backend, kv, name)
		if err != nil {
			return fail(formatter, ExitFailure, ErrCodeIO, fmt.Sprintf("compact %s", name), err)
		}
		formatter.VerboseLog("Compacted %s: %d -> %d", name, stat.Before, stat.After)
		result.Collections = append(result.Collections, stat)
	}
	return formatter.Success(result)
}

// compactCollection runs one collection through its own registry so that
// a failure leaves the others untouched.
func compactCollection(ctx context.Context, opts *RootOptions, f *OutputFormatter, cfg *config.Config, backend store.Backend, kv store.KV, name string) (CompactStat, error) {
	cc := cfg.Collection(name)
	fileName := cc.FileName
	if fileName == "" {
		fileName = name
	}
	stat := CompactStat{Name: name, Engine: cc.Engine}

	entries, err := storedEntries(ctx, backend, kv, cc.Engine, cfg.FolderPath(), fileName)
	if err != nil {
		return stat, err
	}
	seen := make(map[string]bool, len(entries))
	tags := make(map[string]bool)
	for _, e := range entries {
		seen[e.Key] = true
		if tag, ok := doc.String(e.Data, doc.FieldTypeTag); ok && tag != "" {
			tags[tag] = true
		}
	}
	stat.Before = len(seen)

	regOpts := []brain.Option{
		brain.WithBackend(backend),
		brain.WithLogger(opts.Logger(f.GetErrWriter())),
	}
	if kv != nil {
		regOpts = append(regOpts, brain.WithKV(kv))
	}
	reg := brain.New(cfg, regOpts...)

	root := &brain.Type{Tag: rootTag}
	for _, tag := range slices.Sorted(maps.Keys(tags)) {
		if tag == rootTag {
			continue
		}
		if err := reg.RegisterType(&brain.Type{Tag: tag, Parent: root}); err != nil {
			return stat, err
		}
	}
	coll, err := reg.Register(&brain.CollectionType{Name: name, Item: root})
	if err != nil {
		return stat, err
	}

	if err := reg.Init(ctx); err != nil {
		_ = reg.Close(ctx)
		return stat, err
	}
	stat.After = coll.Len()
	if err := reg.Flush(ctx, true); err != nil {
		_ = reg.Close(ctx)
		return stat, err
	}
	return stat, reg.Close(ctx)
}

// storedEntries reads what is currently stored for a collection. For file
// engines a missing live file falls back to the backup.
func storedEntries(ctx context.Context, backend store.Backend, kv store.KV, engine, folder, fileName string) ([]doc.Entry, error) {
	if engine == persist.StrategyKV {
		keys, err := kv.Keys(ctx, fileName)
		if err != nil {
			return nil, err
		}
		values, err := kv.GetMany(ctx, fileName, keys)
		if err != nil {
			return nil, err
		}
		entries := make([]doc.Entry, 0, len(keys))
		for i, raw := range values {
			if raw == nil {
				continue
			}
			data, err := doc.DecodeObject(raw)
			if err != nil {
				continue
			}
			entries = append(entries, doc.Entry{Key: keys[i], Data: data})
		}
		return entries, nil
	}

	for _, p := range []string{persist.LivePath(folder, fileName), persist.BackupPath(folder, fileName)} {
		raw, err := backend.Read(ctx, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries, err := doc.DecodeFragment(raw)
		if err != nil {
			continue
		}
		return entries, nil
	}
	return nil, nil
}
