package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/roach88/ajstore/internal/config"
	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
	"github.com/roach88/ajstore/internal/store"
)

// EngineFactory builds the persistence engine for a collection. It runs
// during Register with the registry locked.
type EngineFactory func(r *Registry, c *Collection, cc config.CollectionConfig) (persist.Engine, error)

// Option configures a Registry.
type Option func(*Registry)

// WithBackend sets the file backend used by file-based engines.
// Defaults to the local filesystem.
func WithBackend(b store.Backend) Option {
	return func(r *Registry) { r.backend = b }
}

// WithKV sets the key-value store used by kv collections. The caller keeps
// ownership; Close does not close it.
func WithKV(kv store.KV) Option {
	return func(r *Registry) { r.kv = kv }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithEngineFactory replaces the engine selection.
func WithEngineFactory(f EngineFactory) Option {
	return func(r *Registry) { r.factory = f }
}

// WithIDGenerator sets the flush ID source passed to engines.
func WithIDGenerator(ids persist.IDGenerator) Option {
	return func(r *Registry) { r.ids = ids }
}

// WithClock sets the time source passed to engines.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// RegisterOption configures one registration.
type RegisterOption func(*registration)

type registration struct {
	name string
}

// WithName registers the collection under name instead of the collection
// type's name.
func WithName(name string) RegisterOption {
	return func(r *registration) { r.name = name }
}

// Registry owns the collections, the type table used to revive records, and
// the configuration they share.
//
// Thread-safety: Registry methods are safe for concurrent use.
type Registry struct {
	cfg     *config.Config
	backend store.Backend
	kv      store.KV
	ownsKV  bool
	logger  *slog.Logger
	factory EngineFactory
	ids     persist.IDGenerator
	now     func() time.Time

	mu          sync.RWMutex
	types       map[string]*Type
	collections map[string]*Collection
	order       []string
}

// New creates a registry. A nil cfg selects config.Default().
func New(cfg *config.Config, opts ...Option) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Registry{
		cfg:         cfg,
		types:       make(map[string]*Type),
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		r.backend = store.NewOSBackend()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.factory == nil {
		r.factory = DefaultEngineFactory
	}
	return r
}

// Config returns the registry configuration.
func (r *Registry) Config() *config.Config { return r.cfg }

// Backend returns the file backend.
func (r *Registry) Backend() store.Backend { return r.backend }

// RegisterType adds t and its ancestors to the type table. Registering the
// same type again is a no-op; a different type with a taken tag is an
// error.
func (r *Registry) RegisterType(t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerTypeLocked(t)
}

func (r *Registry) registerTypeLocked(t *Type) error {
	for _, level := range t.Chain() {
		if level.Tag == "" {
			return &Error{Code: ErrCodeUnknownType, Message: "type has no tag"}
		}
		existing, ok := r.types[level.Tag]
		if ok && existing != level {
			return &Error{Code: ErrCodeDuplicate, Message: fmt.Sprintf("type tag %q already registered", level.Tag)}
		}
		r.types[level.Tag] = level
	}
	return nil
}

// Type looks up a type by tag.
func (r *Registry) Type(tag string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[tag]
	return t, ok
}

// Register creates the collection for ct and its engine. The item type is
// added to the type table.
func (r *Registry) Register(ct *CollectionType, opts ...RegisterOption) (*Collection, error) {
	reg := registration{name: ct.Name}
	for _, opt := range opts {
		opt(&reg)
	}
	if reg.name == "" {
		return nil, &Error{Code: ErrCodeUnknownCollection, Message: "collection has no name"}
	}
	if ct.Item == nil {
		return nil, &Error{Code: ErrCodeUnknownType, Message: "collection type has no item type", Collection: reg.name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[reg.name]; ok {
		return nil, &Error{Code: ErrCodeDuplicate, Message: "collection already registered", Collection: reg.name}
	}
	if err := r.registerTypeLocked(ct.Item); err != nil {
		return nil, err
	}

	settings, err := r.settings(ct, reg.name)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", reg.name, err)
	}
	c := &Collection{
		name:     reg.name,
		ct:       ct,
		reg:      r,
		cc:       r.cfg.Collection(reg.name),
		settings: settings,
		logger:   r.logger.With("component", "brain", "collection", reg.name),
		items:    make(map[string]*Record),
	}
	engine, err := r.factory(r, c, c.cc)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", reg.name, err)
	}
	c.engine = engine

	r.collections[reg.name] = c
	r.order = append(r.order, reg.name)
	return c, nil
}

// settings merges each collection type level's Config with the configured
// settings for that level's name, root first, so the most specific level
// wins. Settings configured for a custom registration name apply last.
func (r *Registry) settings(ct *CollectionType, name string) (doc.Data, error) {
	var layers []doc.Data
	add := func(levelName string) error {
		s, err := r.cfg.Collections[levelName].SettingsData()
		if err != nil {
			return err
		}
		layers = append(layers, s)
		return nil
	}
	for _, level := range ct.chain() {
		layers = append(layers, level.Config)
		if err := add(level.Name); err != nil {
			return nil, err
		}
	}
	if name != ct.Name {
		if err := add(name); err != nil {
			return nil, err
		}
	}
	normalized, err := doc.NormalizeData(doc.Overlay(layers...))
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// Collection looks up a registered collection.
func (r *Registry) Collection(name string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownCollection, Message: "collection not registered", Collection: name}
	}
	return c, nil
}

// Collections returns the registered collections in registration order.
func (r *Registry) Collections() []*Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Collection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.collections[name])
	}
	return out
}

// Init loads every collection concurrently and returns once all loads have
// finished. A collection whose durable data is malformed is logged and
// left empty; other load failures are joined into the returned error.
func (r *Registry) Init(ctx context.Context) error {
	start := time.Now()
	p := pool.New().WithErrors().WithContext(ctx)
	for _, c := range r.Collections() {
		p.Go(func(ctx context.Context) error {
			err := c.engine.Load(ctx)
			if errors.Is(err, persist.ErrCorrupt) {
				c.logger.Warn("durable data unreadable, starting empty", "error", err)
				c.Clear()
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", c.name, err)
			}
			return nil
		})
	}
	err := p.Wait()
	r.logger.Info("registry initialized",
		"collections", len(r.order),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

// Resolve returns the record a reference points to. A dangling reference
// reports false.
func (r *Registry) Resolve(ref doc.Reference) (*Record, bool) {
	c, err := r.Collection(ref.CollectionName)
	if err != nil {
		return nil, false
	}
	return c.Get(ref.Key)
}

// ResolveValue resolves v when it is a reference in wire form.
func (r *Registry) ResolveValue(v any) (*Record, bool) {
	ref, ok := doc.AsReference(v)
	if !ok {
		return nil, false
	}
	return r.Resolve(ref)
}

// Flush writes every collection now.
func (r *Registry) Flush(ctx context.Context, force bool) error {
	var errs []error
	for _, c := range r.Collections() {
		if err := c.Flush(ctx, force); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending saves, stops every engine and closes a key-value
// store the registry opened itself.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, c := range r.Collections() {
		if c.engine == nil {
			continue
		}
		if err := c.engine.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}

	r.mu.Lock()
	if r.ownsKV && r.kv != nil {
		if err := r.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kv: %w", err))
		}
		r.kv = nil
		r.ownsKV = false
	}
	r.mu.Unlock()
	return errors.Join(errs...)
}

// engineOptions maps collection configuration onto the shared engine
// options.
func (r *Registry) engineOptions(cc config.CollectionConfig) persist.Options {
	return persist.Options{
		Debounce:     cc.Debounce.Std(),
		GuardTimeout: cc.GuardTimeoutOr(persist.DefaultGuardTimeout),
		Logger:       r.logger,
		IDs:          r.ids,
		Now:          r.now,
	}
}

// DefaultEngineFactory selects the engine named by the collection's
// configured strategy.
func DefaultEngineFactory(r *Registry, c *Collection, cc config.CollectionConfig) (persist.Engine, error) {
	opts := r.engineOptions(cc)
	switch cc.Engine {
	case persist.StrategyFullRewrite, "":
		return persist.NewFullRewrite(r.backend, c, persist.FullRewriteOptions{
			Options:   opts,
			SizeGuard: cc.SizeGuardOr(true),
			MinSize:   cc.MinSize,
		}), nil
	case persist.StrategyBackupSwap:
		return persist.NewBackupSwap(r.backend, c, persist.BackupSwapOptions{
			Options:    opts,
			HeavyField: cc.HeavyField,
			BatchSize:  cc.BatchSize,
		}), nil
	case persist.StrategyKV:
		kv, err := r.kvLocked()
		if err != nil {
			return nil, err
		}
		return persist.NewBatchedKV(kv, c, persist.BatchedKVOptions{
			Options:    opts,
			HeavyField: cc.HeavyField,
		}), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cc.Engine)
	}
}

// kvLocked returns the key-value store, opening the configured one on first
// use. Callers hold r.mu.
func (r *Registry) kvLocked() (store.KV, error) {
	if r.kv != nil {
		return r.kv, nil
	}
	kv, err := OpenKV(r.cfg)
	if err != nil {
		return nil, err
	}
	r.kv = kv
	r.ownsKV = true
	return kv, nil
}

// OpenKV opens the key-value store described by cfg.KV. A relative path is
// resolved against the folder path; an empty one selects a default file
// name per driver.
func OpenKV(cfg *config.Config) (store.KV, error) {
	kvPath := cfg.KV.Path
	if kvPath == "" {
		kvPath = "ajstore.db"
		if cfg.KV.Driver == config.DriverPebble {
			kvPath = "ajstore.pebble"
		}
	}
	if !filepath.IsAbs(kvPath) {
		kvPath = filepath.Join(cfg.FolderPath(), kvPath)
	}

	switch cfg.KV.Driver {
	case config.DriverPebble:
		kv, err := store.OpenPebble(kvPath, store.PebbleOptions{Sync: true})
		if err != nil {
			return nil, fmt.Errorf("open kv: %w", err)
		}
		return kv, nil
	case config.DriverSQLite, "":
		if err := os.MkdirAll(filepath.Dir(kvPath), 0o755); err != nil {
			return nil, fmt.Errorf("open kv: %w", err)
		}
		kv, err := store.OpenSQLite(kvPath)
		if err != nil {
			return nil, fmt.Errorf("open kv: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown kv driver %q", cfg.KV.Driver)
	}
}

// Tags returns the registered type tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.types))
	for tag := range r.types {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}
