// Package config holds registry configuration and its YAML and CUE loaders.
package config

import (
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
)

// Config is the ambient configuration of a registry.
type Config struct {
	// DataPath is the storage root. Collections live under DataPath/Account.
	DataPath string `yaml:"data_path" json:"data_path"`
	Account  string `yaml:"account,omitempty" json:"account,omitempty"`
	// Engine is the default strategy for collections that do not set one.
	Engine      string                      `yaml:"engine,omitempty" json:"engine,omitempty"`
	KV          KVConfig                    `yaml:"kv,omitempty" json:"kv,omitempty"`
	Collections map[string]CollectionConfig `yaml:"collections,omitempty" json:"collections,omitempty"`
}

// KVConfig selects the key-value store used by kv collections.
type KVConfig struct {
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	// Path is relative to the folder path unless absolute.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// KV drivers.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// CollectionConfig overrides settings for one collection name. Settings
// holds free-form values exposed through the collection's configuration.
type CollectionConfig struct {
	Engine       string         `yaml:"engine,omitempty" json:"engine,omitempty"`
	FileName     string         `yaml:"file_name,omitempty" json:"file_name,omitempty"`
	HeavyField   string         `yaml:"heavy_field,omitempty" json:"heavy_field,omitempty"`
	Debounce     Duration       `yaml:"debounce,omitempty" json:"debounce,omitempty"`
	GuardTimeout *Duration      `yaml:"guard_timeout,omitempty" json:"guard_timeout,omitempty"`
	SizeGuard    *bool          `yaml:"size_guard,omitempty" json:"size_guard,omitempty"`
	MinSize      int64          `yaml:"min_size,omitempty" json:"min_size,omitempty"`
	BatchSize    int            `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
	Settings     map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns an empty configuration rooted at the current directory.
func Default() *Config {
	return &Config{DataPath: ".", Collections: map[string]CollectionConfig{}}
}

// FolderPath is where collection files are stored.
func (c *Config) FolderPath() string {
	return path.Join(c.DataPath, c.Account)
}

// Collection returns the overrides for name with the global engine applied.
func (c *Config) Collection(name string) CollectionConfig {
	cc := c.Collections[name]
	if cc.Engine == "" {
		cc.Engine = c.Engine
	}
	if cc.Engine == "" {
		cc.Engine = persist.StrategyFullRewrite
	}
	return cc
}

// GuardTimeoutOr returns the configured guard timeout, or def when unset.
func (cc CollectionConfig) GuardTimeoutOr(def time.Duration) time.Duration {
	if cc.GuardTimeout == nil {
		return def
	}
	return cc.GuardTimeout.Std()
}

// SizeGuardOr returns the configured size guard switch, or def when unset.
func (cc CollectionConfig) SizeGuardOr(def bool) bool {
	if cc.SizeGuard == nil {
		return def
	}
	return *cc.SizeGuard
}

// SettingsData returns Settings normalized to the document value model.
func (cc CollectionConfig) SettingsData() (doc.Data, error) {
	if len(cc.Settings) == 0 {
		return doc.Data{}, nil
	}
	return doc.NormalizeData(cc.Settings)
}

var engines = []string{persist.StrategyFullRewrite, persist.StrategyBackupSwap, persist.StrategyKV}

// Validate checks engine names and numeric bounds.
func (c *Config) Validate() error {
	if c.Engine != "" && !slices.Contains(engines, c.Engine) {
		return &Error{Code: ErrCodeInvalid, Field: "engine", Message: fmt.Sprintf("unknown engine %q", c.Engine)}
	}
	switch c.KV.Driver {
	case "", DriverSQLite, DriverPebble:
	default:
		return &Error{Code: ErrCodeInvalid, Field: "kv.driver", Message: fmt.Sprintf("unknown driver %q", c.KV.Driver)}
	}
	for name, cc := range c.Collections {
		field := "collections." + name
		if cc.Engine != "" && !slices.Contains(engines, cc.Engine) {
			return &Error{Code: ErrCodeInvalid, Field: field + ".engine", Message: fmt.Sprintf("unknown engine %q", cc.Engine)}
		}
		if cc.BatchSize < 0 {
			return &Error{Code: ErrCodeInvalid, Field: field + ".batch_size", Message: "must not be negative"}
		}
		if cc.MinSize < 0 {
			return &Error{Code: ErrCodeInvalid, Field: field + ".min_size", Message: "must not be negative"}
		}
		if cc.Debounce < 0 || (cc.GuardTimeout != nil && *cc.GuardTimeout < 0) {
			return &Error{Code: ErrCodeInvalid, Field: field, Message: "durations must not be negative"}
		}
	}
	return nil
}
