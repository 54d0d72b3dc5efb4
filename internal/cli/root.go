package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/ajstore/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // YAML file, CUE file or CUE package directory
	DataPath string
	Account  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// EnvPrefix prefixes environment variables that set global flags, for
// example AJSTORE_DATA_PATH.
const EnvPrefix = "AJSTORE"

// NewRootCommand creates the root command for the ajstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "ajstore",
		Short: "ajstore - embedded typed document store",
		Long: `Inspect, validate and maintain ajstore collection files.

Collections are stored as append-friendly JSON fragment lists (.ajson) or in
an embedded key-value store. Global flags can also be set through AJSTORE_*
environment variables.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = v.GetBool("verbose")
			opts.Format = v.GetString("format")
			opts.Config = v.GetString("config")
			opts.DataPath = v.GetString("data-path")
			opts.Account = v.GetString("account")

			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("format", "text", "output format (json|text)")
	pf.StringP("config", "c", "", "registry config (YAML file, CUE file or CUE package dir)")
	pf.String("data-path", "", "storage root (overrides config)")
	pf.String("account", "", "account namespace under the storage root (overrides config)")
	_ = v.BindPFlags(pf)

	// Add subcommands
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRecoverCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// LoadConfig reads the configured registry config, or the defaults when no
// config is set, and applies the path flags on top.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		var err error
		if isCUE(o.Config) {
			cfg, err = config.LoadCUE(o.Config)
		} else {
			cfg, err = config.LoadYAML(o.Config)
		}
		if err != nil {
			return nil, err
		}
	}
	if o.DataPath != "" {
		cfg.DataPath = o.DataPath
	}
	if o.Account != "" {
		cfg.Account = o.Account
	}
	return cfg, nil
}

func isCUE(path string) bool {
	if strings.HasSuffix(path, ".cue") {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Logger returns a text logger writing to w. Verbose mode logs at debug
// level; otherwise only warnings and errors are shown.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
