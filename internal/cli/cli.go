package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/variantforge/internal/app"
	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/materialize"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
	ExitCorrupt = 3
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// options holds the persistent flags shared by every subcommand.
type options struct {
	logFormat string
	logLevel  string
	workers   int
	cacheSize int
	staging   string
	output    string
}

// newConfig validates the flags into an app configuration.
func (o *options) newConfig(configPath string) (*app.Config, error) {
	cfg, err := app.NewConfig(app.Config{
		ConfigPath:  configPath,
		StagingRoot: o.staging,
		Output:      o.output,
		Workers:     o.workers,
		CacheSize:   o.cacheSize,
		LogFormat:   strings.ToLower(o.logFormat),
		LogLevel:    strings.ToLower(o.logLevel),
	})
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// usageArgs wraps a cobra positional-argument validator so its failures
// carry the usage exit code.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := validate(cmd, a); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// NewRootCommand builds the variantforge command tree. Command output goes
// to outW and logs go to errW.
func NewRootCommand(outW, errW io.Writer, loader config.Loader) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "variantforge",
		Short: "Generate type-specialized C sources and build targets from template modules",
		Long: `variantforge expands generic C template modules into one staged copy per
combination of type axes, renames and specializes every copy, and writes a
build-target description an external build system can consume.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(outW)
	rootCmd.SetErr(errW)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logFormat, "log-format", app.DefaultLogFormat, "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&opts.logLevel, "log-level", app.DefaultLogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.IntVarP(&opts.workers, "workers", "w", app.DefaultWorkers, "Number of variants generated concurrently.")
	flags.IntVar(&opts.cacheSize, "cache-size", 0, "Template cache entries. 0 uses the default.")
	flags.StringVar(&opts.staging, "staging", "", "Override the project's staging root.")
	flags.StringVarP(&opts.output, "output", "o", "", "Override the build-target description path.")

	generateCmd := &cobra.Command{
		Use:   "generate CONFIG_PATH",
		Short: "Materialize every variant and write the build-target description",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			cfg, err := opts.newConfig(a[0])
			if err != nil {
				return err
			}
			targets, err := app.NewApp(outW, errW, cfg, loader).Generate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(outW, "%d build targets written\n", len(targets))
			return nil
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan CONFIG_PATH",
		Short: "Print every variant and destination file without writing anything",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			cfg, err := opts.newConfig(a[0])
			if err != nil {
				return err
			}
			_, err = app.NewApp(outW, errW, cfg, loader).Plan(cmd.Context())
			return err
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset CONFIG_PATH [MODULE [VARIANT_KEY]]",
		Short: "Remove staged variant subtrees so the next run regenerates them",
		Args:  usageArgs(cobra.RangeArgs(1, 3)),
		RunE: func(cmd *cobra.Command, a []string) error {
			cfg, err := opts.newConfig(a[0])
			if err != nil {
				return err
			}
			var module, key string
			if len(a) > 1 {
				module = a[1]
			}
			if len(a) > 2 {
				key = a[2]
			}
			_, err = app.NewApp(outW, errW, cfg, loader).Reset(cmd.Context(), module, key)
			return err
		},
	}

	rootCmd.AddCommand(generateCmd, planCmd, resetCmd)
	return rootCmd
}

// Execute runs the command tree with args and maps failures onto exit
// codes. A nil error means success, including help output.
func Execute(ctx context.Context, args []string, outW, errW io.Writer, loader config.Loader) error {
	rootCmd := NewRootCommand(outW, errW, loader)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr
	case errors.Is(err, materialize.ErrCorruptStaging):
		return &ExitError{
			Code:    ExitCorrupt,
			Message: err.Error() + "\nremove the subtree with 'variantforge reset' and run again",
		}
	case errors.Is(err, config.ErrInvalidConfig):
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	case strings.HasPrefix(err.Error(), "unknown command"):
		return usageError(err)
	default:
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
}
