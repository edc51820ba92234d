package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/electwix/db-xref/internal/config"
	"github.com/electwix/db-xref/internal/diagnostics"
	"github.com/electwix/db-xref/internal/pipeline"
)

// Exit codes returned by Report.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Options holds the persistent flags shared by every command.
type Options struct {
	ConfigPath string
	Format     string
	Verbose    bool
	LogFormat  string
	Strict     bool
	// Archive replaces the file system with the members of a txtar file.
	Archive string
}

func (o *Options) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.ConfigPath, "config", "c", config.DefaultFileName, "path to configuration file")
	flags.StringVar(&o.Format, "format", "", "output format: text|json|yaml (default from config)")
	flags.BoolVarP(&o.Verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&o.LogFormat, "log-format", "text", "log record format on stderr: text|json")
	flags.BoolVar(&o.Strict, "strict", false, "treat configuration warnings as errors")
	flags.StringVar(&o.Archive, "archive", "", "read sources from a txtar archive instead of the file system")

	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{config.FormatText, config.FormatJSON, config.FormatYAML}, cobra.ShellCompDirectiveNoFileComp
	})
}

// UsageError reports a malformed command line.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// configLoadError is a configuration failure reported as a diagnostic.
type configLoadError struct {
	Path string
	Err  error
}

func (e *configLoadError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *configLoadError) Unwrap() error { return e.Err }

// Report writes err to w and maps it to an exit code. Diagnostics errors
// were already printed by the command and are not repeated.
func Report(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		_, _ = fmt.Fprintf(w, "error: %v\nRun 'db-xref --help' for usage.\n", usageErr.Err)
		return ExitUsage
	}
	var diagErr *pipeline.DiagnosticsError
	if errors.As(err, &diagErr) {
		return ExitFailure
	}
	var cfgErr *configLoadError
	if errors.As(err, &cfgErr) {
		_, _ = io.WriteString(w, diagnostics.NewSimpleFormatter().Format(diagnostics.ConfigError(cfgErr.Path, cfgErr.Err)))
		return ExitFailure
	}
	_, _ = fmt.Fprintf(w, "error: %v\n", err)
	return ExitFailure
}
