// Package cli implements the db-xref command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/config"
	"github.com/electwix/db-xref/internal/diagnostics"
	"github.com/electwix/db-xref/internal/fileset"
	"github.com/electwix/db-xref/internal/logging"
	"github.com/electwix/db-xref/internal/pipeline"
	"github.com/electwix/db-xref/internal/workspace"
)

// App carries the state shared by the commands of one invocation.
type App struct {
	Options Options
	Stdout  io.Writer
	Stderr  io.Writer

	logger *slog.Logger
	format string
}

// NewRootCommand builds the db-xref command tree writing to stdout and
// stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	app := &App{Stdout: stdout, Stderr: stderr}

	root := &cobra.Command{
		Use:   "db-xref",
		Short: "Find declarations and usages in SQLDelight .sq files",
		Long: `db-xref indexes SQLDelight .sq files, binds every identifier to the table,
column, view, CTE or alias it names, and answers find-usages queries,
including usages recorded in host-language code through a bridge file.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format, err := config.ResolveFormat(app.Options.Format)
			if err != nil {
				return &UsageError{Err: err}
			}
			if app.Options.Format != "" {
				app.format = format
			}
			logFormat, err := logging.ParseFormat(app.Options.LogFormat)
			if err != nil {
				return &UsageError{Err: err}
			}
			app.logger = logging.New(logging.Options{
				Verbose: app.Options.Verbose,
				Format:  logFormat,
				Writer:  app.Stderr,
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	app.Options.bind(root)

	root.AddCommand(
		newIndexCommand(app),
		newUsagesCommand(app),
		newDeclsCommand(app),
		newResolveCommand(app),
		newWatchCommand(app),
	)
	return root
}

// Execute runs the command line args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	return Report(stderr, root.ExecuteContext(ctx))
}

// loadPlan reads the configuration. A missing default configuration file
// falls back to indexing every .sq file below the working directory.
func (a *App) loadPlan(cmd *cobra.Command) (config.Plan, error) {
	opts := config.LoadOptions{Strict: a.Options.Strict}
	if a.Options.Archive != "" {
		resolver, err := fileset.LoadArchive(a.Options.Archive)
		if err != nil {
			return config.Plan{}, err
		}
		opts.Resolver = &resolver
	}

	var (
		res config.Result
		err error
	)
	_, statErr := os.Stat(a.Options.ConfigPath)
	if errors.Is(statErr, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		a.logger.Debug("no configuration file, using defaults", "path", a.Options.ConfigPath)
		res, err = config.Default(".", opts)
	} else {
		res, err = config.Load(a.Options.ConfigPath, opts)
	}
	if err != nil {
		return config.Plan{}, &configLoadError{Path: a.Options.ConfigPath, Err: err}
	}

	if len(res.Warnings) > 0 {
		warnings := diagnostics.NewCollection()
		for _, w := range res.Warnings {
			warnings.Add(diagnostics.ConfigWarning(a.Options.ConfigPath, w))
		}
		_ = diagnostics.NewSimpleFormatter().WriteAll(a.Stderr, warnings)
	}
	if a.format == "" {
		a.format = res.Plan.Format
	}
	a.logger.Debug("configuration loaded", "root", res.Plan.Root, "files", len(res.Plan.Files))
	return res.Plan, nil
}

// newEngine creates an engine and the pipeline feeding it from plan.
func (a *App) newEngine(plan config.Plan) (*workspace.Engine, *pipeline.Pipeline) {
	log := logging.NewSlogAdapter(a.logger)
	engine := workspace.New(workspace.Options{
		IndexTimeout: plan.IndexTimeout,
		Logger:       log,
	})
	return engine, &pipeline.Pipeline{
		Env: pipeline.Environment{
			Engine:   engine,
			Logger:   log,
			ReadFile: plan.Resolver.ReadFile,
		},
		Hooks: a.progressHooks().Chain(a.bridgeHooks()),
	}
}

// progressHooks log each parsed file at debug level.
func (a *App) progressHooks() pipeline.Hooks {
	var total, done int
	return pipeline.Hooks{
		BeforeIndex: func(_ context.Context, paths []string) error {
			total, done = len(paths), 0
			return nil
		},
		AfterFile: func(_ context.Context, res pipeline.FileResult) error {
			done++
			if res.Err != nil {
				a.logger.Debug("file failed", "path", res.Path, "done", done, "total", total, "error", res.Err)
				return nil
			}
			a.logger.Debug("file parsed", "path", res.Path, "done", done, "total", total)
			return nil
		},
	}
}

func (a *App) bridgeHooks() pipeline.Hooks {
	return pipeline.Hooks{
		BeforeBridge: func(_ context.Context, entries []bridge.Entry) error {
			a.logger.Debug("applying bridge file", "entries", len(entries))
			return nil
		},
	}
}

// indexAll parses every configured file and applies the bridge file.
func (a *App) indexAll(ctx context.Context, cmd *cobra.Command) (config.Plan, *workspace.Engine, pipeline.Summary, error) {
	plan, err := a.loadPlan(cmd)
	if err != nil {
		return plan, nil, pipeline.Summary{}, err
	}
	engine, pipe := a.newEngine(plan)
	summary, err := pipe.Run(ctx, pipeline.RunOptions{
		Files:      plan.Files,
		Workers:    plan.Workers,
		BridgeFile: plan.BridgeFile,
	})
	return plan, engine, summary, err
}

// sourcePath maps a command line file argument to the key the engine
// indexed it under.
func (a *App) sourcePath(arg string) (string, error) {
	if a.Options.Archive != "" {
		return path.Clean(filepath.ToSlash(arg)), nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	return abs, nil
}

// printDiagnostics writes the problems of a run to stderr with source
// context and reports whether any of them is an error.
func (a *App) printDiagnostics(engine *workspace.Engine, c *diagnostics.Collection) bool {
	if c == nil || c.Len() == 0 {
		return false
	}
	diagnostics.Enrich(c, diagnostics.NewContextExtractor(engine.Source), 1)
	f := diagnostics.NewFormatter()
	_ = f.WriteAll(a.Stderr, c)
	f.PrintSummary(a.Stderr, c)
	return c.HasErrors()
}
