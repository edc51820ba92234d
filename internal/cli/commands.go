package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/electwix/db-xref/internal/config"
	"github.com/electwix/db-xref/internal/index"
	"github.com/electwix/db-xref/internal/logging"
	"github.com/electwix/db-xref/internal/pipeline"
	"github.com/electwix/db-xref/internal/selector"
	"github.com/electwix/db-xref/internal/store"
	"github.com/electwix/db-xref/internal/symbols"
	"github.com/electwix/db-xref/internal/watch"
	"github.com/electwix/db-xref/internal/workspace"
)

// defaultStoreFile is the SQLite database used by --save when the
// configuration names no store.
const defaultStoreFile = ".db-xref/index.db"

func newIndexCommand(app *App) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index every configured file and report problems",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			plan, engine, summary, err := app.indexAll(ctx, cmd)
			if err != nil {
				return err
			}
			app.printDiagnostics(engine, summary.Diagnostics)

			view := newSummaryView(summary, len(engine.Files()))
			if save {
				if view.Saved, err = app.save(ctx, plan, engine); err != nil {
					return err
				}
			}
			if err := render(app.Stdout, app.format, view); err != nil {
				return err
			}
			return summary.Err()
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "persist the index snapshot to the configured store")
	return cmd
}

// save writes a snapshot of engine to the configured store and returns
// where it went.
func (a *App) save(ctx context.Context, plan config.Plan, engine *workspace.Engine) (string, error) {
	s, where, err := a.openStore(ctx, plan)
	if err != nil {
		return "", err
	}
	defer s.Close()

	snap, err := engine.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if err := s.Save(ctx, snap); err != nil {
		return "", err
	}
	return where, nil
}

func (a *App) openStore(ctx context.Context, plan config.Plan) (*store.Store, string, error) {
	driver, err := store.ParseDriver(plan.StoreDriver)
	if err != nil {
		return nil, "", err
	}
	dsn := plan.StoreDSN
	if dsn == "" {
		dsn = filepath.Join(plan.Root, filepath.FromSlash(defaultStoreFile))
	}
	s, err := store.Open(ctx, driver, dsn, logging.NewSlogAdapter(a.logger))
	if err != nil {
		return nil, "", err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, "", err
	}
	where := dsn
	if driver == store.DriverPostgres {
		where = string(driver)
	}
	return s, where, nil
}

func newUsagesCommand(app *App) *cobra.Command {
	var (
		includeDecl bool
		stored      bool
	)
	cmd := &cobra.Command{
		Use:   "usages <selector>",
		Short: "List the usages of the declaration a selector names",
		Long: `List the usages of one declaration. The selector names a kind followed by
a dotted path, optionally restricted to a file or a position:

  db-xref usages 'column test.stuff'
  db-xref usages 'view test_view in "Test.sq"'
  db-xref usages 'table-alias aliased.test_alias @15:11'`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selector.Parse(args[0])
			if err != nil {
				return &UsageError{Err: err}
			}
			opts := index.FindUsagesOptions{IncludeDeclaration: includeDecl}
			if stored {
				return app.storedUsages(cmd, sel, opts)
			}

			ctx := cmd.Context()
			_, engine, _, err := app.indexAll(ctx, cmd)
			if err != nil {
				return err
			}
			decl, err := selectOne(sel, engine.Select(sel))
			if err != nil {
				return err
			}
			usages, err := engine.FindUsages(ctx, decl.ID, opts)
			if err != nil {
				return err
			}
			return render(app.Stdout, app.format, newUsagesView(newDeclView(tableFor(engine, decl), decl), usages))
		},
	}
	cmd.Flags().BoolVar(&includeDecl, "include-decl", false, "list the declaration site for every kind")
	cmd.Flags().BoolVar(&stored, "stored", false, "answer from the saved snapshot instead of indexing")
	return cmd
}

// storedUsages answers a usages query from the saved snapshot. Qualifiers
// are not stored, so only the kind, name, file and position narrow the
// match.
func (a *App) storedUsages(cmd *cobra.Command, sel *selector.Selector, opts index.FindUsagesOptions) error {
	ctx := cmd.Context()
	plan, err := a.loadPlan(cmd)
	if err != nil {
		return err
	}
	s, _, err := a.openStore(ctx, plan)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.Latest(ctx); err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			return fmt.Errorf("%w; run 'db-xref index --save' first", err)
		}
		return err
	}
	candidates, err := s.Declarations(ctx, sel.Kind, sel.Name())
	if err != nil {
		return err
	}
	candidates = slices.DeleteFunc(candidates, func(d *symbols.Declaration) bool {
		return !storedMatch(sel, d)
	})
	decl, err := selectOne(sel, candidates)
	if err != nil {
		return err
	}
	usages, err := s.Usages(ctx, decl.ID, opts)
	if err != nil {
		return err
	}
	return render(a.Stdout, a.format, newUsagesView(newDeclView(nil, decl), usages))
}

func storedMatch(sel *selector.Selector, d *symbols.Declaration) bool {
	if sel.File != "" {
		file := filepath.ToSlash(d.ID.Path)
		want := filepath.ToSlash(sel.File)
		if file != want && !strings.HasSuffix(file, "/"+want) {
			return false
		}
	}
	if sel.Line > 0 && d.ID.Line != sel.Line {
		return false
	}
	return sel.Column == 0 || d.ID.Column == sel.Column
}

func selectOne(sel *selector.Selector, matches []*symbols.Declaration) (*symbols.Declaration, error) {
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%s: %w", sel, workspace.ErrNoDeclaration)
	case 1:
		return matches[0], nil
	}
	var b strings.Builder
	for _, d := range matches {
		fmt.Fprintf(&b, "\n  %s:%d:%d", d.ID.Path, d.ID.Line, d.ID.Column)
	}
	return nil, fmt.Errorf("%s: %w:%s", sel, workspace.ErrAmbiguousSelector, b.String())
}

func newDeclsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "decls <file>",
		Short: "List the declarations of a file",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := app.sourcePath(args[0])
			if err != nil {
				return err
			}
			_, engine, _, err := app.indexAll(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if !slices.Contains(engine.Files(), file) {
				return fmt.Errorf("%s: %w", args[0], workspace.ErrUnknownFile)
			}
			table := engine.Table(file)
			view := &declListView{Path: file, Declarations: []*declView{}}
			for _, d := range engine.DeclarationsFor(file) {
				view.Declarations = append(view.Declarations, newDeclView(table, d))
			}
			return render(app.Stdout, app.format, view)
		},
	}
}

func newResolveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <file>:<line>:<col>",
		Short: "Show the declaration an identifier resolves to",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg, line, col, err := parsePosition(args[0])
			if err != nil {
				return &UsageError{Err: err}
			}
			file, err := app.sourcePath(arg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			_, engine, _, err := app.indexAll(ctx, cmd)
			if err != nil {
				return err
			}
			decl, err := engine.Resolve(ctx, file, line, col)
			if err != nil {
				return err
			}
			return render(app.Stdout, app.format, newDeclView(tableFor(engine, decl), decl))
		},
	}
}

// parsePosition splits "file:line:col".
func parsePosition(s string) (string, int, int, error) {
	colAt := strings.LastIndexByte(s, ':')
	if colAt < 0 {
		return "", 0, 0, fmt.Errorf("position %q: want <file>:<line>:<col>", s)
	}
	lineAt := strings.LastIndexByte(s[:colAt], ':')
	if lineAt <= 0 {
		return "", 0, 0, fmt.Errorf("position %q: want <file>:<line>:<col>", s)
	}
	line, err := strconv.Atoi(s[lineAt+1 : colAt])
	if err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("position %q: invalid line", s)
	}
	col, err := strconv.Atoi(s[colAt+1:])
	if err != nil || col < 1 {
		return "", 0, 0, fmt.Errorf("position %q: invalid column", s)
	}
	return s[:lineAt], line, col, nil
}

func newWatchCommand(app *App) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-index files as they change",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.Options.Archive != "" {
				return usageErrorf("watch reads the file system and cannot be combined with --archive")
			}
			ctx := cmd.Context()
			plan, err := app.loadPlan(cmd)
			if err != nil {
				return err
			}
			engine, pipe := app.newEngine(plan)

			report := func(ctx context.Context, summary pipeline.Summary) {
				app.printDiagnostics(engine, summary.Diagnostics)
				view := newSummaryView(summary, len(engine.Files()))
				if save {
					where, err := app.save(ctx, plan, engine)
					if err != nil {
						app.logger.Error("save snapshot", "error", err)
					}
					view.Saved = where
				}
				if err := render(app.Stdout, app.format, view); err != nil {
					app.logger.Error("write summary", "error", err)
				}
			}

			summary, err := pipe.Run(ctx, pipeline.RunOptions{
				Files:      plan.Files,
				Workers:    plan.Workers,
				BridgeFile: plan.BridgeFile,
			})
			if err != nil {
				return err
			}
			report(ctx, summary)

			var extra []string
			if plan.BridgeFile != "" {
				extra = append(extra, plan.BridgeFile)
			}
			w, err := watch.New(plan.Root, watch.Options{
				Sources: plan.Sources,
				Exclude: plan.Exclude,
				Extra:   extra,
				Logger:  logging.NewSlogAdapter(app.logger),
				OnChange: func(ctx context.Context, c watch.Change) {
					opts := pipeline.RunOptions{Workers: plan.Workers, BridgeFile: plan.BridgeFile}
					opts.Files = slices.DeleteFunc(c.Changed, func(p string) bool { return p == plan.BridgeFile })
					opts.Removed = slices.DeleteFunc(c.Removed, func(p string) bool { return p == plan.BridgeFile })
					summary, err := pipe.Run(ctx, opts)
					if err != nil {
						if ctx.Err() == nil {
							app.logger.Error("re-index", "error", err)
						}
						return
					}
					report(ctx, summary)
				},
			})
			if err != nil {
				return err
			}
			defer w.Close()
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "persist a snapshot after every re-index")
	return cmd
}
