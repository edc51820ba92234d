// Package config loads and validates the db-xref configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/electwix/db-xref/internal/fileset"
)

// DefaultFileName is the configuration file looked up in the working
// directory.
const DefaultFileName = "db-xref.toml"

// DefaultTimeout bounds how long a query waits for an in-flight rebuild.
const DefaultTimeout = 2 * time.Second

// DefaultSources is used when a configuration lists no sources.
var DefaultSources = []string{"**/*.sq"}

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// IndexConfig tunes indexing.
type IndexConfig struct {
	Timeout string `toml:"timeout"`
	Workers int    `toml:"workers"`
}

// StoreConfig selects where snapshots are persisted.
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// BridgeConfig names the bridge file of external usages.
type BridgeConfig struct {
	File string `toml:"file"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Format string `toml:"format"`
}

// Config mirrors the expected db-xref TOML schema.
type Config struct {
	Sources []string     `toml:"sources"`
	Exclude []string     `toml:"exclude"`
	Index   IndexConfig  `toml:"index"`
	Store   StoreConfig  `toml:"store"`
	Bridge  BridgeConfig `toml:"bridge"`
	Output  OutputConfig `toml:"output"`
}

// Plan is the fully-resolved configuration used by the CLI.
type Plan struct {
	// Root is the directory relative paths are resolved against.
	Root    string
	Sources []string
	Exclude []string
	// Files are the resolved source files.
	Files        []string
	IndexTimeout time.Duration
	Workers      int
	StoreDriver  string
	// StoreDSN is empty when no store is configured.
	StoreDSN   string
	BridgeFile string
	Format     string
	Resolver   fileset.Resolver
}

// LoadOptions tunes config loading behavior.
type LoadOptions struct {
	Strict   bool
	Resolver *fileset.Resolver
}

// Result wraps a loaded plan alongside any non-fatal warnings.
type Result struct {
	Plan     Plan
	Warnings []string
}

// knownKeys lists the accepted keys per table; "" is the top level.
var knownKeys = map[string][]string{
	"":       {"sources", "exclude", "index", "store", "bridge", "output"},
	"index":  {"timeout", "workers"},
	"store":  {"driver", "dsn"},
	"bridge": {"file"},
	"output": {"format"},
}

// Load reads, validates, and resolves a db-xref configuration file.
func Load(path string, opts LoadOptions) (Result, error) {
	var res Result

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	unknownKeys, err := collectUnknownKeys(data)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	if len(unknownKeys) > 0 {
		message := fmt.Sprintf("%s: unknown configuration keys: %s", path, strings.Join(unknownKeys, ", "))
		if opts.Strict {
			return res, errors.New(message)
		}
		res.Warnings = append(res.Warnings, message)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.Plan, err = resolve(path, base, cfg, opts)
	return res, err
}

// Default returns the plan used when no configuration file exists: every
// .sq file below dir with default settings.
func Default(dir string, opts LoadOptions) (Result, error) {
	base, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, err
	}
	plan, err := resolve(filepath.Join(base, DefaultFileName), base, Config{}, opts)
	return Result{Plan: plan}, err
}

func resolve(path, base string, cfg Config, opts LoadOptions) (Plan, error) {
	plan := Plan{
		Root:    base,
		Sources: cfg.Sources,
		Exclude: cfg.Exclude,
	}
	if len(plan.Sources) == 0 {
		plan.Sources = DefaultSources
	}

	var err error
	if plan.IndexTimeout, err = resolveTimeout(path, cfg.Index.Timeout); err != nil {
		return plan, err
	}
	if plan.Workers, err = resolveWorkers(path, cfg.Index.Workers); err != nil {
		return plan, err
	}
	if plan.StoreDriver, plan.StoreDSN, err = resolveStore(path, base, cfg.Store); err != nil {
		return plan, err
	}
	if cfg.Bridge.File != "" {
		plan.BridgeFile = resolveRelative(base, cfg.Bridge.File)
	}
	if plan.Format, err = ResolveFormat(cfg.Output.Format); err != nil {
		return plan, fmt.Errorf("%s: %w", path, err)
	}

	var resolver fileset.Resolver
	if opts.Resolver != nil {
		resolver = *opts.Resolver
	} else {
		resolver, err = fileset.NewOSResolver(base)
		if err != nil {
			return plan, fmt.Errorf("%s: %w", path, err)
		}
	}
	if resolver, err = resolver.WithExclude(plan.Exclude); err != nil {
		return plan, fmt.Errorf("%s: exclude: %w", path, err)
	}
	plan.Resolver = resolver

	if plan.Files, err = resolvePatterns(resolver, "sources", plan.Sources); err != nil {
		return plan, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

func collectUnknownKeys(data []byte) ([]string, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	unknown := make([]string, 0)
	for key, value := range raw {
		if !slices.Contains(knownKeys[""], key) {
			unknown = append(unknown, key)
			continue
		}
		record, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for sub := range record {
			if !slices.Contains(knownKeys[key], sub) {
				unknown = append(unknown, key+"."+sub)
			}
		}
	}
	slices.Sort(unknown)
	return unknown, nil
}

func resolveTimeout(path, value string) (time.Duration, error) {
	if value == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: index.timeout: %w", path, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: index.timeout must be positive, got %s", path, value)
	}
	return d, nil
}

func resolveWorkers(path string, n int) (int, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("%s: index.workers must not be negative, got %d", path, n)
	case n == 0:
		return runtime.GOMAXPROCS(0), nil
	}
	return n, nil
}

func resolveStore(path, base string, cfg StoreConfig) (string, string, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := os.ExpandEnv(cfg.DSN)
	switch driver {
	case "", DriverSQLite:
		if dsn == "" {
			return DriverSQLite, "", nil
		}
		return DriverSQLite, resolveRelative(base, dsn), nil
	case DriverPostgres:
		if dsn == "" {
			return "", "", fmt.Errorf("%s: store.dsn is required for the postgres driver", path)
		}
		return DriverPostgres, dsn, nil
	}
	return "", "", fmt.Errorf("%s: unsupported store.driver %q", path, cfg.Driver)
}

// ResolveFormat validates an output format; the empty string selects text.
func ResolveFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output.format %q (want text, json or yaml)", format)
}

func resolveRelative(base, p string) string {
	if p == ":memory:" || strings.HasPrefix(p, "file:") || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, filepath.FromSlash(p))
}

func resolvePatterns(resolver fileset.Resolver, field string, patterns []string) ([]string, error) {
	paths, err := resolver.Resolve(patterns)
	if err != nil {
		switch {
		case errors.Is(err, fileset.ErrNoPatterns):
			return nil, fmt.Errorf("%s must include at least one pattern", field)
		default:
			var noMatchErr fileset.NoMatchError
			if errors.As(err, &noMatchErr) {
				return nil, fmt.Errorf("%s patterns matched no files: %s", field, strings.Join(noMatchErr.Patterns, ", "))
			}

			var patternErr fileset.PatternError
			if errors.As(err, &patternErr) {
				return nil, fmt.Errorf("%s: invalid glob pattern %q: %w", field, patternErr.Pattern, patternErr.Err)
			}

			return nil, fmt.Errorf("%s: %w", field, err)
		}
	}

	return paths, nil
}
