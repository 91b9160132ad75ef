package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail"
	"github.com/jward/apitrail/internal/config"
)

var (
	flagDB        string
	flagConfig    string
	flagFormat    string
	flagLogLevel  string
	flagLogFormat string
)

// cfg and logger are set by the root command's pre-run hook.
var (
	cfg    = config.Default()
	logger = slog.New(slog.DiscardHandler)
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "apitrail",
	Short:             "Track a Python library's public API across versions",
	Long:              "apitrail folds per-version API trees into one aggregated tree per package, recording when each symbol exists, its signature and source churn per version, and which aliases point at it.",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	// No Run, prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: config database, relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text|json")

	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(diffCmd)
}

// setup validates global flags, loads the configuration and builds the
// logger. Flags override config file values.
func setup(cmd *cobra.Command, args []string) error {
	if err := validateFormat(flagFormat); err != nil {
		return err
	}
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		c.Log.Format = flagLogFormat
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = c
	logger = cfg.Log.NewLogger(os.Stderr)
	return nil
}

// engineOptions translates the configuration into engine options.
func engineOptions() []apitrail.Option {
	return []apitrail.Option{
		apitrail.WithLogger(logger),
		apitrail.WithWorkers(cfg.Workers),
		apitrail.WithParallel(cfg.Parallel),
		apitrail.WithOrphanPolicy(apitrail.OrphanPolicy(cfg.OrphanPolicy)),
		apitrail.WithForce(cfg.Force),
	}
}

// openEngine creates the engine on the resolved database path.
func openEngine(startDir string) (*apitrail.Engine, string, error) {
	dbPath := resolveDBPath(findRepoRoot(startDir))
	engine, err := apitrail.New(dbPath, engineOptions()...)
	if err != nil {
		return nil, "", fmt.Errorf("creating engine: %w", err)
	}
	return engine, dbPath, nil
}

// resolveInputDir returns the absolute input directory from args, the
// config, or the working directory, in that order.
func resolveInputDir(args []string) (string, error) {
	dir := cfg.Input
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the
// configured default. Relative paths are anchored at repoRoot.
func resolveDBPath(repoRoot string) string {
	path := cfg.Database
	if flagDB != "" {
		path = flagDB
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoRoot, path)
}
