package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail/internal/extract"
	"github.com/jward/apitrail/internal/runtime"
	"github.com/jward/apitrail/internal/versiontree"
	"github.com/jward/apitrail/scripts"
)

var (
	flagFilter     string
	flagScriptsDir string
	flagSkipDirs   []string
)

var extractCmd = &cobra.Command{
	Use:   "extract <version-dir> <out-dir>",
	Short: "Extract version trees from one version of a Python library",
	Long: `Parses every top-level Python package under <version-dir> with tree-sitter and writes one version tree per package to <out-dir>/<package>.json, with source snippets under <out-dir>/src.

Lay out out-dirs as <input>/<library>/<version> so "apitrail aggregate <input>" picks them up.

--filter names a Risor script deciding which symbols are kept. Paths are looked up on disk first, then among the bundled scripts (filter/public.risor, filter/stable.risor, filter/implemented.risor).`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&flagFilter, "filter", "", "Risor symbol filter script (default: config extract.filter_script, else public symbols)")
	extractCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load bundled scripts from disk path instead of embedded")
	extractCmd.Flags().StringSliceVar(&flagSkipDirs, "skip-dirs", nil, "directory names to skip (default: config extract.skip_dirs)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	start := time.Now()
	versionDir, err := filepath.Abs(args[0])
	if err != nil {
		return outputError("extract", err)
	}
	outDir, err := filepath.Abs(args[1])
	if err != nil {
		return outputError("extract", err)
	}

	opts := []extract.Option{
		extract.WithLogger(logger),
		extract.WithWorkers(cfg.Workers),
	}
	skip := cfg.Extract.SkipDirs
	if cmd.Flags().Changed("skip-dirs") {
		skip = flagSkipDirs
	}
	opts = append(opts, extract.WithSkipDirs(skip))

	script := cfg.Extract.FilterScript
	if flagFilter != "" {
		script = flagFilter
	}
	if script != "" {
		f, err := loadFilter(script)
		if err != nil {
			return outputError("extract", err)
		}
		opts = append(opts, extract.WithFilter(f))
	}

	files, err := extract.New(opts...).Version(context.Background(), versionDir, outDir)
	if err != nil {
		return outputError("extract", err)
	}

	fmt.Fprintf(os.Stderr, "Extracted %d packages from %s in %s\n",
		len(files), versionDir, time.Since(start).Round(time.Millisecond))

	out := make([]CLIExtracted, len(files))
	for i, f := range files {
		out[i] = CLIExtracted{Package: versiontree.PackageName(f), File: f}
	}
	count := len(out)
	return outputResult(CLIResult{Command: "extract", Results: out, TotalCount: &count})
}

// newRuntime builds the script runtime: --scripts-dir when set, else the
// embedded scripts.
func newRuntime() *runtime.Runtime {
	if flagScriptsDir != "" {
		return runtime.NewRuntime(flagScriptsDir, runtime.WithRuntimeLogger(logger))
	}
	return runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS), runtime.WithRuntimeLogger(logger))
}

// loadFilter reads a filter script from disk when path exists there, and
// from the runtime's script source otherwise.
func loadFilter(path string) (*extract.ScriptFilter, error) {
	rt := newRuntime()
	if data, err := os.ReadFile(path); err == nil {
		return extract.NewScriptFilter(rt, string(data)), nil
	}
	f, err := extract.LoadScriptFilter(rt, path)
	if err != nil {
		return nil, fmt.Errorf("loading filter %s: %w", path, err)
	}
	return f, nil
}
