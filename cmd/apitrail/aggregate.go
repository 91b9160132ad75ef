package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail"
)

var (
	flagForce   bool
	flagWorkers int
	flagSerial  bool
	flagOrphans string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [input-dir]",
	Short: "Aggregate every library under an input directory",
	Long:  "Reads <input-dir>/<library>/<version>/<package>.json version trees, folds each package across its versions and writes the aggregated trees to the SQLite database. Libraries whose input is unchanged are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAggregate,
}

func init() {
	aggregateCmd.Flags().BoolVar(&flagForce, "force", false, "re-aggregate libraries even when their input is unchanged")
	aggregateCmd.Flags().IntVar(&flagWorkers, "workers", 0, "libraries folded at once (default: config workers)")
	aggregateCmd.Flags().BoolVar(&flagSerial, "serial", false, "fold libraries one at a time")
	aggregateCmd.Flags().StringVar(&flagOrphans, "orphans", "", "alias without target: keep|fail (default: config orphan_policy)")
}

// applyAggregateFlags copies changed aggregate flags over the config.
func applyAggregateFlags(cmd *cobra.Command) error {
	if flagForce {
		cfg.Force = true
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = flagWorkers
	}
	if flagSerial {
		cfg.Parallel = false
	}
	if flagOrphans != "" {
		cfg.OrphanPolicy = flagOrphans
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runAggregate(cmd *cobra.Command, args []string) error {
	start := time.Now()
	if err := applyAggregateFlags(cmd); err != nil {
		return outputError("aggregate", err)
	}
	inputDir, err := resolveInputDir(args)
	if err != nil {
		return outputError("aggregate", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return outputError("aggregate", fmt.Errorf("getting cwd: %w", err))
	}
	engine, dbPath, err := openEngine(cwd)
	if err != nil {
		return outputError("aggregate", err)
	}
	defer engine.Close()

	results, aggErr := engine.AggregateDirectory(context.Background(), inputDir)

	out := make([]CLILibraryResult, 0, len(results))
	for _, r := range results {
		out = append(out, libraryResultToCLI(r))
	}
	if aggErr != nil {
		return outputError("aggregate", aggErr)
	}

	fmt.Fprintf(os.Stderr, "Aggregated %d libraries from %s in %s\n",
		len(out), inputDir, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	count := len(out)
	return outputResult(CLIResult{Command: "aggregate", Results: out, TotalCount: &count})
}

// libraryResultToCLI converts an engine result to its CLI form.
func libraryResultToCLI(r *apitrail.LibraryResult) CLILibraryResult {
	lr := CLILibraryResult{
		Library:   r.Library,
		RunID:     r.RunID,
		Unchanged: r.Unchanged,
		Trees:     []CLITreeResult{},
	}
	for _, t := range r.Trees {
		tr := CLITreeResult{
			Root:            t.Root,
			Versions:        t.Versions,
			Nodes:           t.Nodes,
			SkippedVersions: t.SkippedVersions,
		}
		for _, serr := range t.SymbolErrors {
			tr.SymbolErrors = append(tr.SymbolErrors, CLISymbolError{
				FullName: serr.FullName,
				Kind:     string(serr.Kind),
				Version:  serr.Version,
				Error:    serr.Err.Error(),
			})
		}
		lr.Trees = append(lr.Trees, tr)
	}
	return lr
}
