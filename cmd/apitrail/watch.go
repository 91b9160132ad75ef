package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail/internal/watch"
)

var flagDebounce string

var watchCmd = &cobra.Command{
	Use:   "watch [input-dir]",
	Short: "Aggregate an input directory and re-aggregate libraries as they change",
	Long:  "Runs a full aggregation, then watches <input-dir> for new or changed version tree files and re-aggregates the affected library. Stops on interrupt.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagDebounce, "debounce", "", "quiet period before re-aggregating, e.g. 500ms (default: config watch.debounce)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if flagDebounce != "" {
		d, err := time.ParseDuration(flagDebounce)
		if err != nil {
			return outputError("watch", err)
		}
		cfg.Watch.Debounce = d
	}
	inputDir, err := resolveInputDir(args)
	if err != nil {
		return outputError("watch", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return outputError("watch", fmt.Errorf("getting cwd: %w", err))
	}
	engine, dbPath, err := openEngine(cwd)
	if err != nil {
		return outputError("watch", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := engine.AggregateDirectory(ctx, inputDir); err != nil {
		logger.Error("initial aggregation", "error", err)
	}

	handler := func(ctx context.Context, library string) error {
		res, err := engine.AggregateLibraryDir(ctx, filepath.Join(inputDir, library))
		if err != nil {
			return err
		}
		if !res.Unchanged {
			logger.Info("library re-aggregated", "library", library, "run_id", res.RunID, "trees", len(res.Trees))
		}
		return nil
	}

	w, err := watch.New(inputDir, handler,
		watch.WithDebounceDelay(cfg.Watch.Debounce),
		watch.WithLogger(logger),
		watch.WithOnError(func(err error) {
			logger.Error("re-aggregation failed", "error", err)
		}),
	)
	if err != nil {
		return outputError("watch", err)
	}
	w.Start(ctx)
	fmt.Fprintf(os.Stderr, "Watching %s (database: %s)\n", inputDir, dbPath)

	<-ctx.Done()
	if err := w.Stop(); err != nil {
		return outputError("watch", err)
	}
	return nil
}
