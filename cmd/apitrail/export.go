package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail"
	"github.com/jward/apitrail/internal/difftrack"
)

var (
	flagOutput   string
	flagDiffKind string
)

var exportCmd = &cobra.Command{
	Use:   "export <library> <root>",
	Short: "Export a stored aggregated tree as JSON",
	Long:  "Writes the flat snapshot of one aggregated tree: nodes with their version sets, signatures and sources, and the per-version alias targets.",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

var diffCmd = &cobra.Command{
	Use:   "diff <library> <full_name> <from-version> <to-version>",
	Short: "Show a symbol's source change between two versions",
	Args:  cobra.ExactArgs(4),
	RunE:  runDiff,
}

func init() {
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write to this file instead of stdout")

	diffCmd.Flags().StringVar(&flagRoot, "root", "", "root package (default: first segment of full_name)")
	diffCmd.Flags().StringVar(&flagDiffKind, "kind", "", "node kind when a class and its constructor share the name (default: first with sources)")
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("export", err)
	}
	defer s.Close()

	library, root := args[0], args[1]
	snap, err := apitrail.NewQueryBuilder(s).Snapshot(library, root)
	if err != nil {
		return outputError("export", err)
	}
	if snap == nil {
		return outputError("export", fmt.Errorf("no tree %s in library %s", root, library))
	}

	out := os.Stdout
	if flagOutput != "" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return outputError("export", fmt.Errorf("creating output: %w", err))
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return outputError("export", fmt.Errorf("encoding snapshot: %w", err))
	}
	if flagOutput != "" {
		fmt.Fprintf(os.Stderr, "Exported %s/%s (%d nodes) to %s\n", library, root, len(snap.Nodes), flagOutput)
	}
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("diff", err)
	}
	defer s.Close()

	library, fullName, from, to := args[0], args[1], args[2], args[3]
	hist, err := apitrail.NewQueryBuilder(s).History(library, rootOf(fullName), fullName)
	if err != nil {
		return outputError("diff", err)
	}
	h := pickDiffHistory(hist, flagDiffKind)
	if h == nil {
		return outputError("diff", fmt.Errorf("no symbol %s with sources in library %s", fullName, library))
	}

	oldEntry, ok := historyEntry(h, from)
	if !ok {
		return outputError("diff", fmt.Errorf("%s is not available in version %s", fullName, from))
	}
	newEntry, ok := historyEntry(h, to)
	if !ok {
		return outputError("diff", fmt.Errorf("%s is not available in version %s", fullName, to))
	}

	tracker := difftrack.New(difftrack.WithLogger(logger))
	a, b := tracker.Load(oldEntry.Source), tracker.Load(newEntry.Source)
	patch, err := difftrack.Patch(fullName+"@"+from, fullName+"@"+to, a, b)
	if err != nil {
		return outputError("diff", err)
	}

	if flagFormat == "text" {
		_, err := os.Stdout.Write(patch)
		return err
	}
	return outputResult(CLIResult{Command: "diff", Results: CLIDiff{
		FullName: h.FullName,
		Kind:     string(h.Kind),
		From:     from,
		To:       to,
		Lines:    difftrack.Count(a, b),
		Patch:    string(patch),
	}})
}

// pickDiffHistory returns the history of the given kind, or the first one
// that recorded sources.
func pickDiffHistory(hist []*apitrail.NodeHistory, kind string) *apitrail.NodeHistory {
	for _, h := range hist {
		if kind != "" {
			if string(h.Kind) == kind {
				return h
			}
			continue
		}
		for _, e := range h.Entries {
			if e.HasSource {
				return h
			}
		}
	}
	return nil
}

func historyEntry(h *apitrail.NodeHistory, version string) (apitrail.VersionEntry, bool) {
	for _, e := range h.Entries {
		if e.Version == version {
			return e, true
		}
	}
	return apitrail.VersionEntry{}, false
}
