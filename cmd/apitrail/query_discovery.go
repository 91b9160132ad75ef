package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail"
)

// --- Discovery / Digest Commands ---

var (
	flagLibrary string
	flagKind    string
	flagPattern string
	flagVersion string
	flagParent  int64
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List stored nodes with optional filters",
	RunE:  runNodes,
}

func init() {
	nodesCmd.Flags().StringVar(&flagLibrary, "library", "", "filter by library")
	nodesCmd.Flags().StringVar(&flagRoot, "root", "", "filter by root package")
	nodesCmd.Flags().StringVar(&flagKind, "kind", "", "filter by kind (module, class, class_alias, api, api_alias)")
	nodesCmd.Flags().StringVar(&flagPattern, "pattern", "", "substring of full_name")
	nodesCmd.Flags().StringVar(&flagVersion, "version", "", "only nodes available in this version")
	nodesCmd.Flags().Int64Var(&flagParent, "parent", 0, "only direct children of this node id")
}

func runNodes(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("nodes", err)
	}
	defer s.Close()

	filter := apitrail.NodeFilter{
		Library: flagLibrary,
		Root:    flagRoot,
		Pattern: flagPattern,
		Version: flagVersion,
	}
	if flagKind != "" {
		filter.Kinds = []apitrail.Kind{apitrail.Kind(flagKind)}
	}
	if cmd.Flags().Changed("parent") {
		filter.ParentID = &flagParent
	}

	result, err := apitrail.NewQueryBuilder(s).Nodes(filter, buildSort(), buildPagination())
	if err != nil {
		return outputError("nodes", err)
	}

	out := make([]CLINode, len(result.Items))
	for i, n := range result.Items {
		out[i] = CLINode{
			ID:           n.ID,
			Library:      n.Library,
			Root:         n.Root,
			Name:         n.Name,
			FullName:     n.FullName,
			Kind:         n.Kind,
			ParentID:     n.ParentID,
			VersionCount: n.VersionCount,
			FirstVersion: n.FirstVersion,
			LastVersion:  n.LastVersion,
		}
	}
	return outputResult(CLIResult{Command: "nodes", Results: out, TotalCount: &result.TotalCount})
}

var summaryCmd = &cobra.Command{
	Use:   "summary <library>",
	Short: "Summarise a stored library",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("summary", err)
	}
	defer s.Close()

	summary, err := apitrail.NewQueryBuilder(s).LibrarySummary(args[0])
	if err != nil {
		return outputError("summary", err)
	}
	if summary == nil {
		return outputError("summary", fmt.Errorf("library %s not found", args[0]))
	}

	out := CLILibrarySummary{Library: summary.Library, RunID: summary.RunID, Trees: []CLITreeSummary{}}
	for _, ts := range summary.Trees {
		out.Trees = append(out.Trees, CLITreeSummary{
			Root:       ts.Root,
			Versions:   ts.Versions,
			NodeCount:  ts.NodeCount,
			KindCounts: ts.KindCounts,
			AliasEdges: ts.AliasEdges,
		})
	}
	return outputResult(CLIResult{Command: "summary", Results: out})
}
