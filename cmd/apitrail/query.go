package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/apitrail"
	"github.com/jward/apitrail/internal/store"
)

var (
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string
	flagRoot   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query aggregated trees",
	Long:  "Run read-only queries against the aggregated trees stored by 'apitrail aggregate'.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagSort, "sort", "", "sort field: name|kind|versions")
	queryCmd.PersistentFlags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")

	historyCmd.Flags().StringVar(&flagRoot, "root", "", "root package (default: first segment of full_name)")

	queryCmd.AddCommand(treesCmd)
	queryCmd.AddCommand(historyCmd)
	queryCmd.AddCommand(findCmd)
	queryCmd.AddCommand(nodesCmd)
	queryCmd.AddCommand(summaryCmd)
}

// --- Helpers ---

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'apitrail aggregate' first)", dbPath)
	}

	return store.NewStore(dbPath)
}

// rootOf returns --root when set, else the first segment of fullName.
func rootOf(fullName string) string {
	if flagRoot != "" {
		return flagRoot
	}
	root, _, _ := strings.Cut(fullName, ".")
	return root
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() apitrail.Pagination {
	return apitrail.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

// buildSort creates a Sort from CLI flags.
func buildSort() apitrail.Sort {
	var field apitrail.SortField
	switch flagSort {
	case "kind":
		field = apitrail.SortByKind
	case "versions":
		field = apitrail.SortByVersions
	default:
		field = apitrail.SortByName
	}

	var order apitrail.SortOrder
	switch flagOrder {
	case "desc":
		order = apitrail.Desc
	default:
		order = apitrail.Asc
	}

	return apitrail.Sort{Field: field, Order: order}
}

// treeToCLI converts a stored tree description to a CLITree.
func treeToCLI(ti *apitrail.TreeInfo) CLITree {
	return CLITree{
		ID:           ti.ID,
		Library:      ti.Library,
		Root:         ti.Root,
		RunID:        ti.RunID,
		Versions:     ti.Versions,
		NodeCount:    ti.NodeCount,
		AggregatedAt: ti.AggregatedAt.UTC().Format(time.RFC3339),
	}
}

// historyToCLI converts a NodeHistory to a CLIHistory.
func historyToCLI(h *apitrail.NodeHistory) CLIHistory {
	out := CLIHistory{Name: h.Name, FullName: h.FullName, Kind: string(h.Kind), Versions: []CLIVersionEntry{}}
	for _, e := range h.Entries {
		ve := CLIVersionEntry{
			Version:       e.Version,
			Params:        e.Params,
			Defaults:      e.Defaults,
			SignatureHash: e.SignatureHash,
			Source:        e.Source,
			Target:        e.Target,
			Aliases:       e.Aliases,
		}
		if e.HasSource {
			size := e.DiffSize
			ve.DiffSize = &size
		}
		out.Versions = append(out.Versions, ve)
	}
	return out
}

// --- Tree Commands ---

var treesCmd = &cobra.Command{
	Use:   "trees [library]",
	Short: "List stored aggregated trees",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTrees,
}

func runTrees(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("trees", err)
	}
	defer s.Close()

	library := ""
	if len(args) > 0 {
		library = args[0]
	}
	trees, err := apitrail.NewQueryBuilder(s).Trees(library)
	if err != nil {
		return outputError("trees", err)
	}

	out := make([]CLITree, len(trees))
	for i, ti := range trees {
		out[i] = treeToCLI(ti)
	}
	count := len(out)
	return outputResult(CLIResult{Command: "trees", Results: out, TotalCount: &count})
}

var historyCmd = &cobra.Command{
	Use:   "history <library> <full_name>",
	Short: "Show a symbol's per-version history",
	Long:  "Prints, per version, the symbol's signature, source snapshot and diff size, and its alias links. A class and its constructor share a full name, so both histories are printed.",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("history", err)
	}
	defer s.Close()

	library, fullName := args[0], args[1]
	hist, err := apitrail.NewQueryBuilder(s).History(library, rootOf(fullName), fullName)
	if err != nil {
		return outputError("history", err)
	}
	if len(hist) == 0 {
		return outputError("history", fmt.Errorf("no symbol %s in library %s", fullName, library))
	}

	out := make([]CLIHistory, len(hist))
	for i, h := range hist {
		out[i] = historyToCLI(h)
	}
	count := len(out)
	return outputResult(CLIResult{Command: "history", Results: out, TotalCount: &count})
}

var findCmd = &cobra.Command{
	Use:   "find <full_name>",
	Short: "Find a symbol by full name across all libraries",
	Args:  cobra.ExactArgs(1),
	RunE:  runFind,
}

func runFind(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("find", err)
	}
	defer s.Close()

	refs, err := apitrail.NewQueryBuilder(s).Find(args[0])
	if err != nil {
		return outputError("find", err)
	}
	out := make([]CLINode, len(refs))
	for i, r := range refs {
		out[i] = CLINode{ID: r.ID, Library: r.Library, Root: r.Root, Name: r.Name, FullName: r.FullName, Kind: r.Kind}
	}
	count := len(out)
	return outputResult(CLIResult{Command: "find", Results: out, TotalCount: &count})
}
