package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatLibrariesText formats aggregation results, one row per tree.
func formatLibrariesText(w io.Writer, libs []CLILibraryResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LIBRARY\tROOT\tVERSIONS\tNODES\tSKIPPED\tERRORS")
	for _, lib := range libs {
		if lib.Unchanged {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\tunchanged\n", lib.Library)
			continue
		}
		for _, t := range lib.Trees {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%d\n",
				lib.Library, t.Root, len(t.Versions), t.Nodes,
				strings.Join(t.SkippedVersions, ","), len(t.SymbolErrors))
		}
	}
	tw.Flush()
}

// formatExtractedText formats written version tree files.
func formatExtractedText(w io.Writer, files []CLIExtracted) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tFILE")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\n", f.Package, f.File)
	}
	tw.Flush()
}

// formatTreesText formats CLITree results as aligned columns.
func formatTreesText(w io.Writer, trees []CLITree) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLIBRARY\tROOT\tVERSIONS\tNODES\tAGGREGATED")
	for _, t := range trees {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.Library, t.Root, versionSpan(t.Versions), t.NodeCount, t.AggregatedAt)
	}
	tw.Flush()
}

// formatNodesText formats CLINode results as aligned columns.
func formatNodesText(w io.Writer, nodes []CLINode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFULL NAME\tKIND\tLIBRARY\tVERSIONS")
	for _, n := range nodes {
		span := "-"
		if n.VersionCount > 0 {
			span = fmt.Sprintf("%s..%s (%d)", n.FirstVersion, n.LastVersion, n.VersionCount)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", n.ID, n.FullName, n.Kind, n.Library, span)
	}
	tw.Flush()
}

// formatHistoryText formats each history as a header plus one row per version.
func formatHistoryText(w io.Writer, hist []CLIHistory) {
	for i, h := range hist {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%s)\n", h.FullName, h.Kind)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  VERSION\tSIGNATURE\tDIFF\tLINKS")
		for _, v := range h.Versions {
			diff := "-"
			if v.DiffSize != nil && *v.DiffSize >= 0 {
				diff = fmt.Sprintf("%d", *v.DiffSize)
			}
			links := strings.Join(v.Aliases, ", ")
			if v.Target != "" {
				links = "-> " + v.Target
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", v.Version, formatSignature(v), diff, links)
		}
		tw.Flush()
	}
}

// formatSignature renders params with their trailing defaults, e.g.
// "(a, b, c=1)".
func formatSignature(v CLIVersionEntry) string {
	if v.SignatureHash == "" {
		return "-"
	}
	parts := make([]string, len(v.Params))
	offset := len(v.Params) - len(v.Defaults)
	for i, p := range v.Params {
		if i >= offset && offset >= 0 {
			parts[i] = p + "=" + v.Defaults[i-offset]
			continue
		}
		parts[i] = p
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// formatLibrarySummaryText formats CLILibrarySummary as readable text.
func formatLibrarySummaryText(w io.Writer, summary CLILibrarySummary) {
	fmt.Fprintf(w, "Library: %s\n", summary.Library)
	fmt.Fprintf(w, "Run: %s\n", summary.RunID)
	for _, t := range summary.Trees {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Package: %s\n", t.Root)
		fmt.Fprintf(w, "Versions: %s\n", strings.Join(t.Versions, ", "))
		fmt.Fprintf(w, "Nodes: %d\n", t.NodeCount)
		fmt.Fprintf(w, "Alias edges: %d\n", t.AliasEdges)

		kinds := make([]string, 0, len(t.KindCounts))
		for kind := range t.KindCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, t.KindCounts[kind])
		}
	}
}

// formatDiffText formats a CLIDiff; the diff command writes the raw patch
// instead, this covers callers that hand it to outputResult.
func formatDiffText(w io.Writer, d CLIDiff) {
	fmt.Fprintf(w, "%s (%s) %s..%s: %d lines changed\n", d.FullName, d.Kind, d.From, d.To, d.Lines)
	fmt.Fprint(w, d.Patch)
}

func versionSpan(versions []string) string {
	switch len(versions) {
	case 0:
		return "-"
	case 1:
		return versions[0]
	default:
		return fmt.Sprintf("%s..%s (%d)", versions[0], versions[len(versions)-1], len(versions))
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLILibraryResult:
		formatLibrariesText(w, v)
	case []CLIExtracted:
		formatExtractedText(w, v)
	case []CLITree:
		formatTreesText(w, v)
	case []CLINode:
		formatNodesText(w, v)
	case []CLIHistory:
		formatHistoryText(w, v)
	case CLILibrarySummary:
		formatLibrarySummaryText(w, v)
	case CLIDiff:
		formatDiffText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLILibraryResult:
		return len(r)
	case []CLIExtracted:
		return len(r)
	case []CLITree:
		return len(r)
	case []CLINode:
		return len(r)
	case []CLIHistory:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
