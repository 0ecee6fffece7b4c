package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corvus-sec/intelgraph/internal/search"
)

var (
	searchLimit   int
	searchFilter  string
	searchVersion string
	searchOutput  string
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Hybrid search over the active corpus version",
	Long: `Search entities by blending semantic similarity with lexical matching.

Results carry the combined score plus the per-path components. An
optional CEL filter restricts results by entity fields and metadata.

Examples:
  # Basic search
  intelgraph search "credential dumping"

  # Restrict to one entity type
  intelgraph search "phishing" --filter 'type == "attack-pattern"'

  # Metadata filter
  intelgraph search "persistence" --filter '"windows" in metadata.x_mitre_platforms'

  # JSON output for scripting
  intelgraph search "lateral movement" --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", search.DefaultLimit, "maximum number of results")
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "CEL filter expression")
	searchCmd.Flags().StringVar(&searchVersion, "version", "", "pin to a corpus version instead of the active one")
	searchCmd.Flags().StringVar(&searchOutput, "output", "table", "output format: table or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	resp, err := e.searcher.Search(ctx, args[0], search.Options{
		Limit:   searchLimit,
		Filter:  searchFilter,
		Version: searchVersion,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchOutput == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		fmt.Fprintln(out, "Warning: embedder unavailable, lexical results only")
	}
	if len(resp.Results) == 0 {
		fmt.Fprintf(out, "No results in version %s\n", resp.Version)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tTYPE\tID\tNAME")
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", r.Score, r.Type, r.ID, r.Name)
	}
	return w.Flush()
}
