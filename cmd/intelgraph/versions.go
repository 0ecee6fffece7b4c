package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvus-sec/intelgraph/internal/types"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List ingested corpus versions",
	Long: `List every ingested corpus version with its entity and relationship
counts, newest first. The active version is marked with an asterisk.`,
	Args: cobra.NoArgs,
	RunE: runVersions,
}

func runVersions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	list, err := e.versions.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No versions ingested")
		return nil
	}

	activeVersion := ""
	if active, err := e.versions.GetActive(ctx); err == nil {
		activeVersion = active.Version
	} else if types.CodeOf(err) != types.VERSION_NOT_FOUND {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tINGESTED\tENTITIES\tRELATIONSHIPS\tSIZE")
	for _, m := range list {
		marker := ""
		if m.Version == activeVersion {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%d\t%d\t%d\n",
			m.Version, marker,
			m.IngestedAt.Format(time.RFC3339),
			m.EntityCount, m.RelationshipCount, m.SizeBytes)
	}
	return w.Flush()
}
