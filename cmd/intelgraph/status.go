package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corvus-sec/intelgraph/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report component health and the active version",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	out := cmd.OutOrStdout()
	if active, err := e.versions.GetActive(ctx); err == nil {
		fmt.Fprintf(out, "Active version: %s (%d entities, %d relationships)\n",
			active.Version, active.EntityCount, active.RelationshipCount)
	} else if types.CodeOf(err) == types.VERSION_NOT_FOUND {
		fmt.Fprintln(out, "Active version: none")
	} else {
		return err
	}

	checks := []struct {
		name   string
		status types.HealthStatus
	}{
		{"entity-store", e.entities.Health(ctx)},
		{"graph-store", e.graph.Health(ctx)},
		{"version-store", e.versions.Health(ctx)},
		{"embedder", e.embedder.Health(ctx)},
		{"llm", e.llm.Health(ctx)},
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATE\tDETAIL")
	for _, c := range checks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.name, c.status.State, c.status.Message)
	}
	return w.Flush()
}
