package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var downloadOut string

var downloadCmd = &cobra.Command{
	Use:   "download [VERSION]",
	Short: "Download the raw bundle of a corpus version",
	Long: `Write the original bundle document of an ingested version to a file or
stdout. Without a version argument the active version is downloaded.

Examples:
  # Active version to stdout
  intelgraph download

  # Specific version to a file
  intelgraph download 16.1 --out enterprise-attack-16.1.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadOut, "out", "", "output file (stdout when omitted)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	ver := ""
	if len(args) == 1 {
		ver = args[0]
	} else {
		active, err := e.versions.GetActive(ctx)
		if err != nil {
			return err
		}
		ver = active.Version
	}

	data, err := e.versions.Bundle(ctx, ver)
	if err != nil {
		return err
	}

	if downloadOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(downloadOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote version %s bundle to %s (%d bytes)\n", ver, downloadOut, len(data))
	return nil
}
