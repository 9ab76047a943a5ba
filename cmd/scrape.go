package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagevault/pagevault/internal/capture"
)

func newScrapeCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Capture a single page immediately.",
		Long: `scrape fetches the given URL right now and archives it. The identifier
prefix alternates between T and M across manual runs; the --category label
is stored on the record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			cat := capture.Category(category)
			if !cat.Valid() {
				return fmt.Errorf("unknown category %q", category)
			}

			rec, err := a.Orchestrator().ScrapeManual(cmd.Context(), args[0], cat)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %s as %s (identical to previous: %t)\n",
				rec.URL, rec.CaptureID, rec.IdenticalToPrevious)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", string(capture.CategoryManual), "category label stored on the record (primary, backup, manual)")
	return cmd
}
