package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagevault/pagevault/internal/diag"
)

func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check remote connectivity and target reachability.",
		Long: `diagnose pings the remote mirror, issues a HEAD request to every
configured target, and performs a trial fetch of each. The command exits
non-zero when any check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			runner := diag.New(a.RemoteStore(), a.Fetcher(), a.Config().Targets, a.Logger())
			report := runner.Run(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			if !report.Healthy() {
				return fmt.Errorf("one or more diagnostic checks failed")
			}
			return nil
		},
	}
}
