package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the local archive schema.",
		Long: `initdb creates the SQLite tables if they do not exist and checks that
the remote mirror, when configured, is reachable. A missing or unreachable
mirror is reported as a warning. Running initdb against an existing archive
is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.LocalStore().Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "local archive ready at %s\n", a.Config().Local.Path)

			// The mirror is best-effort, so its absence never fails initdb.
			remote := a.RemoteStore()
			if remote == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "remote mirror not configured; skipping")
				return nil
			}
			if err := remote.Ping(cmd.Context()); err != nil {
				a.Logger().Warn("remote mirror unreachable", zap.Error(err))
				fmt.Fprintf(cmd.OutOrStdout(), "warning: remote mirror unreachable: %v\n", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "remote mirror reachable")
			return nil
		},
	}
}
