package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture scheduler until interrupted.",
		Long: `run starts the minute-granularity scheduler and, when enabled, the ops
HTTP server. With --duration the scheduler stops after the given time;
an event in flight at the deadline completes before shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			opsErr := make(chan error, 1)
			if srv := a.OpsServer(); srv != nil {
				go func() {
					opsErr <- srv.Run(ctx)
				}()
			}

			err = a.Orchestrator().Run(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				err = nil
			}

			if srv := a.OpsServer(); srv != nil {
				if serr := <-opsErr; serr != nil {
					a.Logger().Error("ops server failed", zap.Error(serr))
					if err == nil {
						err = serr
					}
				}
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs forever)")
	return cmd
}
