// Package cmd wires the pagevault CLI.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/app"
	"github.com/pagevault/pagevault/internal/capture"
	"github.com/pagevault/pagevault/internal/config"
	"github.com/pagevault/pagevault/internal/ops"
	"github.com/pagevault/pagevault/internal/scheduler"
	"github.com/pagevault/pagevault/internal/storage/sqlite"
	pkgconfig "github.com/pagevault/pagevault/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Commands that operate on configuration alone set this annotation so the
// root hook skips service construction.
const skipAppAnnotation = "skip-app"

// App defines the application surface commands use. It is an interface so
// tests can inject a mock.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	LocalStore() *sqlite.Store
	RemoteStore() capture.RemoteStore
	Fetcher() capture.Fetcher
	Orchestrator() *scheduler.Orchestrator
	OpsServer() *ops.Server
}

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

func appFromContext(ctx context.Context) (App, error) {
	a, ok := ctx.Value(appKey).(App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

func loadViper() (*viper.Viper, error) {
	return pkgconfig.Init(cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagevault",
		Short: "Scheduled web page archiver with dual-sink persistence.",
		Long: `pagevault periodically captures raw HTML from a fixed set of pages,
assigns each capture a structured identifier, and archives it in a local
SQLite database with a best-effort Postgres mirror.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipAppAnnotation] == "true" {
				return nil
			}
			v, err := loadViper()
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/pagevault, $HOME/.pagevault)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newInitDBCmd())
	cmd.AddCommand(newDiagnoseCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
