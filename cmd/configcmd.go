package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pagevault/pagevault/internal/config"
	"github.com/pagevault/pagevault/internal/logging"
	pkgconfig "github.com/pagevault/pagevault/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and update configuration.",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetTimesCmd())
	cmd.AddCommand(newConfigSetFeedbackCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration.",
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := loadViper()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(maskedSettings(v)); err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			return nil
		},
	}
}

var keywordPassword = regexp.MustCompile(`(password=)\S+`)

// maskDSN hides the credential portion of a connection string so it can
// be printed.
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
	}
	return keywordPassword.ReplaceAllString(dsn, "${1}xxxxx")
}

func maskedSettings(v *viper.Viper) map[string]any {
	settings := v.AllSettings()
	remote, ok := settings["remote"].(map[string]any)
	if !ok {
		return settings
	}
	if dsn, ok := remote["dsn"].(string); ok && dsn != "" {
		remote["dsn"] = maskDSN(dsn)
	}
	return settings
}

func newConfigSetTimesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-times <primary|backup> <HH:MM[,HH:MM...]>",
		Short: "Replace the schedule for a category.",
		Long: `set-times overwrites the daily firing times for the primary or backup
category and writes them back to the config file. At most nine times per
category are supported. An empty string clears the category's schedule.`,
		Annotations: map[string]string{skipAppAnnotation: "true"},
		Args:        cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := args[0]
			// An empty argument clears the schedule for the category.
			var times []string
			if args[1] != "" {
				times = strings.Split(args[1], ",")
				if len(times) > 9 {
					return fmt.Errorf("at most 9 times per category, got %d", len(times))
				}
				for i, s := range times {
					times[i] = strings.TrimSpace(s)
					if _, err := config.ParseTimeOfDay(times[i]); err != nil {
						return err
					}
				}
			}
			v, err := loadViper()
			if err != nil {
				return err
			}
			if err := pkgconfig.SetTimes(v, category, times); err != nil {
				return err
			}
			if len(times) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "schedule.%s cleared\n", category)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "schedule.%s set to %s\n", category, strings.Join(times, ","))
			}
			return nil
		},
	}
}

func newConfigSetFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "set-feedback <regular|enhanced|debug>",
		Short:       "Set the logging verbosity.",
		Annotations: map[string]string{skipAppAnnotation: "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbosity, err := logging.ParseVerbosity(args[0])
			if err != nil {
				return err
			}
			v, err := loadViper()
			if err != nil {
				return err
			}
			if err := pkgconfig.SetFeedback(v, string(verbosity)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verbosity set to %s\n", verbosity)
			return nil
		},
	}
}
