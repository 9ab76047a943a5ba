// Package config initializes the Viper instance backing the service
// configuration: defaults, search paths, environment variables, and the
// write-back helpers used by the config subcommands.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const defaultUA = "PageVault/1.0 (+https://github.com/pagevault/pagevault)"

// Init builds a Viper instance with defaults, config file discovery, and
// PAGEVAULT_* environment overrides applied. path overrides discovery when
// non-empty. The config file is optional.
func Init(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pagevault/")
	v.AddConfigPath("$HOME/.pagevault")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("targets", []string{})
	v.SetDefault("schedule.primary", []string{"08:00", "17:00"})
	v.SetDefault("schedule.backup", []string{"22:00", "05:00"})
	v.SetDefault("local.path", "pagevault.db")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.table", "scraped_pages")
	v.SetDefault("remote.max_conns", 4)
	v.SetDefault("remote.min_conns", 0)
	v.SetDefault("remote.max_conn_lifetime", "30m")
	v.SetDefault("fetch.user_agent", defaultUA)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.render_enabled", false)
	v.SetDefault("fetch.render_max_parallel", 1)
	v.SetDefault("fetch.render_nav_timeout_seconds", 45)
	v.SetDefault("ident.overflow_policy", "error")
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.addr", ":9090")
	v.SetDefault("scheduler.tick_seconds", 1)
	v.SetDefault("verbosity", "regular")
}

// SetTimes writes new schedule times for a category back to the config
// file. category must be "primary" or "backup".
func SetTimes(v *viper.Viper, category string, times []string) error {
	if category != "primary" && category != "backup" {
		return fmt.Errorf("unknown schedule category %q", category)
	}
	v.Set("schedule."+category, times)
	return writeBack(v)
}

// SetFeedback writes the verbosity level back to the config file.
func SetFeedback(v *viper.Viper, verbosity string) error {
	v.Set("verbosity", verbosity)
	return writeBack(v)
}

func writeBack(v *viper.Viper) error {
	if v.ConfigFileUsed() != "" {
		if err := v.WriteConfig(); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		return nil
	}
	if err := v.SafeWriteConfigAs("config.yaml"); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
