// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pagevault/pagevault/internal/ident"
	"github.com/pagevault/pagevault/internal/logging"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Targets   []string        `mapstructure:"targets"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Local     LocalConfig     `mapstructure:"local"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Ident     IdentConfig     `mapstructure:"ident"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Verbosity string          `mapstructure:"verbosity"`
}

// ScheduleConfig lists the daily firing times per category as HH:MM strings.
type ScheduleConfig struct {
	Primary []string `mapstructure:"primary"`
	Backup  []string `mapstructure:"backup"`
}

// LocalConfig locates the authoritative SQLite database.
type LocalConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig controls the optional Postgres mirror.
type RemoteConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime string `mapstructure:"max_conn_lifetime"`
}

// FetchConfig governs page retrieval.
type FetchConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	RenderEnabled     bool   `mapstructure:"render_enabled"`
	RenderMaxParallel int    `mapstructure:"render_max_parallel"`
	RenderNavTimeout  int    `mapstructure:"render_nav_timeout_seconds"`
}

// IdentConfig controls identifier generation.
type IdentConfig struct {
	OverflowPolicy string `mapstructure:"overflow_policy"`
}

// OpsConfig toggles the operational HTTP surface.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SchedulerConfig tunes the tick loop.
type SchedulerConfig struct {
	TickSeconds int `mapstructure:"tick_seconds"`
}

// TimeOfDay is a wall-clock firing time with minute granularity.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Load builds a Config from the given Viper instance, which must already
// have defaults and any config file applied.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("targets must not be empty")
	}
	for _, t := range c.Targets {
		if !strings.HasPrefix(t, "http://") && !strings.HasPrefix(t, "https://") {
			return fmt.Errorf("target %q must be an http(s) url", t)
		}
	}
	if c.Local.Path == "" {
		return fmt.Errorf("local.path must be set")
	}
	if err := validateTimes("schedule.primary", c.Schedule.Primary); err != nil {
		return err
	}
	if err := validateTimes("schedule.backup", c.Schedule.Backup); err != nil {
		return err
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.RenderEnabled && c.Fetch.RenderMaxParallel <= 0 {
		return fmt.Errorf("fetch.render_max_parallel must be > 0 when rendering is enabled")
	}
	if p := ident.OverflowPolicy(c.Ident.OverflowPolicy); c.Ident.OverflowPolicy != "" && !p.Valid() {
		return fmt.Errorf("ident.overflow_policy must be %q or %q", ident.OverflowError, ident.OverflowSaturate)
	}
	if c.Ops.Enabled && c.Ops.Addr == "" {
		return fmt.Errorf("ops.addr must be set when ops is enabled")
	}
	if _, err := logging.ParseVerbosity(c.Verbosity); err != nil {
		return err
	}
	if c.Remote.MaxConnLifetime != "" {
		if _, err := time.ParseDuration(c.Remote.MaxConnLifetime); err != nil {
			return fmt.Errorf("remote.max_conn_lifetime: %w", err)
		}
	}
	return nil
}

// Each category's identifier run number has a single digit of headroom.
func validateTimes(key string, times []string) error {
	if len(times) > 9 {
		return fmt.Errorf("%s supports at most 9 entries, got %d", key, len(times))
	}
	seen := make(map[TimeOfDay]struct{}, len(times))
	for _, s := range times {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%s contains duplicate time %s", key, s)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RemoteConnLifetime parses the configured pool lifetime; zero when unset.
func (c Config) RemoteConnLifetime() time.Duration {
	if c.Remote.MaxConnLifetime == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Remote.MaxConnLifetime)
	if err != nil {
		return 0
	}
	return d
}
