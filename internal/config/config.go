// Package config loads skilltrace settings from a YAML file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/mastery"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// EnvPrefix prefixes every environment variable, e.g. SKILLTRACE_DB_DSN.
const EnvPrefix = "SKILLTRACE"

// Config is the full application configuration.
type Config struct {
	DB        DBConfig               `mapstructure:"db"`
	BKT       BKTConfig              `mapstructure:"bkt"`
	Signals   bkt.SignalConfig       `mapstructure:"signals"`
	Skills    map[string]SkillConfig `mapstructure:"skills"`
	Snapshots SnapshotConfig         `mapstructure:"snapshots"`
	Log       LogConfig              `mapstructure:"log"`
}

// DBConfig selects the storage backend.
type DBConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is a file path or URI for sqlite and a connection string for
	// postgres. Empty means the default sqlite location.
	DSN string `mapstructure:"dsn"`
}

// BKTConfig is the default calibration for skills without their own.
type BKTConfig struct {
	Prior   float64 `mapstructure:"prior"`
	Transit float64 `mapstructure:"p_transit"`
	Slip    float64 `mapstructure:"p_slip"`
	Guess   float64 `mapstructure:"p_guess"`
}

// Params returns the default calibration as estimator parameters.
func (b BKTConfig) Params() bkt.Params {
	return bkt.Params{Transit: b.Transit, Slip: b.Slip, Guess: b.Guess}
}

// SkillConfig overrides part of the default calibration for one skill.
// Unset fields inherit from BKTConfig. Skill keys are case-insensitive.
type SkillConfig struct {
	Prior   *float64 `mapstructure:"prior"`
	Transit *float64 `mapstructure:"p_transit"`
	Slip    *float64 `mapstructure:"p_slip"`
	Guess   *float64 `mapstructure:"p_guess"`
}

// SnapshotConfig controls snapshot retention.
type SnapshotConfig struct {
	// Keep is how many snapshots to retain per user; 0 keeps all.
	Keep int `mapstructure:"keep"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	sig := bkt.DefaultSignalConfig()

	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", "")
	v.SetDefault("bkt.prior", bkt.DefaultPrior)
	v.SetDefault("bkt.p_transit", bkt.DefaultParams.Transit)
	v.SetDefault("bkt.p_slip", bkt.DefaultParams.Slip)
	v.SetDefault("bkt.p_guess", bkt.DefaultParams.Guess)
	v.SetDefault("signals.fast_seconds", sig.FastSeconds)
	v.SetDefault("signals.slow_seconds", sig.SlowSeconds)
	v.SetDefault("signals.max_nudge", sig.MaxNudge)
	v.SetDefault("snapshots.keep", 0)
	v.SetDefault("log.level", "warn")
}

// Load reads configuration. When path is empty skilltrace.yaml is looked up
// in the working directory and then in $XDG_CONFIG_HOME/skilltrace; a
// missing file falls back to the environment and defaults. A .env file in
// the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skilltrace")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := configHome(); dir != "" {
			v.AddConfigPath(filepath.Join(dir, "skilltrace"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// Validate checks the driver and every calibration.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown db.driver %q", c.DB.Driver)
	}
	if c.DB.Driver == DriverPostgres && c.DB.DSN == "" {
		return errors.New("config: db.dsn is required for postgres")
	}

	if err := c.BKT.Params().Validate(); err != nil {
		return fmt.Errorf("config bkt: %w", err)
	}
	if err := bkt.ValidatePrior(c.BKT.Prior); err != nil {
		return fmt.Errorf("config bkt: %w", err)
	}
	if err := c.Signals.Validate(); err != nil {
		return fmt.Errorf("config signals: %w", err)
	}
	if c.Snapshots.Keep < 0 {
		return fmt.Errorf("config: snapshots.keep must be >= 0, got %d", c.Snapshots.Keep)
	}
	for id, sc := range c.Skills {
		o := c.override(sc)
		if err := o.Params.Validate(); err != nil {
			return fmt.Errorf("config skills.%s: %w", id, err)
		}
		if err := bkt.ValidatePrior(o.Prior); err != nil {
			return fmt.Errorf("config skills.%s: %w", id, err)
		}
	}
	return nil
}

func (c *Config) override(sc SkillConfig) mastery.SkillOverride {
	o := mastery.SkillOverride{Params: c.BKT.Params(), Prior: c.BKT.Prior}
	if sc.Prior != nil {
		o.Prior = *sc.Prior
	}
	if sc.Transit != nil {
		o.Params.Transit = *sc.Transit
	}
	if sc.Slip != nil {
		o.Params.Slip = *sc.Slip
	}
	if sc.Guess != nil {
		o.Params.Guess = *sc.Guess
	}
	return o
}

// MasteryOptions builds service options from the configuration.
func (c *Config) MasteryOptions(logger *slog.Logger) mastery.Options {
	opts := mastery.DefaultOptions()
	opts.Params = c.BKT.Params()
	opts.Prior = c.BKT.Prior
	opts.Signals = c.Signals
	opts.SnapshotKeep = c.Snapshots.Keep
	opts.Logger = logger
	if len(c.Skills) > 0 {
		opts.Overrides = make(map[string]mastery.SkillOverride, len(c.Skills))
		for id, sc := range c.Skills {
			opts.Overrides[strings.ToLower(id)] = c.override(sc)
		}
	}
	return opts
}

// LogLevel parses log.level, defaulting to warn.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}
