package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/abhisek/skilltrace/internal/config"
	"github.com/abhisek/skilltrace/internal/mastery"
	"github.com/abhisek/skilltrace/internal/store"
	"github.com/abhisek/skilltrace/internal/store/pgstore"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skilltrace",
	Short: "Track skill mastery with Bayesian Knowledge Tracing",
	Long:  "skilltrace records learners' answers and keeps a per-skill estimate of how likely each skill is mastered.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database DSN or SQLite file path (overrides SKILLTRACE_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./skilltrace.yaml)")
	rootCmd.PersistentFlags().String("driver", "", "Storage driver: sqlite or postgres")

	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(improvementsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the --driver flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if d, _ := cmd.Flags().GetString("driver"); d != "" {
		cfg.DB.Driver = d
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DB.DSN = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

// resolveDBPath returns the SQLite database path using the configured DSN
// (from --db or config) first, then SKILLTRACE_DB env var, then the default
// XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if p := cfg.DB.DSN; p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

// openBackend opens the configured storage backend.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	if cfg.DB.Driver == config.DriverPostgres {
		st, err := pgstore.Open(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// openService loads config, opens the store and builds the mastery service.
// The caller must close the returned backend.
func openService(cmd *cobra.Command) (*mastery.Service, store.Backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	backend, err := openBackend(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return mastery.NewService(backend, cfg.MasteryOptions(newLogger(cfg))), backend, nil
}
