package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mind-engage/mindengage-clinical/internal/config"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	cmd := &cobra.Command{
		Use:   "clinicald",
		Short: "Clinical reasoning case server",
		Long: `clinicald serves simulated clinical cases: learners examine a virtual
patient, order tests, pick a diagnosis and a treatment, and get scored
feedback with escalating hints at every stage.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("db-driver", "", "database driver (sqlite|postgres)")
	cmd.PersistentFlags().String("db-dsn", "", "database DSN")
	_ = opts.v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = opts.v.BindPFlag("db_driver", cmd.PersistentFlags().Lookup("db-driver"))
	_ = opts.v.BindPFlag("db_dsn", cmd.PersistentFlags().Lookup("db-dsn"))

	cmd.AddCommand(
		newServeCmd(opts),
		newSeedCmd(opts),
		newResetSessionCmd(opts),
		newUserAddCmd(opts),
	)
	return cmd
}

// load resolves the configuration and applies the log level.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
