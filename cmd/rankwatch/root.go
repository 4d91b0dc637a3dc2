package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/rankcap/rankwatch"
)

var (
	configPath string
	logLevel   string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "rankwatch",
	Short:         "rankwatch captures ranking pages on a schedule and stores every capture.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnv(envFile); err != nil {
			return err
		}
		setupLogging(logLevel)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default $"+rankwatch.EnvConfig+" or rankwatch.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "debug | info | warn | error")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the config")
}

func execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rankwatch:", err)
		return 1
	}
	return 0
}

// loadEnv loads path into the environment without overriding set variables.
// A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// setupLogging installs a JSON slog handler on stderr; stdout carries command output.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if v := os.Getenv(rankwatch.EnvConfig); v != "" {
		return v
	}
	return "rankwatch.yaml"
}

func openService() (*rankwatch.Service, error) {
	cfg, err := rankwatch.LoadConfigFile(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return rankwatch.New(cfg, rankwatch.WithLogger(slog.Default()))
}
