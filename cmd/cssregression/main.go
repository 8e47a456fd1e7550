// CLAUDE:SUMMARY CLI entry point for cssregression: reference, test, history, serve and mcp subcommands.
// Command cssregression runs CSS visual regression tests over a component
// catalog.
//
// Usage:
//
//	cssregression reference [query]          # capture baseline screenshots
//	cssregression test [query] --fail        # capture, compare, exit 2 on failures
//	cssregression history                    # list recorded runs
//	cssregression serve --addr :8089         # HTTP API over run history
//	cssregression mcp                        # MCP server on stdio
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/cssregression/cssregression"
)

const appVersion = "0.1.0"

// errFailures makes the process exit with code 2 without an error log.
var errFailures = errors.New("visual regression failures")

var (
	configPath string
	logLevel   string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "cssregression",
	Short:         "CSS visual regression testing for component catalogs",
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to cssregression.yaml (default: ./cssregression.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading CSSREGRESSION_* variables")

	rootCmd.AddCommand(referenceCmd, testCmd, historyCmd, serveCmd, mcpCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errFailures):
		stop()
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "cssregression:", err)
		stop()
		os.Exit(1)
	}
}

// setup loads the environment file and configuration and builds the logger.
func setup() (*cssregression.Config, *slog.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func loadConfig() (*cssregression.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat("cssregression.yaml"); err != nil {
			return cssregression.DefaultConfig(), nil
		}
		path = "cssregression.yaml"
	}
	cfg, err := cssregression.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
