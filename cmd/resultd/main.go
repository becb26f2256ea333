// Resultd is the results ingestion daemon. It watches producer-owned
// filesystem locations, enriches whatever lands there, and files the
// results into a category and date partitioned store with search,
// statistics, and retention cleanup on top.
//
// Usage:
//
//	# Start the daemon with defaults
//	resultd serve
//
//	# Run with a config file
//	resultd serve --config /etc/resultd/config.yaml
//
//	# One-shot analytics report over the current store
//	resultd report
//
// Configuration is loaded from the YAML file and overridden by
// environment variables (STORAGE_ROOT, SERVER_PORT, and so on).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/config"
	"github.com/fyrsmithlabs/resultd/internal/httpapi"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/pipeline"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "resultd",
	Short: "Results ingestion daemon",
	Long: `resultd watches configured source directories, enriches incoming
results with fingerprints, tags and quality scores, and stores them in a
category and date partitioned layout with search and retention cleanup.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion daemon",
	Long: `Start the full pipeline: source watchers, the ingestion processor,
the analytics and cleanup scheduler, and the HTTP API.

Examples:
  # Start with defaults
  resultd serve

  # Start with a config file
  resultd serve --config /etc/resultd/config.yaml`,
	RunE: runServe,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run a one-shot analytics pass and print the report",
	RunE:  runReport,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("resultd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %w", err)
		}
		logCfg.Level = level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}

	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(ctx, "received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	p, err := pipeline.New(*cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	srv, err := httpapi.NewServer(p, logger, httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		_ = p.Stop(context.Background())
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown incomplete", zap.Error(err))
	}
	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "pipeline shutdown incomplete", zap.Error(err))
	}

	logger.Info(context.Background(), "shutdown complete")
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.New(*cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	report := p.RunReport(cmd.Context())

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
