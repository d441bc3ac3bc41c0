package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/freightmatch/app"
	"github.com/kilianp07/freightmatch/config"
	coremon "github.com/kilianp07/freightmatch/core/monitoring"
	"github.com/kilianp07/freightmatch/infra/logger"
	"github.com/kilianp07/freightmatch/infra/monitoring"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "freightmatch",
	Short:        "Freight price prediction and driver matching service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the quote API until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// setup loads the configuration and initializes logging and error
// monitoring. The returned function flushes and closes them.
func setup() (*config.Config, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closeLogs, err := logger.Setup(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		logger.New("main").Warnf("sentry disabled: %v", err)
	} else {
		coremon.Init(mon)
	}
	return cfg, func() {
		coremon.Flush(2 * time.Second)
		_ = closeLogs()
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, teardown, err := setup()
	if err != nil {
		return err
	}
	defer teardown()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
