package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/screener-back/internal/app"
	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/logger"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener-back",
	Short: "Crypto market screener backend",
	Long: `A crypto market screener backend.

Features:
• Polls exchange tickers for the futures and spot segments
• Derives multi-horizon change, volume, volatility, tick and volume delta metrics
• Stores insert-only snapshots in MySQL
• Evaluates user alert rules and notifies through Telegram
• Publishes snapshots and alerts to NATS and mirrors series into InfluxDB`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads .env and the environment and builds the logger
func loadConfig() (*config.Config, *logrus.Logger, error) {
	envFile, err := config.LoadDotEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if envFile != "" {
		log.WithField("file", envFile).Debug("Loaded environment file")
	}
	return cfg, log, nil
}

// startApp loads configuration and connects the application
func startApp(ctx context.Context) (*app.App, *config.Config, *logrus.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	application := app.New(cfg, log)
	if err := application.Initialize(ctx); err != nil {
		return nil, nil, nil, err
	}
	return application, cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
