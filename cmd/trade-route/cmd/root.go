// Package cmd provides the CLI commands for trade-route.
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/iwvelando/trade-route/internal/client"
	"github.com/iwvelando/trade-route/internal/config"
	"github.com/iwvelando/trade-route/internal/logging"
	"github.com/iwvelando/trade-route/internal/session"
	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	logLevel string

	conf   *config.Configuration
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trade-route",
	Short: "Plan profitable cargo trade routes",
	Long: `trade-route collects cargo constraints, sends them to the route
optimizer service and renders the returned plan.

Examples:
  trade-route vocab --filter Stanton
  trade-route plan --settings scroute_settings.json
  trade-route plan --settings scroute_settings.json --format xlsx --out plan.xlsx
  trade-route serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		conf, err = config.LoadConfiguration(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration at %s: %w", cfgFile, err)
		}
		if err := conf.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err = logging.New(conf.Logging, logLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", constants.DefaultConfigFile, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(vocabCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// newCoordinator wires a planning session to the configured optimizer service.
func newCoordinator() *session.Coordinator {
	svc := client.New(conf.Service.BaseURL,
		client.WithHTTPClient(&http.Client{Timeout: conf.Service.Timeout}),
		client.WithLogger(logger),
		client.WithRetry(conf.Service.Retries, conf.Service.RetryInterval),
	)
	return session.New(svc, logger)
}
