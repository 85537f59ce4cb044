// Package commands implements the clio command line.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/fortuna/clio/internal/config"
	"github.com/fortuna/clio/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	serviceName    = "clio"
	serviceVersion = "1.0.0"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "clio",
	Short:         "clio scrapes basketball-reference player pages into normalized records.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.File)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = logger.With(zap.String("service", serviceName))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// ExecuteContext runs the root command and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
