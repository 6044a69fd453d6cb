package cmd

import (
	"fmt"
	"os"

	"fileno-manager/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "fileno",
	Short: "Land registry file number tools",
	Long: `fileno generates registry file numbers, reconciles allotment exports
against them, and maintains their batch numbering.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var metricsTextfile string

func init() {
	RootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write run metrics to this file (overrides metrics.textfile)")
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// We use "debug" level configuration to get ISO8601 timestamps (DevConfig) instead of Epoch (ProdConfig)
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Absolute fallback if logger creation fails (rare)
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
