package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/distflow/localizer/agent"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "localizer-agent",
	Short:        "node-local resource localization agent",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to the agent config file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := agent.NewConfig()
	if configFile != "" {
		if err := cfg.FromFile(configFile); err != nil {
			return err
		}
	}
	if err := cfg.Adjust(); err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	log.L().Info("localizer agent starting", zap.String("config", cfg.String()))

	a, err := agent.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.Run(ctx)
}

func initLogger(cfg *agent.Config) error {
	logger, props, err := log.InitLogger(&log.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   log.FileLogConfig{Filename: cfg.LogFile},
	})
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
