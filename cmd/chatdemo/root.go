package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chat-playback-engine/pkg/config"
	"chat-playback-engine/pkg/scenarios"
)

var (
	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "chatdemo",
	Short:         "Scripted chat conversation playback engine",
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cfg = config.Load()
		if file, _ := cmd.Flags().GetString("scenarios"); file != "" {
			cfg.ScenariosFile = file
		}

		logger = logrus.New()
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
		logger.SetFormatter(&logrus.JSONFormatter{})
	},
}

func init() {
	rootCmd.PersistentFlags().String("scenarios", "", "YAML scenario catalog (defaults to SCENARIOS_FILE or the built-in catalog)")
}

func loadCatalog() (*scenarios.Catalog, error) {
	if cfg.ScenariosFile != "" {
		return scenarios.Load(cfg.ScenariosFile, logger)
	}
	return scenarios.Default(logger)
}
