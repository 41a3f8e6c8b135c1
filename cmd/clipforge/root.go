package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "clipforge",
	Short:         "clipforge renders captioned vertical videos",
	Long:          `clipforge builds the video project, resolves a composition against your inputs and renders it to an mp4, without running the HTTP service.`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL")
}

// loadConfig reads the environment the same way the services do. Flags
// override what the environment says.
func loadConfig(cmd *cobra.Command) (config.Config, *logger.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg := config.Load()
	// Logs go to stderr as text so stdout stays clean for results.
	cfg.LogFormat = "text"
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	} else if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	lc := cfg.Logger("clipforge-cli")
	lc.Output = os.Stderr
	return cfg, logger.New(lc), nil
}
