package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/holon-run/supportchat/pkg/config"
	holonlog "github.com/holon-run/supportchat/pkg/log"
)

var (
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "supportchat",
	Short: "Support chat backed by a hosted assistant.",
	Long: `supportchat answers end-user support questions through a hosted
assistant service. It runs an HTTP/WebSocket server, or a single turn
from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		level, ok := holonlog.ParseLevel(cfg.Log.Level)
		if !ok {
			return fmt.Errorf("unknown log level %q", cfg.Log.Level)
		}
		if err := holonlog.Init(holonlog.Config{Level: level, Format: cfg.Log.Format, Output: os.Stderr}); err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Env files loaded before the config; existing variables win")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, progress, minimal, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}

func run() int {
	defer holonlog.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
