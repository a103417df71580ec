package main

import (
	"os"

	"github.com/spf13/cobra"

	"mini-rpa/pkg/config"
)

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "rpactl",
	Short: "Operator tool for mini-rpa",
	Long: `rpactl generates shared keys, sends dispatch requests to an orchestrator
and tails the dispatch event stream.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (yaml, toml or json)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyLogLevel()
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
