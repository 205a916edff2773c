package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	addr       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envAddr := os.Getenv("ADDR")
	if envAddr == "" {
		envAddr = ":12345"
	}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "flashquiz-server",
		Short: "Multi-client flashcard quiz broadcaster",
	}

	cmd.PersistentFlags().StringVar(&addr, "addr", envAddr, "TCP address to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &addr))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
