package main

import (
	"os"

	"merchantama/cmd/merchantama/ask"
	"merchantama/cmd/merchantama/chat"
	"merchantama/cmd/merchantama/serve"
	"merchantama/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	logger.Init()
	rootCmd := &cobra.Command{
		Use:          "merchantama",
		Short:        "Merchant AmA is an agent that answers merchant questions",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to config.toml")

	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(chat.Cmd)
	rootCmd.AddCommand(ask.Cmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
