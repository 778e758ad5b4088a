package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}

	rootCmd := &cobra.Command{
		Use:           "servicefee-admin",
		Short:         "Operator tooling for job-posting service-fee payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(qrCmd())
	rootCmd.AddCommand(signWebhookCmd())

	return rootCmd
}
