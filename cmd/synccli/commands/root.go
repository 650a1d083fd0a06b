package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile *string

var rootCmd = &cobra.Command{
	Use:   "synccli",
	Short: "synccli drives the portal sync pipeline and inspects its ledger.",
}

func init() {
	configFile = rootCmd.PersistentFlags().String("config", "config.json5", "Path to the config file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
