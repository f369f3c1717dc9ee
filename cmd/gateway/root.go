package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version é sobrescrito no build com -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "key-value gateway over Redis",
		Long: fmt.Sprintf(`kv-gateway (%s)

HTTP gateway exposing create/get/update/delete/ttl over the 16 Redis databases,
protected by API keys and per-client rate limiting.`, Version),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "config/config.json", "path to the configuration file (JSON or YAML)")

	root.AddCommand(newServeCmd(), newAPIKeyCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kv-gateway %s\n", Version)
		},
	}
}
