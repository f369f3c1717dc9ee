package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kv-gateway/apperr"
	"kv-gateway/config"
	"kv-gateway/credentials"
)

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the API keys accepted by the gateway",
	}

	add := &cobra.Command{
		Use:   "add KEY",
		Short: "Register an API key directly in the credential store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			desc, _ := cmd.Flags().GetString("description")

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			store, err := openCredentials(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return addAPIKey(ctx, cmd, store, args[0], desc)
		},
	}
	add.Flags().StringP("description", "d", "", "optional description stored with the key")

	cmd.AddCommand(add)
	return cmd
}

func addAPIKey(ctx context.Context, cmd *cobra.Command, store credentials.Store, key, desc string) error {
	err := credentials.Register(ctx, store, credentials.APIKey{Value: key, Description: desc})
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.Conflict || k == apperr.InvalidArgument {
			return errors.New(apperr.PublicMessage(err))
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), credentials.MsgAdded)
	return nil
}
