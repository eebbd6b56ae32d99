package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/apikey"
	"github.com/kiranshivaraju/pricewatch/internal/config"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/spf13/cobra"
)

func apiKeyCmd(cfg func() *config.Config, open keyStoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys of the default tenant",
	}

	cmd.AddCommand(apiKeyCreateCmd(cfg, open))
	cmd.AddCommand(apiKeyListCmd(cfg, open))
	cmd.AddCommand(apiKeyRevokeCmd(cfg, open))
	return cmd
}

func apiKeyCreateCmd(cfg func() *config.Config, open keyStoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Issue a new API key and print it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopes, _ := cmd.Flags().GetStringSlice("scopes")

			ks, closeFn, err := open(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer closeFn()

			tenant, err := ks.GetDefaultTenant(cmd.Context())
			if err != nil {
				return fmt.Errorf("get default tenant: %w", err)
			}

			issued, err := apikey.Issue(cmd.Context(), ks, tenant.ID, args[0], scopes)
			if errors.Is(err, store.ErrDuplicateKey) {
				return fmt.Errorf("an api key named %q already exists", strings.TrimSpace(args[0]))
			}
			if err != nil {
				return fmt.Errorf("issue api key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", issued.Key.ID)
			fmt.Fprintf(out, "scopes: %s\n", strings.Join(issued.Key.Scopes, ","))
			fmt.Fprintf(out, "key:    %s\n", issued.Raw)
			fmt.Fprintln(out, "Store this key now; it cannot be shown again.")
			return nil
		},
	}
	cmd.Flags().StringSlice("scopes", nil, "comma separated scopes (read, write, admin); default read,write")
	return cmd
}

func apiKeyListCmd(cfg func() *config.Config, open keyStoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, closeFn, err := open(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer closeFn()

			tenant, err := ks.GetDefaultTenant(cmd.Context())
			if err != nil {
				return fmt.Errorf("get default tenant: %w", err)
			}
			keys, err := ks.ListAPIKeys(cmd.Context(), tenant.ID)
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tSCOPES\tLAST USED")
			for _, k := range keys {
				lastUsed := "never"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					k.ID, k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed)
			}
			return tw.Flush()
		},
	}
}

func apiKeyRevokeCmd(cfg func() *config.Config, open keyStoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q: %w", args[0], err)
			}

			ks, closeFn, err := open(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer closeFn()

			tenant, err := ks.GetDefaultTenant(cmd.Context())
			if err != nil {
				return fmt.Errorf("get default tenant: %w", err)
			}
			if err := ks.RevokeAPIKey(cmd.Context(), id, tenant.ID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("api key %s not found", id)
				}
				return fmt.Errorf("revoke api key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
			return nil
		},
	}
}
