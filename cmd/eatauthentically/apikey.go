package main

import (
	"fmt"

	"eatauthentically/internal/auth"

	"github.com/lib/pq"
	"github.com/spf13/cobra"
)

var (
	apiKeyName   string
	apiKeyScopes []string
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage partner API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if apiKeyName == "" {
			return fmt.Errorf("--name is required")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		plain, prefix, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		k := &auth.APIKey{
			Name:    apiKeyName,
			Prefix:  prefix,
			KeyHash: hash,
			Scopes:  pq.StringArray(apiKeyScopes),
		}
		if err := (&auth.APIKeyRepo{DB: a.db}).Create(cmd.Context(), k); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\nkey:    %s\nscopes: %v\n", k.ID, plain, apiKeyScopes)
		return nil
	},
}

func init() {
	apiKeyCreateCmd.Flags().StringVar(&apiKeyName, "name", "", "human readable owner of the key")
	apiKeyCreateCmd.Flags().StringSliceVar(&apiKeyScopes, "scope", []string{auth.ScopeOutreachWrite}, "scopes granted to the key")
	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	rootCmd.AddCommand(apiKeyCmd)
}
