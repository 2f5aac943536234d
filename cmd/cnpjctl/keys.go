package main

import (
	"fmt"

	"github.com/spf13/cobra"

	dErrors "cnpjota/pkg/domain-errors"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}
	cmd.AddCommand(keysCreateCmd())
	return cmd
}

func keysCreateCmd() *cobra.Command {
	var (
		name    string
		plan    string
		keyName string
	)
	cmd := &cobra.Command{
		Use:   "create [email]",
		Short: "Issue an API key, registering the account when needed",
		Long: `Issue an API key for the account registered under email. Unknown
emails get a new account on the given plan plus the welcome bonus.

The raw key is printed once and cannot be recovered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			acct, err := svc.accounts.FindAccountByEmail(ctx, args[0])
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				acct, err = svc.accounts.CreateAccount(ctx, args[0], name, plan)
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "created account %s (%s)\n", acct.ID, acct.Email)
				}
			}
			if err != nil {
				return err
			}

			issued, err := svc.accounts.IssueKey(ctx, acct.ID, keyName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "account: %s\n", acct.ID)
			fmt.Fprintf(out, "key id:  %s\n", issued.Key.ID)
			fmt.Fprintf(out, "api key: %s\n", issued.Raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "account display name (new accounts)")
	cmd.Flags().StringVar(&plan, "plan", "basic", "plan for new accounts (basic, pro, business)")
	cmd.Flags().StringVar(&keyName, "key-name", "default", "label stored with the key")
	return cmd
}
