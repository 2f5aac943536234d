package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	creditmodels "cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
)

func creditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant account credits",
	}
	cmd.AddCommand(creditsAddCmd())
	cmd.AddCommand(creditsBalanceCmd())
	return cmd
}

func creditsAddCmd() *cobra.Command {
	var (
		category string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "add [account-id] [amount]",
		Short: "Grant credits to an account",
		Long: `Grant credits to an account. Amounts are in credits and may be
fractional; they are stored in thousandths.

Examples:
  cnpjctl credits add 7c0e... 50
  cnpjctl credits add 7c0e... 0.5 --category refund --reason "duplicate charge"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := id.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			credits, err := strconv.ParseFloat(args[1], 64)
			if err != nil || credits <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			cat, err := creditmodels.ParseCategory(category)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.accounts.FindAccount(ctx, subject); err != nil {
				return err
			}
			if err := svc.ledger.Credit(ctx, subject, creditmodels.Credits(credits), cat, reason); err != nil {
				return err
			}
			balance, err := svc.ledger.Balance(ctx, subject)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s credits; balance %s\n", creditmodels.Credits(credits), balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(creditmodels.CategoryPurchase), "entry category (purchase, bonus, refund, adjustment)")
	cmd.Flags().StringVar(&reason, "reason", "manual grant", "ledger entry reason")
	return cmd
}

func creditsBalanceCmd() *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "balance [account-id]",
		Short: "Show an account balance and recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := id.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			balance, err := svc.ledger.Balance(ctx, subject)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "balance: %s\n", balance)
			if history <= 0 {
				return nil
			}
			entries, err := svc.ledger.History(ctx, subject, history)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%10s\t%-8s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Amount, e.Category, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&history, "history", "n", 10, "number of ledger entries to print")
	return cmd
}
