package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cnpjota/internal/platform/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the default plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.accounts.SeedPlans(ctx); err != nil {
				return err
			}
			plans, err := svc.accounts.ListPlans(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range plans {
				fmt.Fprintf(out, "%s\t%s credits/query\t%d rps\n", p.Name, p.CreditCost, p.MaxRequestsPerSecond)
			}
			return nil
		},
	}
}
