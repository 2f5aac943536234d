package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cnpjota/internal/registry/domain"
)

var errInvalidInput = errors.New("one or more CNPJs are invalid")

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [cnpj...]",
		Short: "Check CNPJ check digits",
		Long: `Check one or more CNPJs. Punctuation is ignored.

Exits non-zero when any argument is invalid.

Examples:
  cnpjctl validate 11.222.333/0001-81
  cnpjctl validate 11222333000181 11222333000182`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false
			for _, raw := range args {
				cnpj, err := domain.ParseCNPJ(raw)
				if err != nil {
					failed = true
					fmt.Fprintf(out, "%s\tinvalid\t%v\n", raw, err)
					continue
				}
				fmt.Fprintf(out, "%s\tvalid\t%s\n", raw, cnpj.Format())
			}
			if failed {
				return errInvalidInput
			}
			return nil
		},
	}
}

func formatCmd() *cobra.Command {
	var digitsOnly bool
	cmd := &cobra.Command{
		Use:   "format [cnpj]",
		Short: "Print a CNPJ as XX.XXX.XXX/XXXX-XX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cnpj, err := domain.ParseCNPJ(args[0])
			if err != nil {
				return err
			}
			if digitsOnly {
				fmt.Fprintln(cmd.OutOrStdout(), cnpj.String())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cnpj.Format())
			return nil
		},
	}
	cmd.Flags().BoolVar(&digitsOnly, "digits", false, "print the 14 canonical digits instead")
	return cmd
}
