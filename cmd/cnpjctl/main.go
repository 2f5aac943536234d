// Command cnpjctl is the operator CLI: CNPJ checks, credit grants, API key
// issuance and schema management.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cnpjctl",
		Short:         "cnpjctl - operate a cnpjota deployment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(validateCmd())
	root.AddCommand(formatCmd())
	root.AddCommand(creditsCmd())
	root.AddCommand(keysCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	return root
}
