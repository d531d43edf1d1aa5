// Command itamctl is the operator CLI: it mints tokens, runs spreadsheet
// imports outside the HTTP path and encodes or decodes asset QR codes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "itamctl",
		Short:         "Operator tools for the ITAM API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTokenCmd(), newImportCmd(), newQRCmd())
	return root
}
