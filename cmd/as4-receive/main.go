// Command as4-receive runs the AS4 receiving message service handler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "as4-receive",
		Short:         "AS4 receiving message service handler",
		Long:          "as4-receive is an ebMS3/AS4 receiving MSH: it accepts inbound AS4 messages over HTTP, validates them against configured processing modes, and answers with receipts, error signals or reply user messages.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
