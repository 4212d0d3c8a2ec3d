// facilitatord runs an x402 payment facilitator: verify and settle endpoints
// for resource gateways, plus an optional built-in gateway for configured
// routes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facilitatord",
	Short: "x402 payment facilitator for Solana",
	Long:  `Verifies and settles x402 payments over Solana networks.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
