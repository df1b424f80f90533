// Command respwire encodes, decodes and sends RESP traffic from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "respwire",
		Short: "RESP wire tools",
		Long: `respwire works with the Redis serialization protocol directly.

  encode   serialize a command as it would be sent
  decode   frame and print RESP2/RESP3 values from a file or stdin
  do       send one command to a server and print the reply
  eval     run a Lua script client-side against a server
  serve    run an in-memory test server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		encodeCmd(),
		decodeCmd(),
		doCmd(),
		evalCmd(),
		serveCmd(),
		versionCmd(),
	)
	return rootCmd
}
