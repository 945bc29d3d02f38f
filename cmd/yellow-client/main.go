package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "yellow-client",
	Short: "Yellow Provider CLI - ERC-7824 state-channel client",
	Long: `yellow-client drives the yellow-provider library directly: it connects to a
ClearNode relay, authenticates a session key on behalf of a private key loaded from the
environment, and exposes the provider's channel-lifecycle operations from the shell.

This tool is a thin driver over pkg/yellow, not a replacement for embedding the provider
in a kernel process.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Note: commands are registered in their respective files
	// - status.go: statusCmd
	// - connect.go: connectCmd
	// - channels.go: channelsCmd
}
