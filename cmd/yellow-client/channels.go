package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/erc7824/yellow-provider/config"
	"github.com/erc7824/yellow-provider/pkg/yellow"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels known to the relay, falling back to the provider's cached channels",
	RunE:  runChannels,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}

func runChannels(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	key, err := loadWalletKey()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	provider, err := yellow.NewProvider(ctx, *cfg, newEnvWalletSigner(key), key, nil)
	if err != nil {
		return err
	}

	if fb := provider.Connect(ctx); fb != nil {
		return fb
	}
	defer func() { _ = provider.Disconnect() }()

	channels, fb := provider.GetChannels(ctx)
	if fb != nil {
		return fb
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(channels)
}
