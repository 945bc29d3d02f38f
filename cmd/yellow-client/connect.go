package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/erc7824/yellow-provider/config"
	"github.com/erc7824/yellow-provider/pkg/yellow"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a ClearNode session and authenticate, then disconnect",
	RunE:  runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
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

	unsubscribe := provider.On(func(ev yellow.Event) {
		fmt.Printf("event: %s\n", ev.Kind)
	})
	defer unsubscribe()

	if fb := provider.Connect(ctx); fb != nil {
		return fb
	}
	defer func() { _ = provider.Disconnect() }()

	fmt.Println("connected and authenticated")
	return nil
}
