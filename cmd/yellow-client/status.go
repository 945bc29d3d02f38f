package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/erc7824/yellow-provider/config"
	"github.com/erc7824/yellow-provider/pkg/yellow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check connectivity to the configured node RPC",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	key, err := loadWalletKey()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	provider, err := yellow.NewProvider(ctx, *cfg, newEnvWalletSigner(key), key, nil)
	if err != nil {
		return err
	}

	if err := provider.Healthy(ctx); err != nil {
		return fmt.Errorf("node rpc unhealthy: %w", err)
	}

	fmt.Println("node rpc healthy")
	return nil
}
