package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/rendezvous"
)

func rendezvousCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rendezvous",
		Short: "Run the address-discovery service peers register with",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rdvCfg := cfg.GetApplicationData().Rendezvous

			store, err := rendezvous.NewStore(rdvCfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			return rendezvous.NewServer(rdvCfg, store).Start(ctx)
		},
	}
}
