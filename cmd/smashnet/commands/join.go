package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/cli"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/events"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
)

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <invite-code>",
		Short: "Join a match by invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := session.New(sessionOptions())
			if _, err := sess.Open(ctx, session.RoleClient, ""); err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			defer sess.Disconnect()

			sess.Events().Subscribe("console.lifecycle", func(ev events.Event) {
				if ev.Type == events.HostDisconnect {
					fmt.Println("* host disconnected")
					stop()
				}
			})
			sess.RegisterHandler(cli.MsgChat, cli.PrintChat)

			if err := sess.ConnectToHost(ctx, args[0]); err != nil {
				return fmt.Errorf("connect to host: %w", err)
			}
			fmt.Printf("Connected to %s. Type 'help' for commands.\n", sess.HostID())

			startTelemetry(ctx, sess)

			cli.NewConsole(sess).Start(ctx)
			return nil
		},
	}
}
