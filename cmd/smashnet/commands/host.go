package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/cli"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/events"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/telemetry"
)

func hostCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a match and print the invite code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := session.New(sessionOptions())
			finalCode, err := sess.Open(ctx, session.RoleHost, code)
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			defer sess.Disconnect()

			fmt.Printf("\nInvite code: %s\n", finalCode)
			fmt.Println("Share it with your opponents, then type 'help' for commands.")

			sess.Events().Subscribe("console.lifecycle", func(ev events.Event) {
				switch ev.Type {
				case events.PeerJoin:
					fmt.Printf("* %s joined\n", ev.PeerID)
				case events.PeerLeave:
					fmt.Printf("* %s left\n", ev.PeerID)
				}
			})

			// Chat relay: print locally and forward to everyone but the sender.
			sess.RegisterHandler(cli.MsgChat, func(payload json.RawMessage, from string) {
				cli.PrintChat(payload, from)
				sess.Broadcast(cli.MsgChat, payload, from)
			})

			startTelemetry(ctx, sess)

			cli.NewConsole(sess).Start(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "invite code to request (random when empty)")
	return cmd
}

// startTelemetry launches the MQTT publisher when enabled in config.
func startTelemetry(ctx context.Context, sess *session.Session) {
	mqttCfg := cfg.GetApplicationData().MQTT
	if !mqttCfg.Enabled {
		return
	}

	pub, err := telemetry.NewPublisher(mqttCfg, sess.Events())
	if err != nil {
		log.Warn().Err(err).Msg("telemetry disabled")
		return
	}
	go func() {
		if err := pub.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry stopped")
		}
	}()
}
