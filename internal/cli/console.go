// Package cli implements the interactive console wrapped around a running
// session: peer status, chat broadcast, and kick commands for the host,
// chat for a connected client.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/protocol"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
)

// MsgChat is the envelope type used by console chat messages.
const MsgChat protocol.MessageType = "chat"

// ChatPayload is the body of a MsgChat envelope.
type ChatPayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// Console is an interactive command loop around a session.
type Console struct {
	sess *session.Session
	in   io.Reader
}

// NewConsole creates a console reading commands from stdin.
func NewConsole(sess *session.Session) *Console {
	return &Console{sess: sess, in: os.Stdin}
}

// Start runs the command loop until EOF, "quit", or context cancellation.
func (c *Console) Start(ctx context.Context) {
	fmt.Println("\nConsole ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			return
		}
		if err := c.execute(cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single console command.
func (c *Console) execute(cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "say":
		return c.cmdSay(args)
	case "kick":
		return c.cmdKick(args)
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
	return nil
}

func (c *Console) printHelp() {
	fmt.Println(`Commands:
  status           show session state and connected peers
  say <message>    send a chat message (broadcast as host, to host as client)
  kick <peer-id>   drop a peer's connection (host only)
  quit             leave the session and exit`)
}

func (c *Console) printStatus() {
	fmt.Printf("role: %s  ready: %v  id: %s\n", c.sess.Role(), c.sess.Ready(), c.sess.LocalID())

	if c.sess.Role() != session.RoleHost {
		if hostID := c.sess.HostID(); hostID != "" {
			fmt.Printf("connected to host: %s\n", hostID)
		} else {
			fmt.Println("not connected to a host")
		}
		return
	}

	peers := c.sess.Peers()
	if len(peers) == 0 {
		fmt.Println("no peers connected")
		return
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"#", "Peer ID"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for i, id := range peers {
		tw.Append([]string{fmt.Sprintf("%d", i+1), id})
	}
	tw.Render()
}

func (c *Console) cmdSay(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <message>")
	}
	payload := ChatPayload{From: c.sess.LocalID(), Text: strings.Join(args, " ")}

	if c.sess.Role() == session.RoleHost {
		c.sess.Broadcast(MsgChat, payload)
	} else {
		c.sess.SendToHost(MsgChat, payload)
	}
	return nil
}

func (c *Console) cmdKick(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: kick <peer-id>")
	}
	if c.sess.Role() != session.RoleHost {
		return fmt.Errorf("only the host can kick peers")
	}
	// Closing the connection is enough: the session observes the close and
	// fires the leave event.
	if !c.sess.DropPeer(args[0]) {
		return fmt.Errorf("no such peer %q", args[0])
	}
	log.Info().Str("peer", args[0]).Msg("peer kicked")
	return nil
}

// PrintChat is a ready-made chat handler for the console: register it for
// MsgChat to echo messages to stdout.
func PrintChat(payload json.RawMessage, from string) {
	var msg ChatPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn().Err(err).Str("from", from).Msg("malformed chat payload")
		return
	}
	fmt.Printf("[%s] %s\n", msg.From, msg.Text)
}
