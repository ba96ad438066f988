// Smashnet is the multiplayer session tool for SuperSmashTexty: host a
// match behind a short invite code, join one, or run the rendezvous
// service that peers discover each other through.
package main

import (
	"os"

	"github.com/lpm24/SuperSmashTexty-sub002/cmd/smashnet/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
