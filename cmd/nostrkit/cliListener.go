package main

import (
	"context"
	"fmt"
	"time"

	"github.com/eiannone/keyboard"
	"nostrkit/client"
	"nostrkit/engine/actors"
	"nostrkit/protocol"
)

// cliListener is a cheap and nasty way to poke the client during development.
// It listens for keypresses and executes commands.
func cliListener(interrupt chan struct{}, c *client.Client) {
	fmt.Println("COMMANDS:\nn: publish a test note\ns: subscribe to own notes\nr: relay connection states\nk: current public key\nC: engine config\nq: quit")
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			panic(err)
		}
		str := string(r)
		switch str {
		default:
			if k == 13 {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to any test procedures. See cliListener.go for more details.")
		case "q":
			close(interrupt)
			return
		case "n":
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			e, err := c.PublishNote(ctx, fmt.Sprintf("nostrkit test note at %s", time.Now().Format(time.RFC3339)))
			cancel()
			if err != nil {
				fmt.Printf("publish failed: %s\n", err)
				break
			}
			fmt.Printf("published note %s\n", e.ID)
		case "s":
			id, err := c.Subscribe(context.Background(), protocol.Filters{{
				Kinds:   []int{protocol.KindTextNote},
				Authors: []string{c.PublicKey()},
			}}, func(e *protocol.Event) {
				fmt.Printf("\nEVENT %s\n%s\n", e.ID, e.Content)
			})
			if err != nil {
				fmt.Printf("subscribe failed: %s\n", err)
				break
			}
			fmt.Printf("subscription %s open\n", id)
		case "r":
			for url, state := range c.RelayStates() {
				fmt.Printf("%s: %s\n", url, state)
			}
		case "k":
			fmt.Printf("public key: %s\n", c.PublicKey())
		case "C":
			fmt.Println("CURRENT CONFIG")
			for key, v := range actors.MakeOrGetConfig().AllSettings() {
				fmt.Printf("\nKey: %s; Value: %v\n", key, v)
			}
		}
	}
}
