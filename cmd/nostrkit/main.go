package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/viper"
	"nostrkit/client"
	"nostrkit/engine/actors"
	"nostrkit/engine/library"
)

// nostrkit demo console: boots the client from config.yaml, connects to the
// configured relays and hands control to the keyboard listener.
func main() {
	conf := viper.New()
	actors.InitConfig(conf)
	actors.SetConfig(conf)

	terminate := make(chan struct{})
	actors.SetTerminateChan(terminate)

	c := client.New(client.ConfigFromViper(conf))
	pub, err := c.GenerateIdentity()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	fmt.Printf("ephemeral identity: %s\n", pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		library.LogCLI(err.Error(), 1)
	}

	// teardown runs off the terminate channel so Shutdown is the single way
	// out no matter who pulls the trigger
	wg := actors.GetWaitGroup()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-actors.GetTerminateChan()
		c.Disconnect()
	}()

	interrupt := make(chan struct{})
	go cliListener(interrupt, c)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
	case <-interrupt:
	}
	actors.Shutdown()
	wg.Wait()
}
