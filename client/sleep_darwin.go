//go:build darwin

package client

import (
	"context"

	"github.com/prashantgupta24/mac-sleep-notifier/notifier"
	"nostrkit/engine/library"
	"nostrkit/messaging/relays"
)

// startSleepWatcher drops the pool to Background mode while the machine
// sleeps and restores Foreground on wake.
func startSleepWatcher(c *Client) {
	activity := notifier.GetInstance().Start()
	go func() {
		for act := range activity {
			switch act.Type {
			case notifier.Sleep:
				library.LogCLI("system sleep detected, reducing relay connections", 3)
				c.SetMode(context.Background(), relays.Background)
			case notifier.Awake:
				library.LogCLI("system awake, restoring relay connections", 3)
				c.SetMode(context.Background(), relays.Foreground)
			}
		}
	}()
}
