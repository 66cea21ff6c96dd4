//go:build !darwin

package client

// Sleep detection only exists on darwin; elsewhere mode changes are up to the
// host via SetMode.
func startSleepWatcher(*Client) {}
