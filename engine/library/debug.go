package library

import (
	"github.com/sasha-s/go-deadlock"
)

// ValidateSaneExecutionTime returns a closure that must be called when the
// surrounding operation completes. While it is outstanding it holds a
// deadlock-checked lock, so a handler that wedges shows up in the deadlock
// detector instead of stalling silently.
func ValidateSaneExecutionTime() func() {
	mu := deadlock.Mutex{}
	mu.Lock()
	go func() {
		mu.Lock()
		mu.Unlock()
	}()
	return func() {
		mu.Unlock()
	}
}
