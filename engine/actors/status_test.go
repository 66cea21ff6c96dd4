package actors

import (
	"testing"
	"time"
)

func TestShutdownReleasesWaiters(t *testing.T) {
	SetTerminateChan(make(chan struct{}))
	wg := GetWaitGroup()

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-GetTerminateChan()
		close(done)
	}()

	Shutdown()
	Shutdown() // second call must not panic on a closed channel

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine selecting on the terminate channel never woke up")
	}
	wg.Wait()
}
