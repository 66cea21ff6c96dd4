package actors

import (
	"sync"
)

var terminateChan chan struct{}
var terminateOnce sync.Once

func SetTerminateChan(term chan struct{}) {
	terminateChan = term
}

func GetTerminateChan() chan struct{} {
	return terminateChan
}

// Shutdown closes the terminate channel exactly once; every long-lived
// goroutine selects on it.
func Shutdown() {
	terminateOnce.Do(func() {
		if terminateChan != nil {
			close(terminateChan)
		}
	})
}

var wg = &sync.WaitGroup{}

func GetWaitGroup() *sync.WaitGroup {
	return wg
}
