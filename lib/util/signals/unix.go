//go:build !windows

package signals

import (
	"os/signal"
	"syscall"
)

func init() {
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}

// Handle blocks dispatching signals until StopHandle is called.
func Handle() {
	for {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		switch sig {
		case syscall.SIGHUP:
			handleReload()
		case syscall.SIGINT, syscall.SIGTERM:
			handleInterrupted()
		}
	}
}
