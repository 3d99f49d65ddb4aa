// Package signals dispatches process signals to registered handlers: SIGHUP
// reloads configuration, SIGINT/SIGTERM shuts the communicator down. Shutdown
// handlers run after any registered withdraw handlers, so the communicator can
// announce address removal to the upper layer before sockets are torn down.
package signals

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
)

// sigChan is buffered so a signal delivered before Handle runs is not lost.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

var (
	mu           sync.RWMutex
	reloaders    []Handler
	withdrawers  []Handler
	interrupters []Handler
	stopOnce     sync.Once
)

// RegisterReloadHandler registers a handler called on SIGHUP.
func RegisterReloadHandler(f Handler) {
	register(&reloaders, f)
}

// RegisterWithdrawHandler registers a handler that runs before the interrupt
// handlers on shutdown. The communicator uses this to report its bound
// addresses as gone before closing connections.
func RegisterWithdrawHandler(f Handler) {
	register(&withdrawers, f)
}

// RegisterInterruptHandler registers a handler called on SIGINT/SIGTERM.
func RegisterInterruptHandler(f Handler) {
	register(&interrupters, f)
}

func register(dst *[]Handler, f Handler) {
	if f == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	*dst = append(*dst, f)
}

func handleReload() {
	runAll(&reloaders)
}

func handleInterrupted() {
	runAll(&withdrawers)
	runAll(&interrupters)
}

func runAll(src *[]Handler) {
	mu.RLock()
	snapshot := make([]Handler, len(*src))
	copy(snapshot, *src)
	mu.RUnlock()
	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// No logger here; stderr keeps panicking handlers visible.
					fmt.Fprintf(os.Stderr, "signals: panic in handler: %v\n", r)
				}
			}()
			h()
		}()
	}
}

// StopHandle stops signal delivery and makes Handle return. Safe to call
// more than once.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
