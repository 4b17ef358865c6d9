//go:build unix

package app

import (
	"os"
	"os/signal"
	"syscall"
)

// submitSignal returns a channel that fires when SIGUSR1 arrives, used
// to force an immediate delivery attempt.
func submitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	return ch
}
