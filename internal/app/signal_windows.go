//go:build windows

package app

import "os"

// submitSignal returns a nil channel on Windows; there is no SIGUSR1
// equivalent, so the submit-now trigger is unavailable.
func submitSignal() <-chan os.Signal {
	return nil
}
