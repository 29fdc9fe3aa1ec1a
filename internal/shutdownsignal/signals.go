// Package shutdownsignal provides the process-level signal wait the
// command entrypoint blocks on. Grounded in the teacher's
// lib/signals.ShutdownOnSignals: the first SIGINT/SIGTERM is delivered
// on the returned channel so graceful shutdown can begin; a second one
// forces an immediate exit in case shutdown hangs.
package shutdownsignal

import (
	"os"
	"os/signal"
	"syscall"
)

// DoubleSignalExitCode is the process exit code used if a second
// termination signal arrives while shutdown is still in progress.
const DoubleSignalExitCode = 1

func defaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGTERM, syscall.SIGINT}
}

// WaitForSignal registers handlers for the given signals (or the
// default SIGTERM/SIGINT set if none are given) and returns a channel
// that receives the first one observed. A second signal after that
// forces os.Exit(DoubleSignalExitCode) rather than waiting on cleanup
// code that may be stuck.
func WaitForSignal(signals ...os.Signal) <-chan os.Signal {
	if len(signals) == 0 {
		signals = defaultSignals()
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, signals...)

	ret := make(chan os.Signal, 1)
	go func() {
		sig := <-ch
		ret <- sig
		<-ch
		os.Exit(DoubleSignalExitCode)
	}()
	return ret
}
