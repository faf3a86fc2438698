//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// notifyResize relays terminal window changes to ch.
func notifyResize(ch chan<- os.Signal) {
	signal.Notify(ch, unix.SIGWINCH)
}

// notifyDump relays crash-dump requests (SIGUSR1) to ch.
func notifyDump(ch chan<- os.Signal) {
	signal.Notify(ch, unix.SIGUSR1)
}
