//go:build !unix

package main

import "os"

// notifyResize is a no-op where the platform has no window-change signal.
func notifyResize(chan<- os.Signal) {}

// notifyDump is a no-op where the platform has no user signals.
func notifyDump(chan<- os.Signal) {}
