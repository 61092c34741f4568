//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals stop the server and flush pending cache writes.
// SIGTERM comes from systemd and container runtimes.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
