//go:build windows

package main

import (
	"os"
)

// terminationSignals stop the server and flush pending cache writes.
var terminationSignals = []os.Signal{os.Interrupt}
