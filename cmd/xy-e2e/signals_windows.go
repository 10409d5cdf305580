//go:build windows

package main

import (
	"os"
	"syscall"
)

func getShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}
