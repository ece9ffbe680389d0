//go:build !linux
// +build !linux

package util

import (
	"io"
	"log"
	"os"
)

var logWriter io.Writer = os.Stderr

// GetLogWriter returns the current log writer (for use by other packages)
func GetLogWriter() io.Writer {
	return logWriter
}

// SetupLogging configures the logging system based on the journald flag.
// Journald only exists on Linux, so this falls back to standard logging.
func SetupLogging(withJournald bool) {
	if withJournald {
		log.Println("Warning: Journald logging is not supported on this operating system")
		log.Println("Falling back to standard logging (stderr)")
	}
}
