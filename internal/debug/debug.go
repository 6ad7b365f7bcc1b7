// Package debug carries the verbose diagnostics of the CLI. Output is off
// unless GIMPORT_DEBUG is set or --verbose is passed.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("GIMPORT_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// SetOutput redirects debug output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := out
	out = w
	return prev
}

// Logf writes a diagnostic line. Imports of different projects log
// concurrently, so writes are serialized.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(out, format, args...)
}

// Stage logs the start of a named pipeline stage and returns a func that
// logs its duration. Typical use: defer debug.Stage("foo", "fetch")().
func Stage(project, stage string) func() {
	if !Enabled() {
		return func() {}
	}
	start := time.Now()
	Logf("[%s] %s...\n", project, stage)
	return func() {
		Logf("[%s] %s done in %v\n", project, stage, time.Since(start).Round(time.Millisecond))
	}
}

// PrintNormal prints output unless quiet mode is enabled
// Use this for normal informational output that should be suppressed in quiet mode
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
