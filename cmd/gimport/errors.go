package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/steveyegge/gimport/internal/errdefs"
)

// FatalError writes an error message to stderr and exits with code 1.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// hintFor suggests what to do about an import error, or returns "".
func hintFor(err error) string {
	switch {
	case errors.Is(err, errdefs.ErrConflict):
		return "Run 'gimport locks' to see which imports are in progress"
	case errors.Is(err, errdefs.ErrValidation):
		return "Create the parent project locally first, or pass --parent"
	case errors.Is(err, errdefs.ErrPreconditionFailed):
		return "Import the missing groups first, or pass --import-owner-group / --import-included-groups"
	case errors.Is(err, errdefs.ErrLock):
		return "Check that the lock directory is writable (config key lock-dir)"
	}
	return ""
}

// exitWithError reports err in the requested output format and exits.
func exitWithError(err error) {
	if jsonOutput {
		outputJSONError(err, errdefs.Kind(err))
	}
	if hint := hintFor(err); hint != "" {
		FatalErrorWithHint(err.Error(), hint)
	}
	FatalError("%v", err)
}

func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputJSONError writes err as {"error": ..., "code": ...} to stderr and
// exits with code 1.
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj)
	os.Exit(1)
}
