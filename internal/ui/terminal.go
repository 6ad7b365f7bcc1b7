package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 - fd fits in int
}

// IsInputTerminal reports whether stdin is a terminal, so prompting is
// possible.
func IsInputTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) // #nosec G115 - fd fits in int
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions, falling
// back to whether stdout is a terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if f := os.Getenv("CLICOLOR_FORCE"); f != "" && f != "0" {
		return true
	}
	return IsTerminal()
}

// DisableColor strips styling from all further output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
