package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/steveyegge/gimport/internal/ui"
)

// errNoPassword is returned when --pass is missing and there is no terminal
// to prompt on.
var errNoPassword = errors.New("--pass is required when stdin is not a terminal (or set GIMPORT_PASS)")

// resolvePassword returns pass, $GIMPORT_PASS, or a masked prompt answer,
// in that order.
func resolvePassword(pass, user, from string) (string, error) {
	if pass != "" {
		return pass, nil
	}
	if env := os.Getenv("GIMPORT_PASS"); env != "" {
		return env, nil
	}
	if !ui.IsInputTerminal() {
		return "", errNoPassword
	}

	var answer string
	err := huh.NewInput().
		Title(fmt.Sprintf("Password for %s on %s", user, from)).
		EchoMode(huh.EchoModePassword).
		Value(&answer).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("password is required")
			}
			return nil
		}).
		Run()
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return answer, nil
}
