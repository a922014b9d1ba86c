package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStderrTerminal reports whether stderr is a terminal. Progress output
// goes to stderr.
func IsStderrTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// IsStdinTerminal reports whether stdin is a terminal, i.e. whether the
// user can answer a prompt.
func IsStdinTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions and falls
// back to TTY detection.
//
//	NO_COLOR set        never
//	CLICOLOR_FORCE set  always
//	CLICOLOR=0          never
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" && os.Getenv("CLICOLOR_FORCE") != "0" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status icons are printed as glyphs.
// Console status goes to stderr, so that is the stream checked.
func ShouldUseEmoji() bool {
	if os.Getenv("BBS_NO_EMOJI") != "" {
		return false
	}
	return IsStderrTerminal()
}

// ApplyColorPreference forces plain output when color is disabled, either by
// the --no-color flag or by the environment.
func ApplyColorPreference(disable bool) {
	if disable || !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
