package main

import (
	"errors"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/export"
	"github.com/steveyegge/bbs-exporter/internal/ui"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitAuth       = 2
	ExitBadVersion = 3
	ExitConfig     = 4
)

// configError marks a problem with the settings rather than the export.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var badVersion *export.BadVersionError
	var cfgErr *configError
	var invalidURL *bitbucket.InvalidBaseURLError
	switch {
	case errors.As(err, &badVersion):
		return ExitBadVersion
	case errors.As(err, &cfgErr), errors.As(err, &invalidURL),
		errors.Is(err, bitbucket.ErrMissingCredentials), errors.Is(err, ui.ErrPromptAborted):
		return ExitConfig
	case errors.Is(err, bitbucket.ErrAuthentication), bitbucket.IsUnauthorized(err):
		return ExitAuth
	}
	return ExitError
}
