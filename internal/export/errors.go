package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/serialize"
)

// MinimumVersion is the oldest Bitbucket Server release the exporter
// supports.
const MinimumVersion = "5.0.0"

// ErrNothingExported is returned when a run staged no records at all.
var ErrNothingExported = errors.New("Nothing was exported!")

// BadVersionError is returned for servers older than MinimumVersion.
type BadVersionError struct {
	Version string
}

func (e *BadVersionError) Error() string {
	return fmt.Sprintf("This utility requires Bitbucket Server version %s or greater.\nThe version returned by Bitbucket Server was %s.", MinimumVersion, e.Version)
}

// skippable reports whether err concerns a single record, so the export
// can log it and carry on.
func skippable(err error) bool {
	var invalid *serialize.ValidationError
	var apiErr *bitbucket.APIError
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.As(err, &invalid) || errors.As(err, &apiErr)
}

// skip logs a record-level failure and returns nil, or returns err
// unchanged when it must abort the export.
//
// Console format: "<message>: <error>"
func skip(err error, message, url string) error {
	if err == nil {
		return nil
	}
	if !skippable(err) {
		return err
	}
	debug.Errorf("%s: %s", message, err)
	debug.LogError(err, "url", url)
	return nil
}

// quietly logs a record-level failure to the export log only.
func quietly(err error, meta ...string) error {
	if err == nil {
		return nil
	}
	if !skippable(err) {
		return err
	}
	debug.LogError(err, meta...)
	return nil
}
