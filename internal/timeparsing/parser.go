// Package timeparsing parses the data cutoff given to --since.
//
// Inputs are tried in layers:
//  1. Compact duration (30d, 6h, 2w, 3m, 1y), counted back from now
//  2. Date-only (2006-01-02) and RFC3339 timestamps
//  3. Natural language (yesterday, 3 days ago, last monday)
package timeparsing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrFutureCutoff is returned for a cutoff that lies after the reference
// time.
var ErrFutureCutoff = errors.New("cutoff is in the future")

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Format: [+-]?(\d+)([hdwmy]). Units are hours, days, weeks, months and
// years. A missing sign means positive.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	return applyDuration(now, amount, matches[3]), nil
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// IsCompactDuration returns true if the string matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNaturalLanguage parses an English date expression relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time expression")
	}
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a recognized time expression: %q", s)
	}
	return r.Time, nil
}

// ParseSince parses a data cutoff. Unsigned compact durations count back
// from now, so "30d" means thirty days ago. The cutoff must not be after
// now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	var (
		t   time.Time
		err error
	)
	switch {
	case IsCompactDuration(s):
		if strings.HasPrefix(s, "+") {
			return time.Time{}, fmt.Errorf("%q: %w", s, ErrFutureCutoff)
		}
		t, err = ParseCompactDuration("-"+strings.TrimPrefix(s, "-"), now)
	default:
		t, err = parseAbsolute(s, now.Location())
		if err != nil {
			t, err = ParseNaturalLanguage(s, now)
		}
	}
	if err != nil {
		return time.Time{}, err
	}
	if t.After(now) {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrFutureCutoff)
	}
	return t, nil
}

func parseAbsolute(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
