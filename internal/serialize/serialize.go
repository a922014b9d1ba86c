// Package serialize converts Bitbucket Server models into the records of a
// GitHub migration archive.
//
// Each builder validates the fields the importer requires and returns a
// *ValidationError when one is missing, so that a single malformed source
// object can be logged and skipped without aborting the export.
package serialize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// Formatter is the body format of every exported comment.
const Formatter = "markdown"

// ValidationError lists the required fields a record is missing.
type ValidationError struct {
	Model    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Model, strings.Join(e.Problems, ", "))
}

type validator struct {
	model    string
	problems []string
}

func newValidator(model string) *validator {
	return &validator{model: model}
}

func (v *validator) require(field string, ok bool) {
	if !ok {
		v.problems = append(v.problems, field+" can't be blank")
	}
}

func (v *validator) requireString(field, value string) {
	v.require(field, strings.TrimSpace(value) != "")
}

func (v *validator) add(problem string) {
	v.problems = append(v.problems, problem)
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Model: v.model, Problems: v.problems}
}

// Serializer builds archive records. It is safe for concurrent use.
type Serializer struct {
	URLs *URLService

	// Now stamps records whose source has no creation time.
	Now func() time.Time
}

// New returns a Serializer backed by urls.
func New(urls *URLService) *Serializer {
	return &Serializer{URLs: urls, Now: time.Now}
}

func (s *Serializer) createdAt() string {
	return s.Now().UTC().Format(time.RFC3339)
}

// FormatMillis renders a Bitbucket millisecond timestamp as ISO 8601 in UTC.
func FormatMillis(ms int64) string {
	return types.FromMillis(ms).Format(time.RFC3339)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
