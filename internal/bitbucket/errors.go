package bitbucket

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingCredentials is returned by NewClient when neither a token nor a
// username and password are configured.
var ErrMissingCredentials = errors.New("must define `BITBUCKET_SERVER_API_TOKEN` or `BITBUCKET_SERVER_API_USERNAME` AND `BITBUCKET_SERVER_API_PASSWORD`")

// ErrAuthentication is returned when the server does not identify the
// authenticated user.
var ErrAuthentication = errors.New("unable to connect to Bitbucket Server with the provided credentials")

// ErrEmptyRepository is returned for requests that need at least one commit.
var ErrEmptyRepository = errors.New("repository is empty")

// InvalidBaseURLError is returned for a base URL that is not http(s).
type InvalidBaseURLError struct {
	URL string
}

func (e *InvalidBaseURLError) Error() string {
	return fmt.Sprintf("%s is not a valid URL!", e.URL)
}

// UserNotFoundError is returned when no user has the exact username.
type UserNotFoundError struct {
	Username string
}

func (e *UserNotFoundError) Error() string {
	return "Could not find user with username: " + e.Username
}

// ServerError is one entry of a Bitbucket Server error response.
type ServerError struct {
	Context       string `json:"context,omitempty"`
	Message       string `json:"message"`
	ExceptionName string `json:"exceptionName,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Method string
	URL    string
	Errors []ServerError
}

func (e *APIError) Error() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	msg := fmt.Sprintf("%d on %s to %s", e.Status, method, e.URL)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Messages(), " ")
	}
	return msg
}

// Messages returns the server's error messages.
func (e *APIError) Messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		out = append(out, se.Message)
	}
	return out
}

// FirstError returns the first server error, or a zero value.
func (e *APIError) FirstError() ServerError {
	if len(e.Errors) == 0 {
		return ServerError{}
	}
	return e.Errors[0]
}

// HasException reports whether the server raised the named exception.
func (e *APIError) HasException(name string) bool {
	for _, se := range e.Errors {
		if se.ExceptionName == name {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a 404 API error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 API error.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// TimeoutError is returned when a request timed out on every attempt.
type TimeoutError struct {
	Retries int
	URL     string
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Retries > 0 {
		return fmt.Sprintf("Timed out %d times during GETs to %s", e.Retries, e.URL)
	}
	return "Timed out during GET to " + e.URL
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError is returned when a request failed below HTTP, for
// example with a refused connection, on every attempt.
type TransportError struct {
	Method  string
	URL     string
	Retries int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Retries > 0 {
		return fmt.Sprintf("%s %s failed after %d retries: %v", e.Method, e.URL, e.Retries, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
