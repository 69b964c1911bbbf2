package viewcache

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrDisposed is the panic value raised when a disposed view is used.
	ErrDisposed = errors.New("viewcache: view is disposed")
	// ErrSuperseded is returned for a response that arrived after the view's
	// params or options changed. The response was dropped.
	ErrSuperseded = errors.New("viewcache: response superseded by a newer request")
	// ErrMalformed wraps collaborator responses that could not be decoded.
	ErrMalformed = errors.New("viewcache: malformed response")
	// ErrNoParams is returned by views asked to fetch before SetParams.
	ErrNoParams = errors.New("viewcache: view has no params")
)

// ErrorDetail is one key/value pair of extra error information sent by the server.
type ErrorDetail struct {
	Key   string
	Value string
}

// ServerError is the common shape every collaborator error is mapped to.
type ServerError struct {
	Status     int
	StatusText string
	Code       string
	Message    string
	Details    []ErrorDetail
	RequestID  string
	Timestamp  time.Time
	Err        error // original error, if any
}

func (e *ServerError) Error() string {
	parts := make([]string, 0, 3)
	if e.Status != 0 {
		parts = append(parts, fmt.Sprint(e.Status))
	}
	if e.StatusText != "" {
		parts = append(parts, e.StatusText)
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Code != "":
		parts = append(parts, e.Code)
	case e.Err != nil:
		parts = append(parts, e.Err.Error())
	}
	msg := strings.Join(parts, " - ")
	for _, d := range e.Details {
		msg += "\n" + d.Key + ": " + d.Value
	}
	return msg
}

func (e *ServerError) Unwrap() error { return e.Err }

// NotFound reports whether the server answered 404.
func (e *ServerError) NotFound() bool { return e.Status == http.StatusNotFound }

// IsNotFound reports whether err carries a 404 ServerError.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.NotFound()
}

// AsServerError returns err as a *ServerError. Errors that are not already one
// (transport failures, canceled contexts) are wrapped with Status 0.
func AsServerError(err error) *ServerError {
	if err == nil {
		return nil
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se
	}
	return &ServerError{Code: "NetworkError", Message: err.Error(), Err: err}
}

// FetchAllError reports a page drain that stopped on a failed page.
// Pages and Items count what was loaded before the failure.
type FetchAllError struct {
	Pages int
	Items int
	Err   error
}

func (e *FetchAllError) Error() string {
	return fmt.Sprintf("fetch all aborted after %d page(s), %d item(s): %v", e.Pages, e.Items, e.Err)
}

func (e *FetchAllError) Unwrap() error { return e.Err }
