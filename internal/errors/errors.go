package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrValidation        = errors.New("request validation failed")
	ErrTransport         = errors.New("transport error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTimeoutExceeded   = errors.New("task did not complete in time")
	ErrRemoteTaskFailed  = errors.New("task not completed successfully")
	ErrMalformedArtifact = errors.New("malformed artifact")
)

// ValidationError describes a request the service answered with a status
// other than 200 or 204. Header and body values are already truncated.
type ValidationError struct {
	URL          string
	Headers      map[string]string
	Body         string
	StatusCode   int
	ResponseBody string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation status for request %s with headers %v and body %s failed. Status Code: %d. Response: %s",
		e.URL, e.Headers, e.Body, e.StatusCode, e.ResponseBody)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RemoteTaskError is returned when the service reports a terminal status
// other than completed.
type RemoteTaskError struct {
	TaskID  string
	Status  string
	Message string
}

func (e *RemoteTaskError) Error() string {
	return fmt.Sprintf("task %s not completed successfully (status %q): %s", e.TaskID, e.Status, e.Message)
}

func (e *RemoteTaskError) Unwrap() error { return ErrRemoteTaskFailed }
