// Package envelope builds the {"error": ..., "data": ...} response body
// shared by every endpoint.
package envelope

import (
	"errors"
	"net/http"

	"rankguard/src/infrastructure/log"
)

// InternalErrorMessage is the only detail callers see for internal faults.
const InternalErrorMessage = "Internal server error"

// Envelope is the response body of every endpoint.
type Envelope struct {
	Error *string     `json:"error"`
	Data  interface{} `json:"data"`
}

// JobStatus is the data of an in-progress or just-submitted job.
type JobStatus struct {
	ID       string `json:"id,omitempty"`
	Progress int    `json:"progress"`
	Complete bool   `json:"complete"`
}

// OK wraps data in a successful envelope.
func OK(data interface{}) Envelope {
	return Envelope{Data: data}
}

// Fail returns an envelope carrying msg and no data.
func Fail(msg string) Envelope {
	return Envelope{Error: &msg}
}

// StatusCoder is implemented by errors the caller caused. Their message is
// safe to return verbatim.
type StatusCoder interface {
	error
	StatusCode() int
}

// Report classifies err. Caller-caused errors keep their message and
// status; anything else is logged in full and answered generically.
func Report(err error, keysAndValues ...interface{}) (int, Envelope) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), Fail(sc.Error())
	}

	log.Error(err, "Internal error", keysAndValues...)
	return http.StatusInternalServerError, Fail(InternalErrorMessage)
}

// Error is a caller-facing error with a fixed status.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) StatusCode() int {
	return e.Status
}

// ErrUnauthorized is returned when the shared secret does not match.
var ErrUnauthorized = &Error{Status: http.StatusUnauthorized, Message: "Invalid key"}
