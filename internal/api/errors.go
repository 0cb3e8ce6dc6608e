package api

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestFailure is returned when the server answered with a non-2xx status.
type RequestFailure struct {
	Status  int
	Message string
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.Status, e.Message)
}

// NetworkFailure is returned when the request never reached the server or
// no response came back.
type NetworkFailure struct {
	Op  string
	Err error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("network failure on %s: %v", e.Op, e.Err)
}

func (e *NetworkFailure) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status carried by err, or 0 when err is not a
// RequestFailure.
func Status(err error) int {
	var rf *RequestFailure
	if errors.As(err, &rf) {
		return rf.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 rejection.
func IsUnauthorized(err error) bool {
	return Status(err) == http.StatusUnauthorized
}

// IsNetworkFailure reports whether err (or any error in its chain) is a
// NetworkFailure.
func IsNetworkFailure(err error) bool {
	var nf *NetworkFailure
	return errors.As(err, &nf)
}

// Message returns a user-facing message for err: the server's message for
// rejections, a generic text for network failures.
func Message(err error) string {
	var rf *RequestFailure
	if errors.As(err, &rf) {
		return rf.Message
	}
	if IsNetworkFailure(err) {
		return "server unreachable"
	}
	return err.Error()
}
