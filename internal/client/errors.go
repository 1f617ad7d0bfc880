package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is benign: the caller retries after the next
	// successful login.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadySubscribed is benign: the subscription is already live.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrUnauthenticated means the operation needs a completed login first.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrShutdown means the connection was discarded by invalidation.
	ErrShutdown = errors.New("connection is shut down")
	// ErrCredentialsRequired means the login succeeded but the account
	// still has unvalidated credentials (a 300 ctrl reply).
	ErrCredentialsRequired = errors.New("credentials require validation")
)

// ServerError is a non-2xx ctrl response to a client request.
type ServerError struct {
	Code int
	Text string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server: %d %s", e.Code, e.Text)
}

// IsClusterUnreachable reports the specific 502 condition that requires a
// forced reconnect of the underlying connection.
func IsClusterUnreachable(err error) bool {
	var se *ServerError
	if !errors.As(err, &se) {
		return false
	}

	return se.Code == 502 && se.Text == "cluster unreachable"
}

// IsNotFound reports a 404-class rejection: the topic no longer exists.
func IsNotFound(err error) bool {
	var se *ServerError
	if !errors.As(err, &se) {
		return false
	}

	return se.Code == 404
}
