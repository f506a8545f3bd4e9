package publisher

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument reports missing or malformed inputs. Callers must fix the input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict matches a *ClientError raised because the transport could not be initialized.
	ErrConflict = errors.New("publisher client could not be initialized")
	// ErrPublishFailed wraps the cause reported by the backend for a single message.
	ErrPublishFailed = errors.New("error publishing message to Pub/Sub")
	// ErrShutdownInterrupted reports that waiting for the transport to terminate was
	// cancelled. Resources may not have been freed.
	ErrShutdownInterrupted = errors.New("publisher shutdown interrupted")
	// ErrShutdownTimeout reports that the transport did not terminate within the bound.
	ErrShutdownTimeout = errors.New("publisher shutdown timed out")
	// ErrPreconditionViolation reports a programming error, such as closing a client
	// without an executor for blocking work.
	ErrPreconditionViolation = errors.New("precondition violation")
	// ErrClientClosed is returned for publishes issued after Close.
	ErrClientClosed = errors.New("publisher client is closed")
)

// ClientError carries an HTTP-style status code alongside the cause.
type ClientError struct {
	Status  int
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("%s (status %d): %v", e.Message, e.Status, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConflict) hold for conflict-class client errors.
func (e *ClientError) Is(target error) bool {
	return target == ErrConflict && e.Status == http.StatusConflict
}
