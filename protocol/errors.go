package protocol

import "errors"

var (
	// ErrBadInput marks malformed wire data. The batch is dropped, the
	// stream continues.
	ErrBadInput = errors.New("bad input")
	// ErrTimeout is returned when no batch arrived within the requested
	// window. It is not a failure.
	ErrTimeout = errors.New("receive timed out")
	// ErrUnrecoverable means the peer or worker behind a channel is gone
	// for good.
	ErrUnrecoverable = errors.New("peer disconnected")
	// ErrUnimplementedCommand is raised by the renderer for command kinds
	// it does not composite.
	ErrUnimplementedCommand = errors.New("unimplemented command")
)

// IsTransient reports whether err leaves a receive loop intact: a timeout
// or a dropped batch.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBadInput)
}
