package duplex

import (
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// Errors returned by codec, connection, dial and server operations.
// Returned errors usually wrap one of these with extra context; match them
// with errors.Is.
var (
	// ErrIOFailure is returned for transport-level read or write errors.
	ErrIOFailure = errors.New("io failure")
	// ErrTruncatedFrame is returned when the stream ends in the middle of a frame.
	ErrTruncatedFrame = errors.New("truncated frame")
	// ErrConnectionClosed is returned when operating on a stopped or closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnreachableHost is returned when a host cannot be resolved or connected to.
	ErrUnreachableHost = errors.New("unreachable host")
	// ErrMessageTooLarge is returned when a frame exceeds the allowed size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrEmptyMessage is returned when sending a zero-length payload, whose
	// length prefix is reserved for control frames.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidConn is returned when NewConn is given a nil connection.
	ErrInvalidConn = errors.New("invalid connection")
)

// isClosedErr reports whether err means the socket can no longer be used,
// either because we closed it or because the peer reset it.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// kindError tags a transport error with one of the sentinels above. It
// matches both the sentinel and, through Unwrap, the underlying cause.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string        { return e.kind.Error() + ": " + e.cause.Error() }
func (e *kindError) Unwrap() error        { return e.cause }
func (e *kindError) Is(target error) bool { return target == e.kind }

// ioFailure wraps a transport error so that it matches both ErrIOFailure and
// the underlying cause.
func ioFailure(op string, err error) error {
	return errors.Wrap(&kindError{kind: ErrIOFailure, cause: err}, op)
}

func closedFailure(op string, err error) error {
	return errors.Wrap(&kindError{kind: ErrConnectionClosed, cause: err}, op)
}
