package duplex

import (
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestIOFailure(t *testing.T) {
	cause := errors.New("boom")
	err := ioFailure("send", cause)

	if !errors.Is(err, ErrIOFailure) {
		t.Error("ioFailure does not match ErrIOFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("ioFailure lost its cause")
	}
	if errors.Is(err, ErrConnectionClosed) {
		t.Error("ioFailure matches ErrConnectionClosed")
	}
	if got, want := err.Error(), "send: io failure: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestClosedFailure(t *testing.T) {
	cause := &net.OpError{Op: "write", Net: "tcp", Err: syscall.ECONNRESET}
	err := closedFailure("send", cause)

	if !errors.Is(err, ErrConnectionClosed) {
		t.Error("closedFailure does not match ErrConnectionClosed")
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Error("closedFailure lost the errno")
	}
	if errors.Is(err, ErrIOFailure) {
		t.Error("closedFailure matches ErrIOFailure")
	}

	var opErr *net.OpError
	if !errors.As(err, &opErr) || opErr.Op != "write" {
		t.Errorf("errors.As did not reach the *net.OpError: %v", err)
	}
}

func TestIsClosedErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"net closed", net.ErrClosed, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"eof", io.EOF, false},
		{"other", errors.New("other"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isClosedErr(tt.err); got != tt.want {
				t.Errorf("isClosedErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
