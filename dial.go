package duplex

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
)

// Dial connects to host:port and returns a Conn whose read loop is already
// running. Listeners passed as options are attached before the loop starts.
//
// ctx bounds only the connection attempt; the returned Conn lives until it
// is detached, closed or dropped by the peer.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Conn, error) {
	return DialAddr(ctx, net.JoinHostPort(host, strconv.Itoa(port)), opts...)
}

// DialAddr is Dial with a "host:port" address.
func DialAddr(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isUnreachable(err) {
			return nil, errors.Wrapf(ErrUnreachableHost, "dial %s: %v", addr, err)
		}
		return nil, ioFailure("dial "+addr, err)
	}

	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	conn, err := NewConn(raw, opts...)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	conn.Start(context.WithoutCancel(ctx))
	return conn, nil
}

// isUnreachable reports whether a dial error means the host could not be
// resolved or reached, as opposed to a local failure.
func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, context.DeadlineExceeded)
}
