// Package duplex provides a minimal bidirectional message transport over TCP.
// Both ends exchange opaque binary messages framed with a 4-byte big-endian
// length prefix, and registered listeners are notified of received messages
// and of disconnects. The same Conn type serves both roles: it is built by
// Server for accepted sockets and by Dial for outbound ones.
package duplex

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of a Conn.
type State int32

const (
	// StateOpen is a connection whose read loop has not started yet.
	StateOpen State = iota
	// StateRunning is a connection with an active read loop.
	StateRunning
	// StateStopping is a connection that is being detached or closed.
	StateStopping
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one end of a framed connection. It owns the socket, runs the read
// loop that decodes frames and fans them out to listeners, and serializes
// outbound frames written by Send.
type Conn struct {
	id      string
	rawConn net.Conn
	reader  *bufio.Reader
	logger  Logger

	opts options

	listeners registry[Listener]

	writeMu    sync.Mutex // held for a whole frame write
	state      atomic.Int32
	finishOnce sync.Once
	done       chan struct{}
}

// Default configuration values.
const (
	// defaultMaxPackageLength is the default maximum size of a single message (1MB).
	defaultMaxPackageLength = 1024 * 1024
	// defaultReadBufferSize is the default size of the socket read buffer.
	defaultReadBufferSize = 4096
)

// NewConn wraps an established connection. The returned Conn is open but
// does not read until Run or Start is called; Send may be used right away.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	if conn == nil {
		return nil, ErrInvalidConn
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return newConnWithOptions(conn, opts), nil
}

// checkOptions sets default values for connection options.
func checkOptions(opts *options) {
	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

func newConnWithOptions(c net.Conn, opts options) *Conn {
	cc := &Conn{
		id:      uuid.NewString(),
		rawConn: c,
		reader:  bufio.NewReaderSize(c, opts.readBufferSize),
		logger:  opts.logger,
		opts:    opts,
		done:    make(chan struct{}),
	}
	for _, l := range opts.listeners {
		if !cc.listeners.attach(l) {
			cc.logger.Warn("listener ignored", "conn", cc.id, "listener", fmt.Sprintf("%T", l))
		}
	}

	return cc
}

// Run starts the read loop and blocks until the connection ends: the peer
// closes the socket or sends a disconnect frame, Detach or Close is called,
// ctx is canceled, or the stream fails. Listeners receive exactly one
// disconnect notification before Run returns.
//
// Run returns nil after an orderly shutdown and ctx.Err() when ctx was
// canceled. Calling Run more than once returns ErrConnectionClosed.
func (c *Conn) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateRunning)) {
		return ErrConnectionClosed
	}

	c.logger.Info("connection established", "conn", c.id, "addr", c.RemoteAddr())
	c.logger.Debug("connection options", "conn", c.id,
		"max_read_length", c.opts.maxReadLength,
		"read_buffer_size", c.opts.readBufferSize)

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer cancel()
		return c.readLoop()
	})

	// Closing the socket is what wakes the blocking read on cancellation.
	group.Go(func() error {
		<-child.Done()
		_ = c.Close()
		return nil
	})

	err := group.Wait()
	c.finish()

	if err == nil && parent.Err() != nil {
		err = parent.Err()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "conn", c.id, "addr", c.RemoteAddr(), "error", err)
	} else {
		c.logger.Info("connection closed", "conn", c.id, "addr", c.RemoteAddr())
	}

	return err
}

// Start runs the read loop in its own goroutine.
func (c *Conn) Start(ctx context.Context) {
	go func() {
		_ = c.Run(ctx)
	}()
}

// Send writes payload as one frame. Concurrent calls are serialized and
// never interleave on the wire. Each frame goes out in a single write with
// no buffering.
//
// Returns:
//   - nil: the frame was handed to the operating system
//   - ErrEmptyMessage: payload is empty
//   - ErrMessageTooLarge: payload does not fit the length prefix
//   - ErrConnectionClosed: the connection is stopping, closed or was reset
//   - ErrIOFailure: any other write error
func (c *Conn) Send(payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if State(c.state.Load()) >= StateStopping {
		return ErrConnectionClosed
	}

	if _, err := c.rawConn.Write(frame); err != nil {
		c.logger.Debug("write error", "conn", c.id, "addr", c.RemoteAddr(), "error", err)
		if isClosedErr(err) {
			return closedFailure("send", err)
		}
		return ioFailure("send", err)
	}
	return nil
}

// Detach gracefully leaves the connection: it tells the peer it is
// disconnecting, then closes the socket. Detaching a connection that is
// already stopping or closed is a no-op.
func (c *Conn) Detach() error {
	c.writeMu.Lock()
	prev, ok := c.beginStop()
	if !ok {
		c.writeMu.Unlock()
		return nil
	}
	_, werr := c.rawConn.Write(EncodeControl(ControlDisconnect))
	c.writeMu.Unlock()

	cerr := c.rawConn.Close()
	if prev != StateRunning {
		c.finish()
	}

	c.logger.Debug("detached", "conn", c.id, "addr", c.RemoteAddr())

	if werr != nil {
		return ioFailure("detach", werr)
	}
	if cerr != nil {
		return ioFailure("detach", cerr)
	}
	return nil
}

// Close closes the connection without notifying the peer. Safe to call
// multiple times.
func (c *Conn) Close() error {
	prev, ok := c.beginStop()
	if !ok {
		return nil
	}

	err := c.rawConn.Close()
	if prev != StateRunning {
		c.finish()
	}
	return err
}

// beginStop moves an open or running connection to StateStopping and
// reports the state it left.
func (c *Conn) beginStop() (State, bool) {
	for {
		s := State(c.state.Load())
		if s >= StateStopping {
			return s, false
		}
		if c.state.CompareAndSwap(int32(s), int32(StateStopping)) {
			return s, true
		}
	}
}

// finish marks the connection closed and notifies listeners, once.
func (c *Conn) finish() {
	c.finishOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		_ = c.rawConn.Close()

		dispatch(&c.listeners, c.logger, "disconnect", func(l Listener) error {
			l.OnDisconnect(c)
			return nil
		})
		close(c.done)
	})
}

// readLoop decodes frames one at a time until the connection ends. Each
// message is delivered to every listener before the next frame is read.
func (c *Conn) readLoop() error {
	for {
		if c.stopping() {
			return nil
		}

		h, payload, err := ReadFrame(c.reader, c.opts.maxReadLength)
		if err != nil {
			return c.readError(err)
		}

		// Frames still buffered when Detach or Close ran are dropped.
		if c.stopping() {
			return nil
		}

		if h.IsControl {
			if h.Control == ControlDisconnect {
				c.logger.Info("peer disconnecting", "conn", c.id, "addr", c.RemoteAddr())
				return nil
			}
			c.logger.Warn("unknown control code", "conn", c.id, "code", int(h.Control))
			continue
		}

		// payload is freshly allocated and Message never exposes it, so
		// every listener can share the value.
		msg := Message{body: payload}
		dispatch(&c.listeners, c.logger, "message", func(l Listener) error {
			return l.OnMessage(c, msg)
		})
	}
}

func (c *Conn) stopping() bool {
	return State(c.state.Load()) >= StateStopping
}

// readError classifies a read failure. A socket that errors has lost its
// framing, so every error ends the loop; only the log level and the returned
// value differ.
func (c *Conn) readError(err error) error {
	if c.stopping() {
		c.logger.Debug("read loop stopped", "conn", c.id, "error", err)
		return nil
	}

	switch {
	case errors.Is(err, io.EOF):
		c.logger.Info("peer closed connection", "conn", c.id, "addr", c.RemoteAddr())
		return nil
	case errors.Is(err, ErrMessageTooLarge), errors.Is(err, ErrTruncatedFrame):
		c.logger.Warn("bad frame", "conn", c.id, "addr", c.RemoteAddr(), "error", err)
		return err
	default:
		c.logger.Warn("read error", "conn", c.id, "addr", c.RemoteAddr(), "error", err)
		return ioFailure("read", err)
	}
}

// AttachListener registers l. It returns false if l is already registered
// or if its dynamic type is not comparable (use a pointer).
func (c *Conn) AttachListener(l Listener) bool {
	return c.listeners.attach(l)
}

// DetachListener unregisters l. It returns false if l was not registered.
func (c *Conn) DetachListener(l Listener) bool {
	return c.listeners.detach(l)
}

// OnMessage registers cb for received messages and returns the listener so
// it can be detached later.
func (c *Conn) OnMessage(cb func(*Conn, Message) error) Listener {
	l := &ListenerFuncs{Message: cb}
	c.listeners.attach(l)
	return l
}

// OnDisconnect registers cb for the disconnect notification and returns the
// listener so it can be detached later.
func (c *Conn) OnDisconnect(cb func(*Conn)) Listener {
	l := &ListenerFuncs{Disconnect: cb}
	c.listeners.attach(l)
	return l
}

// ID returns the unique identifier assigned to this connection.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the remote address of the connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.rawConn.LocalAddr()
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsClosed returns true once the connection is stopping or closed.
func (c *Conn) IsClosed() bool {
	return c.State() >= StateStopping
}

// Done returns a channel that is closed after the disconnect notification
// has been delivered.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) String() string {
	return c.id + " (" + c.RemoteAddr().String() + ")"
}
