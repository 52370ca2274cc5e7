package duplex

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Server represents a TCP server that accepts framed connections.
// Every accepted socket becomes a running Conn tracked until it disconnects.
type Server struct {
	listener *net.TCPListener
	logger   Logger
	connOpts []Option

	listeners registry[ServerListener]

	mu       sync.Mutex
	shutdown bool
	closed   bool
	clients  map[string]*Conn
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server. Accepted connections
// use it too unless ServerConnOption overrides it.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerConnOption sets options applied to every accepted connection.
// Listeners given here are attached to each client before its read loop
// starts.
func ServerConnOption(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// ServerListenerOption attaches a connect listener at construction time.
func ServerListenerOption(l ServerListener) ServerOption {
	return func(s *Server) {
		s.listeners.attach(l)
	}
}

// Listen resolves address ("host:port", ":port") and binds a server to it.
func Listen(address string, opts ...ServerOption) (*Server, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", address)
	}
	return New(addr, opts...)
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}

	s := &Server{
		listener: listener,
		logger:   defaultLogger(),
		clients:  make(map[string]*Conn),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections until the context is canceled or Stop is
// called. A failed accept is logged and retried after a short backoff; it
// never ends the loop. Serve returns ctx.Err() on cancellation and nil
// after Stop.
//
// Stopping the server does not close accepted connections; their lifecycle
// is independent of the accept loop.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	served := make(chan struct{})
	defer close(served)

	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.shutdown = true
			s.mu.Unlock()
			// Set a deadline to unblock Accept
			_ = s.listener.SetDeadline(time.Now())
		case <-served:
		}
	}()

	var delay time.Duration
	for {
		raw, err := s.listener.AcceptTCP()
		if err != nil {
			if s.isShutdown() || errors.Is(err, net.ErrClosed) {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			delay = nextAcceptDelay(delay)
			s.logger.Error("accept error", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}

		delay = 0
		s.handle(ctx, raw)
	}
}

// nextAcceptDelay doubles the wait between failed accepts, from 5ms up to 1s.
func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// handle wraps an accepted socket, announces it and starts its read loop.
func (s *Server) handle(ctx context.Context, raw *net.TCPConn) {
	_ = raw.SetNoDelay(true)

	opts := append([]Option{LoggerOption(s.logger)}, s.connOpts...)
	conn, err := NewConn(raw, opts...)
	if err != nil {
		s.logger.Error("wrap connection", "remote_addr", raw.RemoteAddr(), "error", err)
		_ = raw.Close()
		return
	}

	s.addClient(conn)
	conn.OnDisconnect(s.removeClient)

	s.logger.Info("client connected", "conn", conn.ID(), "remote_addr", conn.RemoteAddr())
	dispatch(&s.listeners, s.logger, "client_connected", func(l ServerListener) error {
		l.OnClientConnected(conn)
		return nil
	})

	conn.Start(context.WithoutCancel(ctx))
}

func (s *Server) addClient(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn.ID()] = conn
}

func (s *Server) removeClient(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, conn.ID())
	s.logger.Info("client disconnected", "conn", conn.ID(), "remote_addr", conn.RemoteAddr())
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Stop stops accepting new connections by closing the listener. Connections
// that were already accepted keep running. Safe to call multiple times.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.listener.Close()
}

// Close is Stop; it lets Server satisfy io.Closer.
func (s *Server) Close() error {
	return s.Stop()
}

// AttachListener registers l for connect notifications. It returns false if
// l is already registered or its dynamic type is not comparable.
func (s *Server) AttachListener(l ServerListener) bool {
	return s.listeners.attach(l)
}

// DetachListener unregisters l. It returns false if l was not registered.
func (s *Server) DetachListener(l ServerListener) bool {
	return s.listeners.detach(l)
}

// OnClientConnected registers cb for connect notifications and returns the
// listener so it can be detached later.
func (s *Server) OnClientConnected(cb func(*Conn)) ServerListener {
	f := ServerListenerFunc(cb)
	l := &f
	s.listeners.attach(l)
	return l
}

// Clients returns the connections that have not disconnected yet.
func (s *Server) Clients() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conn, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Client returns the live connection with the given ID.
func (s *Server) Client(id string) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	return c, ok
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the port the server is bound to.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}
