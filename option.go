package duplex

// options holds the configuration for a connection.
type options struct {
	logger    Logger
	listeners []Listener

	maxReadLength  int // maximum size of a single frame payload
	readBufferSize int // size of the bufio.Reader in front of the socket
}

// Option is a function that configures connection options.
type Option func(*options)

// MessageMaxSize returns an Option that sets the maximum payload size of a
// received frame. A peer announcing a larger frame is disconnected.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// ReadBufferSizeOption returns an Option that sets the size of the read buffer.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// ListenerOption returns an Option that attaches l before the read loop
// starts, so it cannot miss an early message.
func ListenerOption(l Listener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// OnMessageOption returns an Option that attaches a message callback.
func OnMessageOption(cb func(*Conn, Message) error) Option {
	return ListenerOption(&ListenerFuncs{Message: cb})
}

// OnDisconnectOption returns an Option that attaches a disconnect callback.
func OnDisconnectOption(cb func(*Conn)) Option {
	return ListenerOption(&ListenerFuncs{Disconnect: cb})
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
