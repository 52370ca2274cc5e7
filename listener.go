package duplex

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Listener observes one connection. OnMessage is called for every received
// message and OnDisconnect exactly once when the connection ends.
//
// Listeners are identified with ==, so implementations must be comparable;
// pointer types always are. A listener whose dynamic type is not comparable
// is refused by AttachListener.
type Listener interface {
	OnMessage(conn *Conn, msg Message) error
	OnDisconnect(conn *Conn)
}

// ListenerFuncs adapts plain functions to the Listener interface. Either
// field may be nil. Attach it by pointer.
type ListenerFuncs struct {
	Message    func(conn *Conn, msg Message) error
	Disconnect func(conn *Conn)
}

// OnMessage implements Listener.
func (l *ListenerFuncs) OnMessage(conn *Conn, msg Message) error {
	if l.Message == nil {
		return nil
	}
	return l.Message(conn, msg)
}

// OnDisconnect implements Listener.
func (l *ListenerFuncs) OnDisconnect(conn *Conn) {
	if l.Disconnect != nil {
		l.Disconnect(conn)
	}
}

// ServerListener is notified of connections accepted by a Server. It runs
// before the connection's read loop starts, so listeners attached to the
// connection from inside OnClientConnected see every message.
type ServerListener interface {
	OnClientConnected(conn *Conn)
}

// ServerListenerFunc adapts a function to ServerListener. Attach it by pointer.
type ServerListenerFunc func(conn *Conn)

// OnClientConnected implements ServerListener.
func (f *ServerListenerFunc) OnClientConnected(conn *Conn) {
	(*f)(conn)
}

// registry is a set of observers safe for concurrent attach, detach and
// dispatch. Dispatch iterates over a snapshot, so observers may detach
// themselves from inside a callback.
type registry[L comparable] struct {
	mu    sync.RWMutex
	items []L
}

// attach adds l unless it is already present. An observer whose dynamic
// type is not comparable cannot be found again by detach, so it is refused.
func (r *registry[L]) attach(l L) bool {
	if !equal(l, l) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range r.items {
		if equal(item, l) {
			return false
		}
	}
	r.items = append(r.items, l)
	return true
}

func (r *registry[L]) detach(l L) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, item := range r.items {
		if equal(item, l) {
			r.items = append(r.items[:i:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

// equal is == except that it reports false instead of panicking when the
// dynamic type behind an interface is not comparable, such as a struct
// holding a slice or a map.
func equal[L comparable](a, b L) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func (r *registry[L]) snapshot() []L {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]L, len(r.items))
	copy(out, r.items)
	return out
}

func (r *registry[L]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// dispatch calls fn for every registered observer in turn. An error or panic
// from one observer is logged and does not stop delivery to the others.
func dispatch[L comparable](r *registry[L], logger Logger, event string, fn func(L) error) {
	for _, l := range r.snapshot() {
		if err := invoke(l, fn); err != nil {
			logger.Warn("listener failed", "event", event, "listener", fmt.Sprintf("%T", l), "error", err)
		}
	}
}

func invoke[L any](l L, fn func(L) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn(l)
}
