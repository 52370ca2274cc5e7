package duplex

import (
	"errors"
	"testing"
)

func TestMessageMaxSize(t *testing.T) {
	opt := MessageMaxSize(4096)

	var opts options
	opt(&opts)

	if opts.maxReadLength != 4096 {
		t.Errorf("maxReadLength = %d, want 4096", opts.maxReadLength)
	}
}

func TestReadBufferSizeOption(t *testing.T) {
	opt := ReadBufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.readBufferSize != 100 {
		t.Errorf("readBufferSize = %d, want 100", opts.readBufferSize)
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestListenerOption(t *testing.T) {
	l := newRecordingListener()

	var opts options
	ListenerOption(l)(&opts)
	ListenerOption(l)(&opts)

	if len(opts.listeners) != 2 {
		t.Errorf("listeners = %d, want 2", len(opts.listeners))
	}
}

func TestOnMessageOption(t *testing.T) {
	want := errors.New("seen")
	var opts options
	OnMessageOption(func(*Conn, Message) error { return want })(&opts)

	if len(opts.listeners) != 1 {
		t.Fatalf("listeners = %d, want 1", len(opts.listeners))
	}
	if err := opts.listeners[0].OnMessage(nil, Message{}); err != want {
		t.Errorf("OnMessage = %v, want %v", err, want)
	}
}

func TestOnDisconnectOption(t *testing.T) {
	called := false
	var opts options
	OnDisconnectOption(func(*Conn) { called = true })(&opts)

	if len(opts.listeners) != 1 {
		t.Fatalf("listeners = %d, want 1", len(opts.listeners))
	}
	opts.listeners[0].OnDisconnect(nil)
	if !called {
		t.Error("disconnect callback not invoked")
	}
}
